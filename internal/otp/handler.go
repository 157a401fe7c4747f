package otp

import (
	"net/http"
	"strings"

	"github.com/zjoart/go-monnify-wallet/pkg/config"
	"github.com/zjoart/go-monnify-wallet/pkg/phone"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

type Handler struct {
	Config  config.Config
	Service *Service
}

func NewHandler(cfg config.Config, svc *Service) *Handler {
	return &Handler{Config: cfg, Service: svc}
}

type SendRequest struct {
	PhoneNumber string  `json:"phone_number"`
	Type        Purpose `json:"type"`
	Purpose     Purpose `json:"purpose"`
}

type VerifyRequest struct {
	PhoneNumber string  `json:"phone_number"`
	OTPCode     string  `json:"otp_code"`
	Type        Purpose `json:"type"`
	Purpose     Purpose `json:"purpose"`
}

// requestPurpose prefers type and falls back to the older purpose field.
func requestPurpose(typ, legacy Purpose) Purpose {
	switch {
	case typ != "":
		return typ
	case legacy != "":
		return legacy
	}
	return PurposeRegistration
}

func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}
	c, err := h.Service.Issue(r.Context(), req.PhoneNumber, requestPurpose(req.Type, req.Purpose))
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	data := map[string]interface{}{
		"phone_number": phone.Mask(c.PhoneNumber),
		"purpose":      c.Purpose,
		"expires_in":   int(CodeTTL.Seconds()),
	}
	if h.Config.OTPReturnToClient {
		data["otp_code"] = c.Code
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "OTP sent successfully", data)
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	code := strings.TrimSpace(req.OTPCode)
	if len(code) != CodeLength {
		utils.BuildErrorResponse(w, http.StatusUnprocessableEntity, "OTP code must be 6 digits", nil)
		return
	}
	c, err := h.Service.Verify(r.Context(), req.PhoneNumber, requestPurpose(req.Type, req.Purpose), code)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Phone number verified successfully", map[string]interface{}{
		"phone_number": phone.Mask(c.PhoneNumber),
		"purpose":      c.Purpose,
		"verified":     true,
	})
}
