package auth

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"github.com/zjoart/go-monnify-wallet/pkg/money"
	"github.com/zjoart/go-monnify-wallet/pkg/phone"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

type VerifyIdentityRequest struct {
	PhoneNumber      string                   `json:"phone_number"`
	VerificationType account.VerificationType `json:"verification_type"`
	Number           string                   `json:"number"`
	DateOfBirth      string                   `json:"date_of_birth"`
}

type CompleteRegistrationRequest struct {
	PhoneNumber      string                   `json:"phone_number"`
	VerificationType account.VerificationType `json:"verification_type"`
	Number           string                   `json:"number"`
	FirstName        string                   `json:"first_name"`
	MiddleName       string                   `json:"middle_name"`
	LastName         string                   `json:"last_name"`
	Email            string                   `json:"email"`
	Gender           string                   `json:"gender"`
	Address          string                   `json:"address"`
	State            string                   `json:"state"`
	LGA              string                   `json:"lga"`
	Password         string                   `json:"password"`
}

type LoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

type AccountView struct {
	ID               string                   `json:"id"`
	PhoneNumber      string                   `json:"phone_number"`
	FirstName        string                   `json:"first_name"`
	MiddleName       string                   `json:"middle_name,omitempty"`
	LastName         string                   `json:"last_name"`
	Email            *string                  `json:"email,omitempty"`
	Gender           string                   `json:"gender"`
	VerificationType account.VerificationType `json:"verification_type"`
	KYCLevel         account.Tier             `json:"kyc_level"`
	Status           account.Status           `json:"status"`
	LastLoginAt      *time.Time               `json:"last_login_at,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
}

func newAccountView(a *account.Account) AccountView {
	return AccountView{
		ID:               a.ID.String(),
		PhoneNumber:      a.PhoneNumber,
		FirstName:        a.FirstName,
		MiddleName:       a.MiddleName,
		LastName:         a.LastName,
		Email:            a.Email,
		Gender:           a.Gender,
		VerificationType: a.VerificationType,
		KYCLevel:         a.KYCLevel,
		Status:           a.Status,
		LastLoginAt:      a.LastLoginAt,
		CreatedAt:        a.CreatedAt,
	}
}

func sessionData(s *Session) map[string]interface{} {
	data := map[string]interface{}{
		"user":         newAccountView(s.Account),
		"access_token": s.Token,
		"token_type":   "Bearer",
		"expires_at":   s.ExpiresAt,
	}
	if s.Wallet != nil {
		data["wallet"] = wallet.NewView(s.Wallet)
	}
	return data
}

func (h *Handler) VerifyIdentity(w http.ResponseWriter, r *http.Request) {
	var req VerifyIdentityRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	rec, err := h.Service.VerifyIdentity(r.Context(), IdentityInput{
		PhoneNumber:      req.PhoneNumber,
		VerificationType: req.VerificationType,
		Number:           req.Number,
		DateOfBirth:      req.DateOfBirth,
	})
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Identity verified successfully", map[string]interface{}{
		"phone_number":      phone.Mask(rec.Phone),
		"verification_type": rec.Type,
		"number":            utils.MaskIdentifier(rec.Number),
		"first_name":        rec.FirstName,
		"middle_name":       rec.MiddleName,
		"last_name":         rec.LastName,
		"date_of_birth":     rec.DateOfBirth.Format(dateLayout),
	})
}

func (h *Handler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	var req CompleteRegistrationRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	session, err := h.Service.CompleteRegistration(r.Context(), RegistrationInput{
		PhoneNumber:      req.PhoneNumber,
		VerificationType: req.VerificationType,
		Number:           req.Number,
		FirstName:        req.FirstName,
		MiddleName:       req.MiddleName,
		LastName:         req.LastName,
		Email:            req.Email,
		Gender:           req.Gender,
		Address:          req.Address,
		State:            req.State,
		LGA:              req.LGA,
		Password:         req.Password,
	})
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "Registration completed successfully", sessionData(session))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	session, err := h.Service.Login(r.Context(), req.PhoneNumber, req.Password)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Login successful", sessionData(session))
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	acc, ok := r.Context().Value(utils.AccountKey).(account.Account)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	wal, err := h.Service.Profile(r.Context(), &acc)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	data := map[string]interface{}{"user": newAccountView(&acc)}
	if wal != nil {
		remaining := wal.DailyLimit.Sub(wal.DailySpent)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		data["wallet"] = wallet.NewView(wal)
		data["remaining_daily_limit"] = remaining.StringFixed(2)
		data["formatted_remaining_daily_limit"] = money.FormatNaira(remaining)
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Profile retrieved successfully", data)
}
