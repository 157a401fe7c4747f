package key

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

type CreateKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Expiry      string   `json:"expiry"`
}

type RolloverKeyRequest struct {
	ExpiredKeyID string `json:"expired_key_id"`
	Expiry       string `json:"expiry"`
}

type View struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	MaskedKey   string     `json:"masked_key"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   time.Time  `json:"expires_at"`
	IsRevoked   bool       `json:"is_revoked"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func NewView(k *APIKey) View {
	return View{
		ID:          k.ID.String(),
		Name:        k.Name,
		MaskedKey:   k.MaskedKey,
		Permissions: k.Permissions,
		ExpiresAt:   k.ExpiresAt,
		IsRevoked:   k.IsRevoked,
		LastUsedAt:  k.LastUsedAt,
		CreatedAt:   k.CreatedAt,
	}
}

func issuedResponse(iss *Issued) map[string]interface{} {
	return map[string]interface{}{
		"api_key":     iss.Secret,
		"masked_key":  iss.Key.MaskedKey,
		"permissions": iss.Key.Permissions,
		"expires_at":  iss.Key.ExpiresAt,
	}
}

func caller(w http.ResponseWriter, r *http.Request) (account.Account, bool) {
	acc, ok := r.Context().Value(utils.AccountKey).(account.Account)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
	}
	return acc, ok
}

func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	acc, ok := caller(w, r)
	if !ok {
		return
	}

	var req CreateKeyRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request body", map[string]string{"error": err.Error()})
		return
	}

	iss, err := h.Service.Create(r.Context(), acc.ID, req.Name, req.Permissions, req.Expiry)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "API Key created, This key will only be shown once. Please save it securely.", issuedResponse(iss))
}

func (h *Handler) RolloverAPIKey(w http.ResponseWriter, r *http.Request) {
	acc, ok := caller(w, r)
	if !ok {
		return
	}

	var req RolloverKeyRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request body", map[string]string{"error": err.Error()})
		return
	}

	iss, err := h.Service.Rollover(r.Context(), acc.ID, req.ExpiredKeyID, req.Expiry)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusCreated, "API Key rolled over, This key will only be shown once. Please save it securely.", issuedResponse(iss))
}

func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	acc, ok := caller(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid key id", nil)
		return
	}

	if err := h.Service.Revoke(r.Context(), acc.ID, id); err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "API Key revoked successfully", nil)
}

func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	acc, ok := caller(w, r)
	if !ok {
		return
	}

	keys, err := h.Service.List(r.Context(), acc.ID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	views := make([]View, 0, len(keys))
	for i := range keys {
		views = append(views, NewView(&keys[i]))
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "API Keys retrieved", views)
}
