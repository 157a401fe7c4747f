package settlement

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/metrics"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

type SignatureVerifier interface {
	VerifySignature(payload []byte, signature string) bool
}

type Handler struct {
	Reconciler *Reconciler
	Verifier   SignatureVerifier
	Metrics    *metrics.Metrics
}

func NewHandler(r *Reconciler, verifier SignatureVerifier, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Handler{Reconciler: r, Verifier: verifier, Metrics: m}
}

// MonnifyWebhook accepts any event kind and routes on eventType.
func (h *Handler) MonnifyWebhook(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "")
}

func (h *Handler) TransactionWebhook(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, KindSuccessfulTransaction)
}

func (h *Handler) CollectionWebhook(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, KindSuccessfulCollection)
}

func (h *Handler) TransferWebhook(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, KindTransferStatusUpdate)
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request, fixed Kind) {
	raw, err := utils.ReadRawBody(w, r)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	// nothing in the body is trusted before this check
	if !h.Verifier.VerifySignature(raw, r.Header.Get(monnify.SignatureHeader)) {
		logger.Warn("Invalid Monnify webhook signature", logger.Fields{"path": r.URL.Path})
		h.Metrics.Webhook("unknown", "unauthorized")
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid signature", nil)
		return
	}

	ev, err := ParseEvent(raw, fixed)
	if err != nil {
		h.Metrics.Webhook(string(fixed), "malformed")
		if errors.Is(err, ErrMalformedEvent) {
			utils.BuildErrorResponse(w, http.StatusBadRequest, apperror.PublicMessage(err), nil)
			return
		}
		utils.WriteError(w, err)
		return
	}

	res, err := h.Reconciler.Handle(r.Context(), ev)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, message(res), map[string]interface{}{
		"outcome":   res.Outcome,
		"reference": res.Reference,
		"flagged":   res.Flagged(),
	})
}

func message(res *Result) string {
	switch res.Outcome {
	case OutcomeDuplicate:
		return "Event already processed"
	case OutcomeFlagged:
		return "Event received and flagged for review"
	case OutcomeIgnored:
		return "Event received"
	default:
		return "Event processed successfully"
	}
}

// SyncTransactions pulls the caller's provider statement into the ledger.
func (h *Handler) SyncTransactions(w http.ResponseWriter, r *http.Request) {
	acc, ok := r.Context().Value(utils.AccountKey).(account.Account)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	wal, err := h.Reconciler.ledger.Store().GetWalletByAccountID(r.Context(), acc.ID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	page := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v >= 0 {
		page = v
	}
	size, _, _ := utils.GetPaginationDetails(r)

	report, err := h.Reconciler.SyncWalletTransactions(r.Context(), wal.ID, page, size)
	if err != nil {
		if monnify.IsTemporary(err) || monnify.IsRejected(err) {
			err = apperror.Provider("sync wallet statement", err)
		}
		utils.WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transactions synced successfully", report)
}
