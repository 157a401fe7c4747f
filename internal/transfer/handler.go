package transfer

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/money"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

type BankTransferRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	BankCode      string          `json:"bank_code"`
	BankName      string          `json:"bank_name"`
	AccountNumber string          `json:"account_number"`
	AccountName   string          `json:"account_name"`
	Narration     string          `json:"narration"`
	Reference     string          `json:"reference"`
}

type FeeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type QuoteView struct {
	Amount         string `json:"amount"`
	Fee            string `json:"fee"`
	Total          string `json:"total"`
	FormattedTotal string `json:"formatted_total"`
}

func newQuoteView(q Quote) QuoteView {
	return QuoteView{
		Amount:         q.Amount.StringFixed(2),
		Fee:            q.Fee.StringFixed(2),
		Total:          q.Total.StringFixed(2),
		FormattedTotal: money.FormatNaira(q.Total),
	}
}

func (h *Handler) callerWallet(w http.ResponseWriter, r *http.Request) (*wallet.Wallet, bool) {
	acc, ok := r.Context().Value(utils.AccountKey).(account.Account)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return nil, false
	}
	wal, err := h.Service.ledger.Store().GetWalletByAccountID(r.Context(), acc.ID)
	if err != nil {
		utils.WriteError(w, err)
		return nil, false
	}
	return wal, true
}

func (h *Handler) TransferToBank(w http.ResponseWriter, r *http.Request) {
	wal, ok := h.callerWallet(w, r)
	if !ok {
		return
	}

	var req BankTransferRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	channel := wallet.ChannelApp
	if r.Header.Get("x-api-key") != "" {
		channel = wallet.ChannelAPI
	}

	receipt, err := h.Service.TransferToBank(r.Context(), Request{
		WalletID:        wal.ID,
		Amount:          req.Amount,
		BankCode:        strings.TrimSpace(req.BankCode),
		BankName:        req.BankName,
		AccountNumber:   strings.TrimSpace(req.AccountNumber),
		AccountName:     req.AccountName,
		Narration:       req.Narration,
		ClientReference: strings.TrimSpace(req.Reference),
		Channel:         channel,
	})
	if err != nil {
		if receipt != nil && apperror.IsKind(err, apperror.KindValidation) {
			utils.BuildErrorResponse(w, http.StatusUnprocessableEntity, apperror.PublicMessage(err), map[string]interface{}{
				"transaction": wallet.NewTransactionView(receipt.Transaction),
			})
			return
		}
		utils.WriteError(w, err)
		return
	}

	msg := "Transfer initiated successfully"
	switch {
	case receipt.Existing:
		msg = "Transfer already submitted"
	case receipt.Transaction.Status == wallet.TransactionSuccessful:
		msg = "Transfer completed successfully"
	}
	utils.BuildSuccessResponse(w, http.StatusOK, msg, map[string]interface{}{
		"transaction": wallet.NewTransactionView(receipt.Transaction),
		"quote":       newQuoteView(receipt.Quote),
	})
}

func (h *Handler) GetTransferStatus(w http.ResponseWriter, r *http.Request) {
	wal, ok := h.callerWallet(w, r)
	if !ok {
		return
	}

	txn, err := h.Service.Status(r.Context(), wal.ID, mux.Vars(r)["reference"])
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Transfer status retrieved", wallet.NewTransactionView(txn))
}

func (h *Handler) CalculateFee(w http.ResponseWriter, r *http.Request) {
	var req FeeRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	q, err := h.Service.CalculateFee(req.Amount)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Transfer fee calculated", newQuoteView(q))
}
