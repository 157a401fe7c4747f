package wallet

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/id"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/money"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

// Provider is the slice of the Monnify client the wallet endpoints use.
type Provider interface {
	GetWalletBalance(ctx context.Context, walletID string) (*monnify.Balance, error)
	ValidateAccount(ctx context.Context, accountNumber, bankCode string) (*monnify.AccountValidation, error)
	GetBanks(ctx context.Context) ([]monnify.Bank, error)
}

type Handler struct {
	Ledger   *Ledger
	Provider Provider
}

func NewHandler(ledger *Ledger, provider Provider) *Handler {
	return &Handler{Ledger: ledger, Provider: provider}
}

type View struct {
	ID               string    `json:"id"`
	AccountNumber    string    `json:"account_number"`
	AccountName      string    `json:"account_name"`
	BankName         string    `json:"bank_name"`
	BankCode         string    `json:"bank_code"`
	AvailableBalance string    `json:"available_balance"`
	LedgerBalance    string    `json:"ledger_balance"`
	FormattedBalance string    `json:"formatted_balance"`
	DailyLimit       string    `json:"daily_limit"`
	MonthlyLimit     string    `json:"monthly_limit"`
	DailySpent       string    `json:"daily_spent"`
	MonthlySpent     string    `json:"monthly_spent"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewView(w *Wallet) View {
	return View{
		ID:               w.ID.String(),
		AccountNumber:    w.AccountNumber,
		AccountName:      w.AccountName,
		BankName:         w.BankName,
		BankCode:         w.BankCode,
		AvailableBalance: w.AvailableBalance.StringFixed(2),
		LedgerBalance:    w.LedgerBalance.StringFixed(2),
		FormattedBalance: money.FormatNaira(w.AvailableBalance),
		DailyLimit:       w.DailyLimit.StringFixed(2),
		MonthlyLimit:     w.MonthlyLimit.StringFixed(2),
		DailySpent:       w.DailySpent.StringFixed(2),
		MonthlySpent:     w.MonthlySpent.StringFixed(2),
		Status:           w.Status,
		CreatedAt:        w.CreatedAt,
	}
}

type TransactionView struct {
	ID                 string            `json:"id"`
	Reference          string            `json:"reference"`
	Direction          Direction         `json:"direction"`
	Category           Category          `json:"category"`
	Amount             string            `json:"amount"`
	FormattedAmount    string            `json:"formatted_amount"`
	Fee                string            `json:"fee"`
	BalanceBefore      string            `json:"balance_before"`
	BalanceAfter       string            `json:"balance_after"`
	Status             TransactionStatus `json:"status"`
	StatusMessage      string            `json:"status_message,omitempty"`
	Narration          string            `json:"narration"`
	Channel            string            `json:"channel"`
	DestinationAccount string            `json:"destination_account,omitempty"`
	DestinationBank    string            `json:"destination_bank,omitempty"`
	DestinationName    string            `json:"destination_account_name,omitempty"`
	ProcessedAt        *time.Time        `json:"processed_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

func NewTransactionView(t *Transaction) TransactionView {
	return TransactionView{
		ID:                 t.ID.String(),
		Reference:          t.Reference,
		Direction:          t.Direction,
		Category:           t.Category,
		Amount:             t.Amount.StringFixed(2),
		FormattedAmount:    money.FormatNaira(t.Amount),
		Fee:                t.Fee.StringFixed(2),
		BalanceBefore:      t.BalanceBefore.StringFixed(2),
		BalanceAfter:       t.BalanceAfter.StringFixed(2),
		Status:             t.Status,
		StatusMessage:      t.StatusMessage,
		Narration:          t.Narration,
		Channel:            t.Channel,
		DestinationAccount: t.DestinationAccount,
		DestinationBank:    t.DestinationBank,
		DestinationName:    t.DestinationAccountName,
		ProcessedAt:        t.ProcessedAt,
		CreatedAt:          t.CreatedAt,
	}
}

func (h *Handler) wallet(r *http.Request) (*Wallet, error) {
	acc, ok := r.Context().Value(utils.AccountKey).(account.Account)
	if !ok {
		return nil, apperror.Unauthorized("Unauthorized")
	}
	return h.Ledger.Store().GetWalletByAccountID(r.Context(), acc.ID)
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wal, err := h.wallet(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	summary, err := h.Ledger.Store().TransactionSummary(r.Context(), wal.ID)
	if err != nil {
		utils.WriteError(w, apperror.Internal("Failed to load wallet summary", err))
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet retrieved successfully", map[string]interface{}{
		"wallet":  NewView(wal),
		"summary": summary,
	})
}

// RefreshBalance pulls the provider balance and audits it against the ledger.
func (h *Handler) RefreshBalance(w http.ResponseWriter, r *http.Request) {
	wal, err := h.wallet(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	bal, err := h.Provider.GetWalletBalance(r.Context(), wal.ExternalWalletID)
	if err != nil {
		utils.WriteError(w, apperror.Provider("fetch wallet balance", err))
		return
	}

	audit, err := h.Ledger.SyncBalanceFromProvider(r.Context(), wal.ID, bal.AvailableBalance, "refresh")
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	wal, err = h.Ledger.Store().GetWallet(r.Context(), wal.ID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	msg := "Balance refreshed successfully"
	if !audit.Applied && !audit.Drift().IsZero() {
		msg = "Provider balance differs from the wallet and was recorded for review"
	}
	utils.BuildSuccessResponse(w, http.StatusOK, msg, map[string]interface{}{
		"wallet":           NewView(wal),
		"provider_balance": audit.ProviderBalance.StringFixed(2),
		"in_sync":          audit.Drift().IsZero(),
		"applied":          audit.Applied,
	})
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	wal, err := h.wallet(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	limit, offset, page := utils.GetPaginationDetails(r)
	filter, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	filter.Limit, filter.Offset = limit, offset

	txs, total, err := h.Ledger.Store().ListTransactions(r.Context(), wal.ID, filter)
	if err != nil {
		utils.WriteError(w, apperror.Internal("Failed to fetch transactions", err))
		return
	}

	views := make([]TransactionView, 0, len(txs))
	for i := range txs {
		views = append(views, NewTransactionView(&txs[i]))
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transactions retrieved successfully", map[string]interface{}{
		"transactions": views,
		"pagination":   utils.NewPagination(page, limit, total),
	})
}

func parseFilter(r *http.Request) (TransactionFilter, error) {
	q := r.URL.Query()
	f := TransactionFilter{
		Direction: Direction(strings.ToLower(q.Get("direction"))),
		Category:  Category(strings.ToLower(q.Get("category"))),
		Status:    TransactionStatus(strings.ToLower(q.Get("status"))),
	}
	if f.Direction != "" && f.Direction != Credit && f.Direction != Debit {
		return f, apperror.Validation("direction must be credit or debit")
	}

	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return f, apperror.Validation(name + " must be a date in YYYY-MM-DD format")
		}
		if name == "to" {
			t = t.AddDate(0, 0, 1)
		}
		*dst = &t
	}
	return f, nil
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	wal, err := h.wallet(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	txID, err := id.IsValidUUID(mux.Vars(r)["id"])
	if err != nil {
		utils.WriteError(w, apperror.Validation("Invalid transaction id"))
		return
	}

	txn, err := h.Ledger.Store().GetTransaction(r.Context(), wal.ID, txID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction retrieved successfully", NewTransactionView(txn))
}

const (
	statementDateLayout = "2006-01-02"
	maxStatementDays    = 366
)

type StatementPeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type StatementEntry struct {
	Date      string            `json:"date"`
	Reference string            `json:"reference"`
	Direction Direction         `json:"type"`
	Amount    string            `json:"amount"`
	Balance   string            `json:"balance"`
	Narration string            `json:"narration"`
	Status    TransactionStatus `json:"status"`
}

type Statement struct {
	AccountDetails struct {
		AccountNumber   string          `json:"account_number"`
		AccountName     string          `json:"account_name"`
		BankName        string          `json:"bank_name"`
		StatementPeriod StatementPeriod `json:"statement_period"`
	} `json:"account_details"`
	BalanceSummary struct {
		OpeningBalance   string `json:"opening_balance"`
		ClosingBalance   string `json:"closing_balance"`
		TotalCredits     string `json:"total_credits"`
		TotalDebits      string `json:"total_debits"`
		TransactionCount int    `json:"transaction_count"`
	} `json:"balance_summary"`
	Transactions []StatementEntry `json:"transactions"`
}

func parseStatementPeriod(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()
	if q.Get("start_date") == "" || q.Get("end_date") == "" {
		return start, end, apperror.Validation("start_date and end_date are required")
	}
	start, err = time.Parse(statementDateLayout, q.Get("start_date"))
	if err != nil {
		return start, end, apperror.Validation("start_date must be a date in YYYY-MM-DD format")
	}
	end, err = time.Parse(statementDateLayout, q.Get("end_date"))
	if err != nil {
		return start, end, apperror.Validation("end_date must be a date in YYYY-MM-DD format")
	}
	if end.Before(start) {
		return start, end, apperror.Validation("end_date must not be before start_date")
	}
	if end.Sub(start) > maxStatementDays*24*time.Hour {
		return start, end, apperror.Validation("Statement period cannot exceed one year")
	}
	return start, end, nil
}

// GetStatement returns every transaction in [start_date, end_date] with the
// running balance either side of the period.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	wal, err := h.wallet(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	start, end, err := parseStatementPeriod(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	// end_date covers the whole day
	until := end.AddDate(0, 0, 1)

	store := h.Ledger.Store()
	txs, _, err := store.ListTransactions(r.Context(), wal.ID, TransactionFilter{From: &start, To: &until})
	if err != nil {
		utils.WriteError(w, apperror.Internal("Failed to fetch statement", err))
		return
	}
	opening, _, err := store.BalanceAt(r.Context(), wal.ID, start)
	if err != nil {
		utils.WriteError(w, apperror.Internal("Failed to fetch opening balance", err))
		return
	}
	closing, found, err := store.BalanceAt(r.Context(), wal.ID, until)
	if err != nil {
		utils.WriteError(w, apperror.Internal("Failed to fetch closing balance", err))
		return
	}
	if !found {
		closing = opening
	}

	var st Statement
	st.AccountDetails.AccountNumber = wal.AccountNumber
	st.AccountDetails.AccountName = wal.AccountName
	st.AccountDetails.BankName = wal.BankName
	st.AccountDetails.StatementPeriod = StatementPeriod{
		StartDate: start.Format(statementDateLayout),
		EndDate:   end.Format(statementDateLayout),
	}

	credits, debits := decimal.Zero, decimal.Zero
	st.Transactions = make([]StatementEntry, 0, len(txs))
	for _, t := range txs {
		if t.Status == TransactionSuccessful {
			if t.Direction == Credit {
				credits = credits.Add(t.Amount)
			} else {
				debits = debits.Add(t.Amount)
			}
		}
		st.Transactions = append(st.Transactions, StatementEntry{
			Date:      t.CreatedAt.Format("2006-01-02 15:04:05"),
			Reference: t.Reference,
			Direction: t.Direction,
			Amount:    t.Amount.StringFixed(2),
			Balance:   t.BalanceAfter.StringFixed(2),
			Narration: t.Narration,
			Status:    t.Status,
		})
	}

	st.BalanceSummary.OpeningBalance = opening.StringFixed(2)
	st.BalanceSummary.ClosingBalance = closing.StringFixed(2)
	st.BalanceSummary.TotalCredits = credits.StringFixed(2)
	st.BalanceSummary.TotalDebits = debits.StringFixed(2)
	st.BalanceSummary.TransactionCount = len(txs)

	utils.BuildSuccessResponse(w, http.StatusOK, "Statement generated successfully", st)
}

type ValidateAccountRequest struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

func (h *Handler) ValidateAccount(w http.ResponseWriter, r *http.Request) {
	var req ValidateAccountRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}
	if len(req.AccountNumber) != 10 || !isDigits(req.AccountNumber) {
		utils.WriteError(w, apperror.Validation("Account number must be 10 digits"))
		return
	}
	if req.BankCode == "" {
		utils.WriteError(w, apperror.Validation("Bank code is required"))
		return
	}

	res, err := h.Provider.ValidateAccount(r.Context(), req.AccountNumber, req.BankCode)
	if err != nil {
		if monnify.IsRejected(err) {
			utils.WriteError(w, apperror.Validation("Could not resolve account details"))
			return
		}
		utils.WriteError(w, apperror.Provider("validate account", err))
		return
	}

	logger.Debug("account resolved", logger.Fields{"account_number": utils.MaskAccountNumber(req.AccountNumber), "bank_code": req.BankCode})
	utils.BuildSuccessResponse(w, http.StatusOK, "Account validated successfully", res)
}

func (h *Handler) GetBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.Provider.GetBanks(r.Context())
	if err != nil {
		utils.WriteError(w, apperror.Provider("list banks", err))
		return
	}
	utils.BuildSuccessResponse(w, http.StatusOK, "Banks retrieved successfully", banks)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
