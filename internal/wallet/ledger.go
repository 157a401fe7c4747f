package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/id"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/metrics"
	"github.com/zjoart/go-monnify-wallet/pkg/money"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
	"gorm.io/datatypes"
)

type SyncMode string

const (
	// SyncAudit records drift but leaves balances alone.
	SyncAudit SyncMode = "audit"
	// SyncOverride adopts the provider's balance.
	SyncOverride SyncMode = "override"
)

// Ledger owns every balance mutation. Each one runs in a transaction holding
// the wallet's row lock.
type Ledger struct {
	store     Store
	metrics   *metrics.Metrics
	syncMode  SyncMode
	now       func() time.Time
	reference func(time.Time) string
}

type LedgerOption func(*Ledger)

func WithMetrics(m *metrics.Metrics) LedgerOption { return func(l *Ledger) { l.metrics = m } }

func WithSyncMode(mode SyncMode) LedgerOption { return func(l *Ledger) { l.syncMode = mode } }

func WithClock(now func() time.Time) LedgerOption { return func(l *Ledger) { l.now = now } }

func WithReferences(gen func(time.Time) string) LedgerOption {
	return func(l *Ledger) { l.reference = gen }
}

func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:     store,
		metrics:   metrics.NewNop(),
		syncMode:  SyncAudit,
		now:       time.Now,
		reference: id.Reference,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Store() Store { return l.store }

func (l *Ledger) Now() time.Time { return l.now().UTC() }

// NewReference returns a fresh transaction reference.
func (l *Ledger) NewReference() string { return l.reference(l.now()) }

type CreditRequest struct {
	Amount            decimal.Decimal
	Fee               decimal.Decimal
	Category          Category
	Reference         string
	ExternalReference string
	ParentReference   string
	Narration         string
	Channel           string
	Metadata          map[string]interface{}
	ProviderResponse  []byte
}

type Destination struct {
	AccountNumber string
	BankCode      string
	BankName      string
	AccountName   string
}

type DebitRequest struct {
	Amount            decimal.Decimal
	Fee               decimal.Decimal
	Category          Category
	Status            TransactionStatus
	Reference         string
	ExternalReference string
	Narration         string
	Channel           string
	Destination       Destination
	Metadata          map[string]interface{}
}

// Credit adds funds to a wallet.
func (l *Ledger) Credit(ctx context.Context, walletID uuid.UUID, req CreditRequest) (*Transaction, error) {
	var txn *Transaction
	err := l.store.WithinTx(ctx, func(tx Store) error {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		txn, err = l.ApplyCredit(ctx, tx, w, req)
		return err
	})
	l.metrics.Ledger(string(Credit), outcome(err))
	return txn, err
}

// Debit removes funds immediately and records a successful debit.
func (l *Ledger) Debit(ctx context.Context, walletID uuid.UUID, req DebitRequest) (*Transaction, error) {
	req.Status = TransactionSuccessful
	return l.debit(ctx, walletID, req)
}

// DebitPending holds funds for an outbound transfer whose outcome the
// provider reports later.
func (l *Ledger) DebitPending(ctx context.Context, walletID uuid.UUID, req DebitRequest) (*Transaction, error) {
	req.Status = TransactionProcessing
	return l.debit(ctx, walletID, req)
}

func (l *Ledger) debit(ctx context.Context, walletID uuid.UUID, req DebitRequest) (*Transaction, error) {
	var txn *Transaction
	err := l.store.WithinTx(ctx, func(tx Store) error {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		txn, err = l.ApplyDebit(ctx, tx, w, req)
		return err
	})
	l.metrics.Ledger(string(Debit), outcome(err))
	return txn, err
}

// ApplyCredit credits a wallet the caller has already locked inside tx.
func (l *Ledger) ApplyCredit(ctx context.Context, tx Store, w *Wallet, req CreditRequest) (*Transaction, error) {
	amount := money.Round(req.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.Category == "" {
		req.Category = CategoryDeposit
	}
	// a reversal restores funds even on a wallet frozen since the debit
	if req.Category != CategoryReversal {
		if err := transactable(w); err != nil {
			return nil, err
		}
	}

	now := l.Now()
	before := w.AvailableBalance
	w.AvailableBalance = before.Add(amount)
	w.LedgerBalance = w.LedgerBalance.Add(amount)
	if err := tx.SaveWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("save wallet: %w", err)
	}

	txn := &Transaction{
		AccountID:        w.AccountID,
		WalletID:         w.ID,
		Reference:        req.Reference,
		Direction:        Credit,
		Category:         req.Category,
		Amount:           amount,
		Fee:              money.Round(req.Fee),
		BalanceBefore:    before,
		BalanceAfter:     w.AvailableBalance,
		Status:           TransactionSuccessful,
		BalanceApplied:   true,
		Narration:        req.Narration,
		Channel:          orDefault(req.Channel, ChannelSystem),
		Metadata:         encodeJSON(req.Metadata),
		ProviderResponse: rawJSON(req.ProviderResponse),
		ProcessedAt:      &now,
	}
	if txn.Reference == "" {
		txn.Reference = l.reference(now)
	}
	if req.ExternalReference != "" {
		txn.ExternalReference = &req.ExternalReference
	}
	if req.ParentReference != "" {
		txn.ParentReference = &req.ParentReference
	}
	if err := tx.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}

	logger.Info("wallet credited", logger.Fields{
		logger.WalletIDKey:  w.ID.String(),
		logger.ReferenceKey: txn.Reference,
		"amount":            amount.StringFixed(2),
		"category":          string(req.Category),
	})
	return txn, nil
}

// ApplyDebit debits a wallet the caller has already locked inside tx. A
// non-zero fee is written as its own fee row linked to the principal.
func (l *Ledger) ApplyDebit(ctx context.Context, tx Store, w *Wallet, req DebitRequest) (*Transaction, error) {
	amount := money.Round(req.Amount)
	fee := money.Round(req.Fee)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if fee.IsNegative() {
		return nil, apperror.Validation("Fee cannot be negative")
	}
	if err := transactable(w); err != nil {
		return nil, err
	}
	if req.Category == "" {
		req.Category = CategoryTransfer
	}
	if req.Status == "" {
		req.Status = TransactionSuccessful
	}

	now := l.Now()
	resetLimits(w, now)

	total := amount.Add(fee)
	if err := checkSpend(w, total); err != nil {
		return nil, err
	}

	before := w.AvailableBalance
	w.AvailableBalance = before.Sub(total)
	w.LedgerBalance = w.LedgerBalance.Sub(total)
	w.DailySpent = w.DailySpent.Add(total)
	w.MonthlySpent = w.MonthlySpent.Add(total)
	if err := tx.SaveWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("save wallet: %w", err)
	}

	reference := req.Reference
	if reference == "" {
		reference = l.reference(now)
	}
	var processedAt *time.Time
	if req.Status.IsTerminal() {
		processedAt = &now
	}

	principal := &Transaction{
		AccountID:              w.AccountID,
		WalletID:               w.ID,
		Reference:              reference,
		Direction:              Debit,
		Category:               req.Category,
		Amount:                 amount,
		Fee:                    fee,
		BalanceBefore:          before,
		BalanceAfter:           before.Sub(amount),
		Status:                 req.Status,
		BalanceApplied:         true,
		DestinationAccount:     req.Destination.AccountNumber,
		DestinationBank:        req.Destination.BankName,
		DestinationBankCode:    req.Destination.BankCode,
		DestinationAccountName: req.Destination.AccountName,
		Narration:              req.Narration,
		Channel:                orDefault(req.Channel, ChannelApp),
		Metadata:               encodeJSON(req.Metadata),
		ProcessedAt:            processedAt,
	}
	if req.ExternalReference != "" {
		principal.ExternalReference = &req.ExternalReference
	}
	if err := tx.CreateTransaction(ctx, principal); err != nil {
		return nil, err
	}

	if fee.IsPositive() {
		parent := reference
		feeRow := &Transaction{
			AccountID:       w.AccountID,
			WalletID:        w.ID,
			Reference:       reference + "-FEE",
			ParentReference: &parent,
			Direction:       Debit,
			Category:        CategoryFee,
			Amount:          fee,
			BalanceBefore:   principal.BalanceAfter,
			BalanceAfter:    w.AvailableBalance,
			Status:          req.Status,
			BalanceApplied:  true,
			Narration:       "Fee for " + reference,
			Channel:         principal.Channel,
			ProcessedAt:     processedAt,
		}
		if err := tx.CreateTransaction(ctx, feeRow); err != nil {
			return nil, err
		}
	}

	logger.Info("wallet debited", logger.Fields{
		logger.WalletIDKey:  w.ID.String(),
		logger.ReferenceKey: reference,
		"amount":            amount.StringFixed(2),
		"fee":               fee.StringFixed(2),
		"status":            string(req.Status),
	})
	return principal, nil
}

// CanSpend loads the wallet and applies CanSpend to it.
func (l *Ledger) CanSpend(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (bool, error) {
	w, err := l.store.GetWallet(ctx, walletID)
	if err != nil {
		return false, err
	}
	return CanSpend(*w, money.Round(amount), l.now()), nil
}

// ComputeLedgerBalance sums every applied credit minus every applied debit.
func (l *Ledger) ComputeLedgerBalance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	credits, debits, err := l.store.LedgerTotals(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	return credits.Sub(debits), nil
}

// SyncBalanceFromProvider compares the provider's balance with ours and
// records an audit row. Balances only change in override mode.
func (l *Ledger) SyncBalanceFromProvider(ctx context.Context, walletID uuid.UUID, providerBalance decimal.Decimal, source string) (*BalanceAudit, error) {
	providerBalance = money.Round(providerBalance)

	var audit *BalanceAudit
	err := l.store.WithinTx(ctx, func(tx Store) error {
		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		credits, debits, err := tx.LedgerTotals(ctx, walletID)
		if err != nil {
			return err
		}

		audit = &BalanceAudit{
			WalletID:          w.ID,
			Source:            source,
			ProviderBalance:   providerBalance,
			PreviousAvailable: w.AvailableBalance,
			PreviousLedger:    w.LedgerBalance,
			ComputedLedger:    credits.Sub(debits),
			Applied:           l.syncMode == SyncOverride,
		}

		if audit.Applied {
			w.AvailableBalance = providerBalance
			w.LedgerBalance = providerBalance
			if err := tx.SaveWallet(ctx, w); err != nil {
				return err
			}
		}
		return tx.CreateBalanceAudit(ctx, audit)
	})
	if err != nil {
		return nil, err
	}

	if !audit.Drift().IsZero() || !audit.ComputedLedger.Equal(audit.PreviousAvailable) {
		l.metrics.Drift()
		logger.Warn("wallet balance drift", logger.Fields{
			logger.WalletIDKey: walletID.String(),
			"provider":         audit.ProviderBalance.StringFixed(2),
			"available":        audit.PreviousAvailable.StringFixed(2),
			"computed":         audit.ComputedLedger.StringFixed(2),
			"applied":          audit.Applied,
			"source":           source,
		})
	}
	return audit, nil
}

type Outcome struct {
	Status           TransactionStatus
	Message          string
	ProviderResponse []byte
}

type Settlement struct {
	Transaction *Transaction
	Reversal    *Transaction
	Wallet      *Wallet
	// Duplicate is set when the transfer had already reached a final state.
	Duplicate bool
}

// SettleTransfer moves an outbound debit to its final state. A failure keeps
// the original debit on the books and credits back principal plus fees with
// a single reversal row.
func (l *Ledger) SettleTransfer(ctx context.Context, reference string, out Outcome) (*Settlement, error) {
	res := &Settlement{}
	err := l.store.WithinTx(ctx, func(tx Store) error {
		txn, err := tx.LockTransactionByReference(ctx, reference)
		if err != nil {
			return err
		}
		res.Transaction = txn
		if txn.Direction != Debit || txn.Category == CategoryFee {
			return apperror.Validation("Reference does not belong to an outbound transfer")
		}
		if txn.IsTerminal() {
			res.Duplicate = true
			return nil
		}
		if !txn.Status.CanTransitionTo(out.Status) {
			return apperror.Validation(fmt.Sprintf("Cannot move transaction from %s to %s", txn.Status, out.Status))
		}

		now := l.Now()
		txn.Status = out.Status
		if out.Message != "" {
			txn.StatusMessage = out.Message
		}
		if len(out.ProviderResponse) > 0 {
			txn.ProviderResponse = rawJSON(out.ProviderResponse)
		}
		if out.Status.IsTerminal() {
			txn.ProcessedAt = &now
		}
		if err := tx.SaveTransaction(ctx, txn); err != nil {
			return err
		}

		children, err := tx.ListChildTransactions(ctx, txn.Reference)
		if err != nil {
			return err
		}
		refund := txn.Amount
		for i := range children {
			child := &children[i]
			if child.Category != CategoryFee || child.IsTerminal() {
				continue
			}
			child.Status = out.Status
			child.ProcessedAt = txn.ProcessedAt
			if err := tx.SaveTransaction(ctx, child); err != nil {
				return err
			}
			if child.BalanceApplied {
				refund = refund.Add(child.Amount)
			}
		}

		if out.Status != TransactionFailed || !txn.BalanceApplied {
			return nil
		}

		w, err := tx.LockWallet(ctx, txn.WalletID)
		if err != nil {
			return err
		}
		res.Wallet = w
		resetLimits(w, now)
		restoreSpend(w, txn.CreatedAt, refund)

		res.Reversal, err = l.ApplyCredit(ctx, tx, w, CreditRequest{
			Amount:          refund,
			Category:        CategoryReversal,
			Reference:       txn.Reference + "-REV",
			ParentReference: txn.Reference,
			Narration:       "Reversal for failed transfer " + txn.Reference,
			Channel:         ChannelSystem,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Reversal != nil {
		l.metrics.Ledger("reversal", "ok")
	}
	return res, nil
}

// New builds the local wallet row for a freshly provisioned provider wallet.
func New(acc *account.Account, pw *monnify.Wallet, now time.Time) *Wallet {
	w := &Wallet{
		AccountID:        acc.ID,
		ExternalWalletID: pw.WalletID,
		WalletReference:  pw.WalletReference,
		AccountNumber:    pw.AccountNumber,
		AccountName:      orDefault(pw.AccountName, acc.FullName()),
		BankName:         orDefault(pw.BankName, monnify.DefaultBankName),
		BankCode:         orDefault(pw.BankCode, monnify.DefaultBankCode),
		Status:           StatusActive,
		IsDefault:        true,
		ProviderResponse: rawJSON(pw.Raw),
		WalletCreatedAt:  &now,
		Account:          acc,
	}
	ApplyTier(w, acc.KYCLevel)
	resetLimits(w, now)
	return w
}

func transactable(w *Wallet) error {
	if w.Status != StatusActive {
		return ErrWalletNotTransactable
	}
	if w.Account != nil && !w.Account.IsActive() {
		return ErrWalletNotTransactable
	}
	return nil
}

// Transactable reports whether the wallet may currently move money.
func (w *Wallet) Transactable() bool {
	return transactable(w) == nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperror.KindOf(err))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func encodeJSON(v map[string]interface{}) datatypes.JSON {
	if len(v) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func rawJSON(b []byte) datatypes.JSON {
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return datatypes.JSON(b)
}
