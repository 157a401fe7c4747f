package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/internal/notification"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/metrics"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

type Provider interface {
	GetTransferStatus(ctx context.Context, reference string) (*monnify.Transfer, error)
	GetWalletTransactions(ctx context.Context, walletID string, page, size int) (*monnify.TransactionPage, error)
	GetWalletBalance(ctx context.Context, walletID string) (*monnify.Balance, error)
}

type Notifier interface {
	TransactionAlert(ctx context.Context, phone string, a notification.Alert)
	TransferReversed(ctx context.Context, phone string, amount, balance decimal.Decimal, reference string)
}

// Flagger parks events that were acknowledged but could not be applied.
type Flagger interface {
	Flag(ctx context.Context, reason string, payload []byte) error
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFlagged   Outcome = "flagged"
	OutcomeIgnored   Outcome = "ignored"
	OutcomePending   Outcome = "pending"
)

type Result struct {
	Outcome     Outcome             `json:"outcome"`
	Reference   string              `json:"reference"`
	Reason      string              `json:"reason,omitempty"`
	Transaction *wallet.Transaction `json:"-"`
}

func (r *Result) Flagged() bool { return r.Outcome == OutcomeFlagged }

type Reconciler struct {
	ledger   *wallet.Ledger
	provider Provider
	notifier Notifier
	flagger  Flagger
	metrics  *metrics.Metrics
}

func NewReconciler(ledger *wallet.Ledger, provider Provider, notifier Notifier, flagger Flagger, m *metrics.Metrics) *Reconciler {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Reconciler{ledger: ledger, provider: provider, notifier: notifier, flagger: flagger, metrics: m}
}

// Handle routes an event to the inbound or outbound path. Kinds outside the
// known set are acknowledged without effect.
func (r *Reconciler) Handle(ctx context.Context, ev *Event) (*Result, error) {
	var (
		res *Result
		err error
	)
	switch {
	case ev.Kind.Inbound():
		res, err = r.ProcessInboundCredit(ctx, ev)
	case ev.Kind.Outbound():
		res, err = r.ApplyTransferStatus(ctx, ev.Reference, ev.TransferStatus(), ev.StatusMessage, ev.Raw)
	default:
		logger.Info("Ignoring unhandled webhook event", logger.Fields{"event_type": string(ev.Kind), logger.ReferenceKey: ev.Reference})
		res = &Result{Outcome: OutcomeIgnored, Reference: ev.Reference}
	}

	kind := string(ev.Kind)
	if res != nil && res.Outcome == OutcomeIgnored {
		kind = "unknown"
	}
	if err != nil {
		r.metrics.Webhook(kind, "error")
	} else {
		r.metrics.Webhook(kind, string(res.Outcome))
	}
	return res, err
}

var errFlag = errors.New("flag event")

// ProcessInboundCredit credits the wallet behind the destination account
// exactly once per provider reference.
func (r *Reconciler) ProcessInboundCredit(ctx context.Context, ev *Event) (*Result, error) {
	res := &Result{Reference: ev.Reference}
	store := r.ledger.Store()

	if existing, err := store.GetTransactionByReference(ctx, ev.Reference); err == nil && existing.IsTerminal() {
		res.Outcome, res.Transaction = OutcomeDuplicate, existing
		return res, nil
	}

	fee, net := ev.FeeAndNet()
	if !net.IsPositive() {
		return r.flag(ctx, res, ev, "net amount is not positive")
	}

	var credited *wallet.Wallet
	err := store.WithinTx(ctx, func(tx wallet.Store) error {
		w, err := tx.LockWalletByAccountNumber(ctx, ev.AccountNumber)
		if errors.Is(err, wallet.ErrWalletNotFound) {
			res.Reason = "wallet not found"
			return errFlag
		}
		if err != nil {
			return err
		}
		if !w.Transactable() {
			res.Reason = "wallet not transactable"
			return errFlag
		}

		// re-check under the wallet lock
		if existing, err := tx.GetTransactionByReference(ctx, ev.Reference); err == nil {
			res.Outcome, res.Transaction = OutcomeDuplicate, existing
			return nil
		}

		txn, err := r.ledger.ApplyCredit(ctx, tx, w, wallet.CreditRequest{
			Amount:            net,
			Fee:               fee,
			Category:          wallet.CategoryDeposit,
			ExternalReference: ev.Reference,
			Narration:         narration(ev),
			Channel:           channelFor(ev.Kind),
			ProviderResponse:  ev.Raw,
		})
		if err != nil {
			return err
		}
		res.Outcome, res.Transaction = OutcomeApplied, txn
		credited = w
		return nil
	})

	switch {
	case errors.Is(err, errFlag):
		return r.flag(ctx, res, ev, res.Reason)
	case errors.Is(err, wallet.ErrDuplicateReference):
		// lost a race with a concurrent delivery of the same event
		res.Outcome = OutcomeDuplicate
		return res, nil
	case err != nil:
		return nil, fmt.Errorf("apply inbound credit: %w", err)
	}

	if res.Outcome == OutcomeApplied {
		logger.Info("Inbound credit applied", logger.Fields{
			logger.WalletIDKey:  credited.ID.String(),
			logger.ReferenceKey: ev.Reference,
			"amount":            net.StringFixed(2),
			"fee":               fee.StringFixed(2),
		})
		if credited.Account != nil {
			r.notifier.TransactionAlert(ctx, credited.Account.PhoneNumber, notification.Alert{
				Type:      notification.AlertCredit,
				Amount:    net,
				Balance:   credited.AvailableBalance,
				Reference: res.Transaction.Reference,
			})
		}
	}
	return res, nil
}

func (r *Reconciler) flag(ctx context.Context, res *Result, ev *Event, reason string) (*Result, error) {
	res.Outcome, res.Reason = OutcomeFlagged, reason
	logger.Warn("Webhook acknowledged but not applied", logger.Fields{
		logger.ReferenceKey: ev.Reference,
		"account_number":    utils.MaskAccountNumber(ev.AccountNumber),
		"reason":            reason,
	})
	if err := r.flagger.Flag(ctx, reason, ev.Raw); err != nil {
		logger.Error("Failed to flag webhook event", logger.WithError(err))
	}
	return res, nil
}

// ApplyTransferStatus moves an outbound transfer to the reported state.
// An unknown reference is NotFound so the provider redelivers later.
func (r *Reconciler) ApplyTransferStatus(ctx context.Context, reference string, status wallet.TransactionStatus, message string, raw []byte) (*Result, error) {
	settled, err := r.ledger.SettleTransfer(ctx, reference, wallet.Outcome{Status: status, Message: message, ProviderResponse: raw})
	if err != nil {
		if errors.Is(err, wallet.ErrTransactionNotFound) {
			logger.Warn("Transfer update for unknown reference", logger.Fields{logger.ReferenceKey: reference})
		}
		return nil, err
	}

	res := &Result{Reference: reference, Transaction: settled.Transaction}
	switch {
	case settled.Duplicate:
		res.Outcome = OutcomeDuplicate
		return res, nil
	case status == wallet.TransactionProcessing:
		res.Outcome = OutcomePending
		return res, nil
	}
	res.Outcome = OutcomeApplied

	txn := settled.Transaction
	logger.Info("Transfer settled", logger.Fields{
		logger.ReferenceKey: txn.Reference,
		logger.WalletIDKey:  txn.WalletID.String(),
		"status":            string(status),
	})

	if settled.Reversal != nil && settled.Wallet != nil && settled.Wallet.Account != nil {
		r.notifier.TransferReversed(ctx, settled.Wallet.Account.PhoneNumber, settled.Reversal.Amount, settled.Wallet.AvailableBalance, txn.Reference)
		return res, nil
	}

	if status == wallet.TransactionSuccessful {
		w, err := r.ledger.Store().GetWallet(ctx, txn.WalletID)
		if err == nil && w.Account != nil {
			r.notifier.TransactionAlert(ctx, w.Account.PhoneNumber, notification.Alert{
				Type:        notification.AlertDebit,
				Amount:      txn.Amount,
				Balance:     w.AvailableBalance,
				Reference:   txn.Reference,
				Destination: strings.TrimSpace(txn.DestinationAccountName + " " + utils.MaskAccountNumber(txn.DestinationAccount)),
			})
		}
	}
	return res, nil
}

// PollTransfer asks the provider for a transfer's state and applies it.
func (r *Reconciler) PollTransfer(ctx context.Context, reference string) (*Result, error) {
	tr, err := r.provider.GetTransferStatus(ctx, reference)
	if err != nil {
		return nil, err
	}
	return r.ApplyTransferStatus(ctx, reference, NormalizeStatus(tr.Status), tr.StatusMessage, tr.Raw)
}

// PollStaleTransfers re-checks transfers that have been processing for
// longer than age. Individual failures are logged and skipped.
func (r *Reconciler) PollStaleTransfers(ctx context.Context, age time.Duration, limit int) (int, error) {
	stale, err := r.ledger.Store().ListStaleTransfers(ctx, r.ledger.Now().Add(-age), limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, txn := range stale {
		res, err := r.PollTransfer(ctx, txn.Reference)
		if err != nil {
			logger.Warn("Transfer poll failed", logger.Merge(logger.WithError(err), logger.Fields{logger.ReferenceKey: txn.Reference}))
			continue
		}
		if res.Outcome == OutcomeApplied {
			settled++
		}
	}
	return settled, nil
}

type SyncReport struct {
	Fetched    int                  `json:"fetched"`
	Credited   int                  `json:"credited"`
	Known      int                  `json:"known"`
	Unapplied  int                  `json:"unapplied"`
	Skipped    int                  `json:"skipped"`
	Audit      *wallet.BalanceAudit `json:"audit,omitempty"`
	TotalPages int                  `json:"total_pages"`
}

// SyncWalletTransactions pulls one page of the provider statement. Credits
// we never saw go through the inbound path; unknown debits are recorded
// without touching the balance and left for review. The provider balance is
// audited afterwards.
func (r *Reconciler) SyncWalletTransactions(ctx context.Context, walletID uuid.UUID, page, size int) (*SyncReport, error) {
	store := r.ledger.Store()
	w, err := store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}

	statement, err := r.provider.GetWalletTransactions(ctx, w.ExternalWalletID, page, size)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{Fetched: len(statement.Content), TotalPages: statement.TotalPages}
	for _, st := range statement.Content {
		if NormalizeStatus(st.Status) != wallet.TransactionSuccessful || st.TransactionReference == "" {
			report.Skipped++
			continue
		}
		if _, err := store.GetTransactionByReference(ctx, st.TransactionReference); err == nil {
			report.Known++
			continue
		}

		switch strings.ToUpper(st.TransactionType) {
		case "CREDIT":
			noFee := decimal.Zero
			res, err := r.ProcessInboundCredit(ctx, &Event{
				Kind:            kindStatement,
				Reference:       st.TransactionReference,
				Amount:          st.Amount,
				Fee:             &noFee,
				AccountNumber:   w.AccountNumber,
				Narration:       st.Narration,
				TransactionDate: st.TransactionDate,
			})
			if err != nil {
				return report, err
			}
			if res.Outcome == OutcomeApplied {
				report.Credited++
			} else {
				report.Known++
			}
		case "DEBIT":
			if err := r.recordUnapplied(ctx, w, st); err != nil {
				return report, err
			}
			report.Unapplied++
		default:
			report.Skipped++
		}
	}

	bal, err := r.provider.GetWalletBalance(ctx, w.ExternalWalletID)
	if err != nil {
		return report, err
	}
	report.Audit, err = r.ledger.SyncBalanceFromProvider(ctx, w.ID, bal.AvailableBalance, "statement_sync")
	return report, err
}

func (r *Reconciler) recordUnapplied(ctx context.Context, w *wallet.Wallet, st monnify.WalletTransaction) error {
	ref := st.TransactionReference
	txn := &wallet.Transaction{
		AccountID:         w.AccountID,
		WalletID:          w.ID,
		Reference:         r.ledger.NewReference(),
		ExternalReference: &ref,
		Direction:         wallet.Debit,
		Category:          wallet.CategoryWithdrawal,
		Amount:            st.Amount,
		BalanceBefore:     st.BalanceBefore,
		BalanceAfter:      st.BalanceAfter,
		Status:            wallet.TransactionSuccessful,
		StatusMessage:     "Recorded from provider statement, not applied to balance",
		BalanceApplied:    false,
		Narration:         st.Narration,
		Channel:           wallet.ChannelSync,
	}
	err := r.ledger.Store().CreateTransaction(ctx, txn)
	if errors.Is(err, wallet.ErrDuplicateReference) {
		return nil
	}
	if err != nil {
		return err
	}

	logger.Warn("Provider debit not found locally", logger.Fields{
		logger.WalletIDKey:  w.ID.String(),
		logger.ReferenceKey: ref,
		"amount":            st.Amount.StringFixed(2),
	})
	return nil
}

func channelFor(kind Kind) string {
	switch kind {
	case KindSuccessfulCollection:
		return wallet.ChannelCollection
	case kindStatement:
		return wallet.ChannelSync
	default:
		return wallet.ChannelWebhook
	}
}

func narration(ev *Event) string {
	if ev.Narration != "" {
		return ev.Narration
	}
	if ev.Kind == KindSuccessfulCollection {
		return "Collection Credit"
	}
	return "Account Credit"
}
