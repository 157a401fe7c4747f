package transfer

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/internal/settlement"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

const defaultNarration = "Wallet Transfer"

var accountNumberPattern = regexp.MustCompile(`^\d{10}$`)

type Provider interface {
	Transfer(ctx context.Context, req monnify.TransferRequest) (*monnify.Transfer, error)
}

// Settler applies provider transfer outcomes to the ledger.
type Settler interface {
	ApplyTransferStatus(ctx context.Context, reference string, status wallet.TransactionStatus, message string, raw []byte) (*settlement.Result, error)
	PollTransfer(ctx context.Context, reference string) (*settlement.Result, error)
}

type Request struct {
	WalletID        uuid.UUID
	Amount          decimal.Decimal
	BankCode        string
	BankName        string
	AccountNumber   string
	AccountName     string
	Narration       string
	ClientReference string
	Channel         string
}

type Receipt struct {
	Transaction *wallet.Transaction
	Quote       Quote
	// Existing is set when ClientReference matched an earlier transfer.
	Existing bool
}

type Service struct {
	ledger    *wallet.Ledger
	provider  Provider
	settler   Settler
	minAmount decimal.Decimal
}

func NewService(ledger *wallet.Ledger, provider Provider, settler Settler, minAmount decimal.Decimal) *Service {
	return &Service{ledger: ledger, provider: provider, settler: settler, minAmount: minAmount}
}

func (s *Service) CalculateFee(amount decimal.Decimal) (Quote, error) {
	return quote(amount, s.minAmount)
}

// TransferToBank holds amount plus fee on the wallet and hands the transfer
// to the provider. A rejected transfer is failed and reversed before
// returning; an unknown outcome stays processing for the poller.
func (s *Service) TransferToBank(ctx context.Context, req Request) (*Receipt, error) {
	q, err := quote(req.Amount, s.minAmount)
	if err != nil {
		return nil, err
	}
	if !accountNumberPattern.MatchString(req.AccountNumber) {
		return nil, apperror.Validation("Account number must be 10 digits")
	}
	if strings.TrimSpace(req.BankCode) == "" {
		return nil, apperror.Validation("Bank code is required")
	}

	store := s.ledger.Store()
	if req.ClientReference != "" {
		if existing, err := s.existing(ctx, req); err != nil || existing != nil {
			return existing, err
		}
	}

	w, err := store.GetWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	// the hold re-checks under the row lock
	if err := wallet.CheckSpend(*w, q.Total, s.ledger.Now()); err != nil {
		return nil, err
	}

	narration := strings.TrimSpace(req.Narration)
	if narration == "" {
		narration = defaultNarration
	}
	reference := s.ledger.NewReference()

	txn, err := s.ledger.DebitPending(ctx, w.ID, wallet.DebitRequest{
		Amount:            q.Amount,
		Fee:               q.Fee,
		Category:          wallet.CategoryTransfer,
		Reference:         reference,
		ExternalReference: req.ClientReference,
		Narration:         narration,
		Channel:           req.Channel,
		Destination: wallet.Destination{
			AccountNumber: req.AccountNumber,
			BankCode:      req.BankCode,
			BankName:      req.BankName,
			AccountName:   req.AccountName,
		},
	})
	if errors.Is(err, wallet.ErrDuplicateReference) && req.ClientReference != "" {
		// same client reference submitted concurrently
		return s.existing(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	fields := logger.Fields{
		logger.WalletIDKey:  w.ID.String(),
		logger.ReferenceKey: reference,
		"amount":            q.Amount.StringFixed(2),
		"destination":       utils.MaskAccountNumber(req.AccountNumber),
	}

	tr, err := s.provider.Transfer(ctx, monnify.TransferRequest{
		Amount:                   monnify.Amount(q.Amount),
		Reference:                reference,
		Narration:                narration,
		DestinationBankCode:      req.BankCode,
		DestinationAccountNumber: req.AccountNumber,
		SourceAccountNumber:      w.AccountNumber,
	})
	switch {
	case monnify.IsRejected(err):
		msg := monnify.Message(err)
		logger.Warn("Transfer rejected by provider", logger.Merge(fields, logger.Fields{"reason": msg}))
		res, settleErr := s.settler.ApplyTransferStatus(ctx, reference, wallet.TransactionFailed, msg, nil)
		if settleErr != nil {
			return nil, settleErr
		}
		return &Receipt{Transaction: res.Transaction, Quote: q}, apperror.Wrap(apperror.KindValidation, "Transfer failed: "+msg, err)
	case err != nil:
		// the provider may or may not have the transfer; polling decides
		logger.Warn("Transfer outcome unknown, left processing", logger.Merge(fields, logger.WithError(err)))
		return &Receipt{Transaction: txn, Quote: q}, nil
	}

	res, err := s.settler.ApplyTransferStatus(ctx, reference, settlement.NormalizeStatus(tr.Status), tr.StatusMessage, tr.Raw)
	if err != nil {
		logger.Error("Failed to apply immediate transfer status", logger.Merge(fields, logger.WithError(err)))
		return &Receipt{Transaction: txn, Quote: q}, nil
	}

	logger.Info("Bank transfer initiated", logger.Merge(fields, logger.Fields{"status": string(res.Transaction.Status)}))
	return &Receipt{Transaction: res.Transaction, Quote: q}, nil
}

func (s *Service) existing(ctx context.Context, req Request) (*Receipt, error) {
	txn, err := s.ledger.Store().GetTransactionByReference(ctx, req.ClientReference)
	if errors.Is(err, wallet.ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if txn.WalletID != req.WalletID || txn.Category != wallet.CategoryTransfer {
		return nil, apperror.Conflict("Reference already used")
	}
	return &Receipt{
		Transaction: txn,
		Quote:       Quote{Amount: txn.Amount, Fee: txn.Fee, Total: txn.Amount.Add(txn.Fee)},
		Existing:    true,
	}, nil
}

// Status returns a transfer owned by walletID, asking the provider first
// when it has not settled yet.
func (s *Service) Status(ctx context.Context, walletID uuid.UUID, reference string) (*wallet.Transaction, error) {
	store := s.ledger.Store()
	txn, err := store.GetTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.WalletID != walletID || txn.Category != wallet.CategoryTransfer {
		return nil, wallet.ErrTransactionNotFound
	}
	if txn.IsTerminal() {
		return txn, nil
	}

	res, err := s.settler.PollTransfer(ctx, txn.Reference)
	if err != nil {
		logger.Warn("Transfer status poll failed", logger.Merge(logger.WithError(err), logger.Fields{logger.ReferenceKey: txn.Reference}))
		return txn, nil
	}
	if res.Transaction != nil {
		return res.Transaction, nil
	}
	return txn, nil
}
