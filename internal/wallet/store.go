package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
)

var (
	ErrWalletNotFound        = apperror.NotFound("Wallet not found")
	ErrTransactionNotFound   = apperror.NotFound("Transaction not found")
	ErrDuplicateReference    = apperror.Conflict("Duplicate transaction reference")
	ErrInvalidAmount         = apperror.Validation("Amount must be greater than zero")
	ErrInsufficientBalance   = apperror.New(apperror.KindInsufficientBalance, "Insufficient balance")
	ErrDailyLimitExceeded    = apperror.New(apperror.KindLimitExceeded, "Daily transaction limit exceeded")
	ErrMonthlyLimitExceeded  = apperror.New(apperror.KindLimitExceeded, "Monthly transaction limit exceeded")
	ErrWalletNotTransactable = apperror.New(apperror.KindForbidden, "Wallet is not active for transactions")
)

// Store persists wallets and their transactions. Lock* methods take a row
// lock that lasts until the surrounding WithinTx returns, which is what
// serialises mutations of one wallet.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	CreateWallet(ctx context.Context, w *Wallet) error
	SaveWallet(ctx context.Context, w *Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetWalletByAccountID(ctx context.Context, accountID uuid.UUID) (*Wallet, error)
	LockWallet(ctx context.Context, id uuid.UUID) (*Wallet, error)
	LockWalletByAccountNumber(ctx context.Context, accountNumber string) (*Wallet, error)

	CreateTransaction(ctx context.Context, t *Transaction) error
	SaveTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, walletID, id uuid.UUID) (*Transaction, error)
	// GetTransactionByReference matches either our reference or the
	// provider's external reference.
	GetTransactionByReference(ctx context.Context, reference string) (*Transaction, error)
	LockTransactionByReference(ctx context.Context, reference string) (*Transaction, error)
	ListChildTransactions(ctx context.Context, parentReference string) ([]Transaction, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, f TransactionFilter) ([]Transaction, int64, error)
	// ListStaleTransfers returns outbound transfers still processing that
	// were created before the cutoff, oldest first.
	ListStaleTransfers(ctx context.Context, before time.Time, limit int) ([]Transaction, error)
	TransactionSummary(ctx context.Context, walletID uuid.UUID) (*Summary, error)
	// LedgerTotals sums the rows that moved the balance.
	LedgerTotals(ctx context.Context, walletID uuid.UUID) (credits, debits decimal.Decimal, err error)
	// BalanceAt returns balance_after of the last row that moved the
	// balance before t, and false when there is none.
	BalanceAt(ctx context.Context, walletID uuid.UUID, t time.Time) (decimal.Decimal, bool, error)

	CreateBalanceAudit(ctx context.Context, a *BalanceAudit) error
}
