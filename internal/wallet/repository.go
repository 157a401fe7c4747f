package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns the Postgres-backed Store.
func NewRepository(db *gorm.DB) Store {
	return &repository{db: db}
}

func (r *repository) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx})
	})
}

func (r *repository) CreateWallet(ctx context.Context, w *Wallet) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(w).Error
	if database.IsUniqueViolation(err) {
		return apperror.Wrap(apperror.KindConflict, "Wallet already exists", err)
	}
	return err
}

func (r *repository) SaveWallet(ctx context.Context, w *Wallet) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(w).Error
}

func (r *repository) GetWallet(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	return r.findWallet(ctx, r.db, "id = ?", id)
}

func (r *repository) GetWalletByAccountID(ctx context.Context, accountID uuid.UUID) (*Wallet, error) {
	return r.findWallet(ctx, r.db, "account_id = ? AND is_default = ?", accountID, true)
}

func (r *repository) LockWallet(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	return r.findWallet(ctx, r.forUpdate(), "id = ?", id)
}

func (r *repository) LockWalletByAccountNumber(ctx context.Context, accountNumber string) (*Wallet, error) {
	return r.findWallet(ctx, r.forUpdate(), "account_number = ?", accountNumber)
}

func (r *repository) forUpdate() *gorm.DB {
	return r.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *repository) findWallet(ctx context.Context, q *gorm.DB, query string, args ...interface{}) (*Wallet, error) {
	var w Wallet
	if err := q.WithContext(ctx).Preload("Account").Where(query, args...).First(&w).Error; err != nil {
		return nil, notFound(err, ErrWalletNotFound)
	}
	return &w, nil
}

func (r *repository) CreateTransaction(ctx context.Context, t *Transaction) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if database.IsUniqueViolation(err) {
		return ErrDuplicateReference
	}
	return err
}

func (r *repository) SaveTransaction(ctx context.Context, t *Transaction) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *repository) GetTransaction(ctx context.Context, walletID, id uuid.UUID) (*Transaction, error) {
	var t Transaction
	err := r.db.WithContext(ctx).Where("id = ? AND wallet_id = ?", id, walletID).First(&t).Error
	if err != nil {
		return nil, notFound(err, ErrTransactionNotFound)
	}
	return &t, nil
}

func (r *repository) GetTransactionByReference(ctx context.Context, reference string) (*Transaction, error) {
	return r.findTransaction(ctx, r.db, reference)
}

func (r *repository) LockTransactionByReference(ctx context.Context, reference string) (*Transaction, error) {
	return r.findTransaction(ctx, r.forUpdate(), reference)
}

func (r *repository) findTransaction(ctx context.Context, q *gorm.DB, reference string) (*Transaction, error) {
	var t Transaction
	err := q.WithContext(ctx).
		Where("reference = ? OR external_reference = ?", reference, reference).
		Order("created_at asc").
		First(&t).Error
	if err != nil {
		return nil, notFound(err, ErrTransactionNotFound)
	}
	return &t, nil
}

func (r *repository) ListChildTransactions(ctx context.Context, parentReference string) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.WithContext(ctx).
		Where("parent_reference = ?", parentReference).
		Order("created_at asc").
		Find(&txs).Error
	return txs, err
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, f TransactionFilter) ([]Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&Transaction{}).Where("wallet_id = ?", walletID)
	if f.Direction != "" {
		q = q.Where("direction = ?", f.Direction)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q = q.Order("created_at desc")
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	var txs []Transaction
	err := q.Find(&txs).Error
	return txs, total, err
}

func (r *repository) ListStaleTransfers(ctx context.Context, before time.Time, limit int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.WithContext(ctx).
		Where("direction = ? AND category = ? AND status IN ? AND created_at < ?",
			Debit, CategoryTransfer, []TransactionStatus{TransactionPending, TransactionProcessing}, before).
		Order("created_at asc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (r *repository) TransactionSummary(ctx context.Context, walletID uuid.UUID) (*Summary, error) {
	var row struct {
		Credits decimal.NullDecimal
		Debits  decimal.NullDecimal
		Count   int64
		Pending int64
	}
	err := r.db.WithContext(ctx).Model(&Transaction{}).
		Select(`COALESCE(SUM(amount) FILTER (WHERE direction = ? AND status = ?), 0) AS credits,
			COALESCE(SUM(amount) FILTER (WHERE direction = ? AND status = ?), 0) AS debits,
			COUNT(*) AS count,
			COUNT(*) FILTER (WHERE status IN ?) AS pending`,
			Credit, TransactionSuccessful, Debit, TransactionSuccessful,
			[]TransactionStatus{TransactionPending, TransactionProcessing}).
		Where("wallet_id = ?", walletID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &Summary{
		TotalCredits: row.Credits.Decimal,
		TotalDebits:  row.Debits.Decimal,
		Count:        row.Count,
		Pending:      row.Pending,
	}, nil
}

func (r *repository) LedgerTotals(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	var row struct {
		Credits decimal.NullDecimal
		Debits  decimal.NullDecimal
	}
	err := r.db.WithContext(ctx).Model(&Transaction{}).
		Select(`COALESCE(SUM(amount) FILTER (WHERE direction = ?), 0) AS credits,
			COALESCE(SUM(amount) FILTER (WHERE direction = ?), 0) AS debits`, Credit, Debit).
		Where("wallet_id = ? AND balance_applied = ?", walletID, true).
		Scan(&row).Error
	return row.Credits.Decimal, row.Debits.Decimal, err
}

func (r *repository) BalanceAt(ctx context.Context, walletID uuid.UUID, t time.Time) (decimal.Decimal, bool, error) {
	var txn Transaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND balance_applied = ? AND created_at < ?", walletID, true, t).
		Order("created_at desc").
		First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return txn.BalanceAfter, true, nil
}

func (r *repository) CreateBalanceAudit(ctx context.Context, a *BalanceAudit) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
