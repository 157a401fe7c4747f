package auth

import (
	"context"

	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"gorm.io/gorm"
)

// UnitOfWork runs fn against repositories that share one database
// transaction. Any error from fn rolls everything back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(accounts account.Repository, wallets wallet.Store) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(accounts account.Repository, wallets wallet.Store) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(account.NewRepository(tx), wallet.NewRepository(tx))
	})
}
