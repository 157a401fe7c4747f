package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/database"
	"gorm.io/gorm"
)

var ErrNotFound = apperror.NotFound("Account not found")

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, acc *Account) error
	Save(ctx context.Context, acc *Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByPhone(ctx context.Context, phone string) (*Account, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	IdentityExists(ctx context.Context, kind VerificationType, number string) (bool, error)
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, acc *Account) error {
	err := r.db.WithContext(ctx).Create(acc).Error
	if database.IsUniqueViolation(err) {
		return apperror.Wrap(apperror.KindConflict, "Account already exists", err)
	}
	return err
}

func (r *repository) Save(ctx context.Context, acc *Account) error {
	return r.db.WithContext(ctx).Save(acc).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	var acc Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&acc).Error; err != nil {
		return nil, notFound(err)
	}
	return &acc, nil
}

func (r *repository) FindByPhone(ctx context.Context, phone string) (*Account, error) {
	var acc Account
	if err := r.db.WithContext(ctx).Where("phone_number = ?", phone).First(&acc).Error; err != nil {
		return nil, notFound(err)
	}
	return &acc, nil
}

func (r *repository) PhoneExists(ctx context.Context, phone string) (bool, error) {
	return r.exists(ctx, "phone_number = ?", phone)
}

func (r *repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ?", email)
}

func (r *repository) IdentityExists(ctx context.Context, kind VerificationType, number string) (bool, error) {
	switch kind {
	case VerificationBVN:
		return r.exists(ctx, "bvn = ?", number)
	case VerificationNIN:
		return r.exists(ctx, "nin = ?", number)
	}
	return false, apperror.Validation("Unknown verification type")
}

func (r *repository) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).UpdateColumn("last_login_at", at).Error
}

func (r *repository) exists(ctx context.Context, query string, arg interface{}) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Account{}).Where(query, arg).Count(&count).Error
	return count > 0, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
