package key

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/database"
	"gorm.io/gorm"
)

var ErrNotFound = apperror.NotFound("API key not found")

type Repository interface {
	CountActive(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error)
	Create(ctx context.Context, key *APIKey) error
	Get(ctx context.Context, id, accountID uuid.UUID) (*APIKey, error)
	FindByValue(ctx context.Context, value string) (*APIKey, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]APIKey, error)
	Revoke(ctx context.Context, id, accountID uuid.UUID) error
	TouchUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CountActive(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&APIKey{}).
		Where("account_id = ? AND is_revoked = ? AND expires_at > ?", accountID, false, now).
		Count(&count).Error
	return count, err
}

func (r *repository) Create(ctx context.Context, key *APIKey) error {
	err := r.db.WithContext(ctx).Create(key).Error
	if database.IsUniqueViolation(err) {
		return apperror.Wrap(apperror.KindConflict, "API key collision, please retry", err)
	}
	return err
}

func (r *repository) Get(ctx context.Context, id, accountID uuid.UUID) (*APIKey, error) {
	var key APIKey
	err := r.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).First(&key).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

func (r *repository) FindByValue(ctx context.Context, value string) (*APIKey, error) {
	var key APIKey
	if err := r.db.WithContext(ctx).Where("key_hash = ?", hashKey(value)).First(&key).Error; err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]APIKey, error) {
	var keys []APIKey
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

func (r *repository) Revoke(ctx context.Context, id, accountID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&APIKey{}).
		Where("id = ? AND account_id = ?", id, accountID).
		Update("is_revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) TouchUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&APIKey{}).Where("id = ?", id).UpdateColumn("last_used_at", at).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
