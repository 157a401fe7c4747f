package otp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNoChallenge = errors.New("otp challenge not found")

type Repository interface {
	Create(ctx context.Context, c *Challenge) error
	// Latest returns the newest challenge for phone+purpose that was not
	// invalidated by a later issue.
	Latest(ctx context.Context, phone string, purpose Purpose) (*Challenge, error)
	FindByCode(ctx context.Context, phone string, purpose Purpose, code string) (*Challenge, error)
	LatestVerified(ctx context.Context, phone string, purpose Purpose) (*Challenge, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
	// MarkVerified flips a still-verifiable challenge; false means another
	// request got there first or the attempts ran out.
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	InvalidateCreatedBefore(ctx context.Context, phone string, purpose Purpose, before, at time.Time) (int64, error)
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, c *Challenge) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *repository) Latest(ctx context.Context, phone string, purpose Purpose) (*Challenge, error) {
	return r.first(ctx, r.db.Where("phone_number = ? AND purpose = ? AND invalidated_at IS NULL", phone, purpose))
}

func (r *repository) FindByCode(ctx context.Context, phone string, purpose Purpose, code string) (*Challenge, error) {
	return r.first(ctx, r.db.Where("phone_number = ? AND purpose = ? AND code = ?", phone, purpose, code))
}

func (r *repository) LatestVerified(ctx context.Context, phone string, purpose Purpose) (*Challenge, error) {
	var c Challenge
	err := r.db.WithContext(ctx).
		Where("phone_number = ? AND purpose = ? AND is_verified = ?", phone, purpose, true).
		Order("verified_at desc").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoChallenge
	}
	return &c, err
}

func (r *repository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Challenge{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

func (r *repository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Challenge{}).
		Where("id = ? AND is_verified = ? AND attempts < ? AND expires_at > ?", id, false, MaxAttempts, at).
		Updates(map[string]interface{}{"is_verified": true, "verified_at": at})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) InvalidateCreatedBefore(ctx context.Context, phone string, purpose Purpose, before, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Challenge{}).
		Where("phone_number = ? AND purpose = ? AND is_verified = ? AND invalidated_at IS NULL AND created_at < ?", phone, purpose, false, before).
		UpdateColumn("invalidated_at", at)
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&Challenge{})
	return res.RowsAffected, res.Error
}

func (r *repository) first(ctx context.Context, q *gorm.DB) (*Challenge, error) {
	var c Challenge
	err := q.WithContext(ctx).Order("created_at desc").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoChallenge
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
