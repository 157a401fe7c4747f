package otp

import (
	"time"

	"github.com/google/uuid"
)

type Purpose string

const (
	PurposeRegistration  Purpose = "registration"
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegistration, PurposeLogin, PurposePasswordReset:
		return true
	}
	return false
}

const (
	CodeLength     = 6
	CodeTTL        = 5 * time.Minute
	MaxAttempts    = 3
	ResendCooldown = 60 * time.Second
	VerifiedWindow = 10 * time.Minute
	Retention      = 24 * time.Hour
)

// Challenge is one issued code. Rows outlive their expiry for Retention so
// fraud reviews can see what was sent and tried.
type Challenge struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	PhoneNumber   string     `gorm:"not null;index:idx_otp_phone_purpose" json:"phone_number"`
	Purpose       Purpose    `gorm:"not null;index:idx_otp_phone_purpose" json:"purpose"`
	Code          string     `gorm:"not null" json:"-"`
	ExpiresAt     time.Time  `gorm:"not null;index" json:"expires_at"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	IsVerified    bool       `gorm:"not null;default:false" json:"is_verified"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Challenge) TableName() string { return "otp_challenges" }

func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsValid reports whether the code may still be accepted.
func (c *Challenge) IsValid(now time.Time) bool {
	return !c.IsVerified &&
		c.InvalidatedAt == nil &&
		!c.IsExpired(now) &&
		c.Attempts < MaxAttempts
}
