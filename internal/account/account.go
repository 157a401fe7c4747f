package account

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusClosed    Status = "closed"
)

type VerificationType string

const (
	VerificationBVN VerificationType = "bvn"
	VerificationNIN VerificationType = "nin"
)

func (v VerificationType) Valid() bool {
	return v == VerificationBVN || v == VerificationNIN
}

type Account struct {
	ID                 uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	PhoneNumber        string           `gorm:"uniqueIndex;not null" json:"phone_number"`
	PhoneVerifiedAt    *time.Time       `json:"phone_verified_at,omitempty"`
	Email              *string          `gorm:"uniqueIndex" json:"email,omitempty"`
	PasswordHash       string           `gorm:"not null" json:"-"`
	FirstName          string           `gorm:"not null" json:"first_name"`
	MiddleName         string           `json:"middle_name,omitempty"`
	LastName           string           `gorm:"not null" json:"last_name"`
	DateOfBirth        time.Time        `gorm:"type:date" json:"date_of_birth"`
	Gender             string           `json:"gender"`
	Address            string           `json:"address,omitempty"`
	State              string           `json:"state,omitempty"`
	LGA                string           `gorm:"column:lga" json:"lga,omitempty"`
	BVN                *string          `gorm:"column:bvn;uniqueIndex" json:"-"`
	NIN                *string          `gorm:"column:nin;uniqueIndex" json:"-"`
	VerificationType   VerificationType `gorm:"not null" json:"verification_type"`
	BVNVerified        bool             `gorm:"column:bvn_verified;default:false" json:"bvn_verified"`
	NINVerified        bool             `gorm:"column:nin_verified;default:false" json:"nin_verified"`
	KYCLevel           Tier             `gorm:"column:kyc_level;not null;default:tier_0" json:"kyc_level"`
	KYCVerifiedAt      *time.Time       `gorm:"column:kyc_verified_at" json:"kyc_verified_at,omitempty"`
	Status             Status           `gorm:"not null;default:pending" json:"status"`
	ProviderCustomerID *string          `gorm:"uniqueIndex" json:"-"`
	ProviderData       datatypes.JSON   `json:"-"`
	LastLoginAt        *time.Time       `json:"last_login_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func (a *Account) FullName() string {
	parts := []string{a.FirstName}
	if a.MiddleName != "" {
		parts = append(parts, a.MiddleName)
	}
	parts = append(parts, a.LastName)
	return strings.Join(parts, " ")
}

func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// RaiseTier moves the account up to tier; it never lowers it.
func (a *Account) RaiseTier(tier Tier, at time.Time) bool {
	if tier.Rank() <= a.KYCLevel.Rank() {
		return false
	}
	a.KYCLevel = tier
	a.KYCVerifiedAt = &at
	return true
}

// Tier is the KYC level; it sets the wallet's spending limits.
type Tier string

const (
	Tier0 Tier = "tier_0"
	Tier1 Tier = "tier_1"
	Tier2 Tier = "tier_2"
	Tier3 Tier = "tier_3"
)

type Limits struct {
	Daily   decimal.Decimal
	Monthly decimal.Decimal
}

var tierLimits = map[Tier]Limits{
	Tier0: {Daily: decimal.Zero, Monthly: decimal.Zero},
	Tier1: {Daily: decimal.NewFromInt(50000), Monthly: decimal.NewFromInt(200000)},
	Tier2: {Daily: decimal.NewFromInt(200000), Monthly: decimal.NewFromInt(500000)},
	Tier3: {Daily: decimal.NewFromInt(5000000), Monthly: decimal.NewFromInt(5000000)},
}

func (t Tier) Limits() Limits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[Tier0]
}

func (t Tier) Rank() int {
	switch t {
	case Tier1:
		return 1
	case Tier2:
		return 2
	case Tier3:
		return 3
	default:
		return 0
	}
}
