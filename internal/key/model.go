package key

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// APIKey lets a partner system act on an account's wallet. Only the sha256
// of the key is stored.
type APIKey struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	AccountID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"account_id"`
	KeyHash     string         `gorm:"column:key_hash;uniqueIndex;not null" json:"-"`
	MaskedKey   string         `json:"masked_key"`
	Permissions pq.StringArray `gorm:"type:text[]" json:"permissions"`
	Name        string         `json:"name"`
	ExpiresAt   time.Time      `json:"expires_at"`
	IsRevoked   bool           `gorm:"default:false" json:"is_revoked"`
	LastUsedAt  *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (APIKey) TableName() string { return "api_keys" }

func (k *APIKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

func (k *APIKey) Active(now time.Time) bool {
	return !k.IsRevoked && !k.IsExpired(now)
}

type Permission string

const (
	PermissionRead      Permission = "READ"
	PermissionTransfer  Permission = "TRANSFER"
	PermissionReconcile Permission = "RECONCILE"

	// PermissionAll is what an interactive session carries.
	PermissionAll Permission = "*"
)

var AllowedPermissions = []Permission{
	PermissionRead,
	PermissionTransfer,
	PermissionReconcile,
}
