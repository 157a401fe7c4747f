package key

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
)

const keyPrefix = "sk_live_"

var (
	ErrInvalidExpiry = apperror.Validation("Invalid expiry format. Use 1H, 1D, 1M, 1Y")
	ErrRevoked       = apperror.New(apperror.KindForbidden, "Key has been revoked")
	ErrNotExpired    = apperror.Validation("Key is not expired yet")
)

type Service struct {
	repo      Repository
	maxActive int
	now       func() time.Time
}

func NewService(repo Repository, maxActive int) *Service {
	return &Service{repo: repo, maxActive: maxActive, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issued carries the plain key. It is returned once and never stored.
type Issued struct {
	Key    *APIKey
	Secret string
}

func (s *Service) Create(ctx context.Context, accountID uuid.UUID, name string, permissions []string, expiry string) (*Issued, error) {
	perms, err := validatePermissions(permissions)
	if err != nil {
		return nil, err
	}
	expiresAt, err := s.parseExpiry(expiry)
	if err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, accountID); err != nil {
		return nil, err
	}
	return s.issue(ctx, accountID, strings.TrimSpace(name), pq.StringArray(perms), expiresAt)
}

// Rollover replaces an expired key with a fresh one carrying the same name
// and permissions. ref is either the old key's id or its value.
func (s *Service) Rollover(ctx context.Context, accountID uuid.UUID, ref, expiry string) (*Issued, error) {
	old, err := s.lookup(ctx, accountID, ref)
	if err != nil {
		return nil, err
	}
	if old.IsRevoked {
		return nil, ErrRevoked
	}
	if !old.IsExpired(s.now()) {
		return nil, ErrNotExpired
	}

	expiresAt, err := s.parseExpiry(expiry)
	if err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, accountID); err != nil {
		return nil, err
	}
	return s.issue(ctx, accountID, old.Name, old.Permissions, expiresAt)
}

func (s *Service) Revoke(ctx context.Context, accountID, id uuid.UUID) error {
	return s.repo.Revoke(ctx, id, accountID)
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]APIKey, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// Authenticate resolves a presented key to a usable APIKey.
func (s *Service) Authenticate(ctx context.Context, value string) (*APIKey, error) {
	if !strings.HasPrefix(value, keyPrefix) {
		return nil, apperror.Unauthorized("Invalid API Key")
	}
	k, err := s.repo.FindByValue(ctx, value)
	if errors.Is(err, ErrNotFound) {
		return nil, apperror.Unauthorized("Invalid API Key")
	}
	if err != nil {
		return nil, apperror.Internal("look up api key", err)
	}

	now := s.now()
	switch {
	case k.IsRevoked:
		return nil, apperror.Unauthorized("API Key revoked")
	case k.IsExpired(now):
		return nil, apperror.Unauthorized("API key has expired")
	}

	if err := s.repo.TouchUsed(ctx, k.ID, now); err != nil {
		logger.Warn("Failed to record API key use", logger.WithError(err))
	}
	return k, nil
}

func (s *Service) lookup(ctx context.Context, accountID uuid.UUID, ref string) (*APIKey, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.repo.Get(ctx, id, accountID)
	}
	k, err := s.repo.FindByValue(ctx, ref)
	if err != nil {
		return nil, err
	}
	if k.AccountID != accountID {
		return nil, ErrNotFound
	}
	return k, nil
}

func (s *Service) checkQuota(ctx context.Context, accountID uuid.UUID) error {
	count, err := s.repo.CountActive(ctx, accountID, s.now())
	if err != nil {
		return apperror.Internal("count api keys", err)
	}
	if count >= int64(s.maxActive) {
		return apperror.New(apperror.KindForbidden, fmt.Sprintf("Maximum of %d active keys allowed", s.maxActive))
	}
	return nil
}

func (s *Service) issue(ctx context.Context, accountID uuid.UUID, name string, perms pq.StringArray, expiresAt time.Time) (*Issued, error) {
	secret, err := generateSecureKey()
	if err != nil {
		return nil, apperror.Internal("generate api key", err)
	}

	k := &APIKey{
		AccountID:   accountID,
		Name:        name,
		KeyHash:     hashKey(secret),
		MaskedKey:   maskKey(secret),
		Permissions: perms,
		ExpiresAt:   expiresAt,
	}
	if err := s.repo.Create(ctx, k); err != nil {
		return nil, err
	}

	logger.Info("API key issued", logger.Fields{
		logger.AccountIDKey: accountID.String(),
		"masked_key":        k.MaskedKey,
		"permissions":       strings.Join(perms, ","),
	})
	return &Issued{Key: k, Secret: secret}, nil
}

func (s *Service) parseExpiry(expiry string) (time.Time, error) {
	now := s.now()
	switch strings.ToUpper(strings.TrimSpace(expiry)) {
	case "1H":
		return now.Add(time.Hour), nil
	case "1D":
		return now.Add(24 * time.Hour), nil
	case "1M":
		return now.AddDate(0, 1, 0), nil
	case "1Y":
		return now.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, ErrInvalidExpiry
	}
}

func generateSecureKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return keyPrefix + hex.EncodeToString(b), nil
}

func validatePermissions(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, apperror.Validation("At least one permission is required")
	}
	seen := map[string]bool{}
	var normalized []string
	for _, p := range requested {
		upper := strings.ToUpper(strings.TrimSpace(p))
		valid := false
		for _, allowed := range AllowedPermissions {
			if Permission(upper) == allowed {
				valid = true
				break
			}
		}
		if !valid {
			return nil, apperror.Validation("Invalid permission: " + p)
		}
		if !seen[upper] {
			seen[upper] = true
			normalized = append(normalized, upper)
		}
	}
	return normalized, nil
}

func maskKey(key string) string {
	if len(key) <= 12 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
