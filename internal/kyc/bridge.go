// Package kyc verifies customer identities and provisions provider wallets.
package kyc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/id"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
	"github.com/zjoart/go-monnify-wallet/pkg/phone"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

const (
	// RecordTTL is how long a verified identity stays usable for registration.
	RecordTTL = time.Hour

	maxCreateAttempts = 2
	placeholderDomain = "hijaz.app"
)

var (
	ErrInvalidNumber  = apperror.Validation("BVN or NIN must be 11 digits")
	ErrDateOfBirth    = apperror.Validation("Date of birth is required for BVN verification")
	ErrInvalidType    = apperror.Validation("Verification type must be bvn or nin")
	ErrNotVerified    = apperror.New(apperror.KindForbidden, "Identity verification not found or expired, please verify again")
	ErrBVNInUse       = apperror.Conflict("BVN is already linked to another account")
	ErrNINInUse       = apperror.Conflict("NIN is already linked to another account")
	errCorruptedEntry = errors.New("kyc: corrupted cache entry")
)

// Provider is the part of the Monnify client the bridge needs.
type Provider interface {
	VerifyBVN(ctx context.Context, bvn string, dateOfBirth time.Time) (*monnify.IdentityRecord, error)
	VerifyNIN(ctx context.Context, nin string) (*monnify.IdentityRecord, error)
	CreateWallet(ctx context.Context, req monnify.CreateWalletRequest) (*monnify.Wallet, error)
	FindWallet(ctx context.Context, walletReference string) (*monnify.Wallet, error)
}

type IdentityIndex interface {
	IdentityExists(ctx context.Context, kind account.VerificationType, number string) (bool, error)
}

type IdentityRequest struct {
	Phone       string
	Type        account.VerificationType
	Number      string
	DateOfBirth time.Time
}

// CustomerRecord is the identity the provider confirmed.
type CustomerRecord struct {
	Phone         string                   `json:"phone"`
	Type          account.VerificationType `json:"type"`
	Number        string                   `json:"number"`
	FirstName     string                   `json:"first_name"`
	MiddleName    string                   `json:"middle_name,omitempty"`
	LastName      string                   `json:"last_name"`
	DateOfBirth   time.Time                `json:"date_of_birth"`
	Gender        string                   `json:"gender,omitempty"`
	ProviderPhone string                   `json:"provider_phone,omitempty"`
	Raw           json.RawMessage          `json:"raw,omitempty"`
	VerifiedAt    time.Time                `json:"verified_at"`
}

type CustomerInfo struct {
	Phone          string
	FullName       string
	Email          string
	BVN            string
	BVNDateOfBirth time.Time
}

type Bridge struct {
	provider   Provider
	identities IdentityIndex
	cache      monnify.Cache
	now        func() time.Time
}

func NewBridge(provider Provider, identities IdentityIndex, cache monnify.Cache) *Bridge {
	return &Bridge{provider: provider, identities: identities, cache: cache, now: time.Now}
}

func (b *Bridge) WithClock(now func() time.Time) *Bridge {
	b.now = now
	return b
}

// VerifyIdentity checks local uniqueness, asks the provider to confirm the
// identity and caches the confirmed record for registration.
func (b *Bridge) VerifyIdentity(ctx context.Context, req IdentityRequest) (*CustomerRecord, error) {
	normalized, err := phone.Normalize(req.Phone)
	if err != nil {
		return nil, apperror.Validation("Invalid phone number")
	}
	req.Phone = normalized
	req.Number = strings.TrimSpace(req.Number)

	if !req.Type.Valid() {
		return nil, ErrInvalidType
	}
	if len(req.Number) != 11 || strings.Trim(req.Number, "0123456789") != "" {
		return nil, ErrInvalidNumber
	}
	if req.Type == account.VerificationBVN && req.DateOfBirth.IsZero() {
		return nil, ErrDateOfBirth
	}

	taken, err := b.identities.IdentityExists(ctx, req.Type, req.Number)
	if err != nil {
		return nil, fmt.Errorf("check identity: %w", err)
	}
	if taken {
		if req.Type == account.VerificationBVN {
			return nil, ErrBVNInUse
		}
		return nil, ErrNINInUse
	}

	var rec *monnify.IdentityRecord
	if req.Type == account.VerificationBVN {
		rec, err = b.provider.VerifyBVN(ctx, req.Number, req.DateOfBirth)
	} else {
		rec, err = b.provider.VerifyNIN(ctx, req.Number)
	}
	if err != nil {
		return nil, verificationError(req.Type, err)
	}

	record := &CustomerRecord{
		Phone:         req.Phone,
		Type:          req.Type,
		Number:        req.Number,
		FirstName:     strings.TrimSpace(rec.FirstName),
		MiddleName:    strings.TrimSpace(rec.MiddleName),
		LastName:      strings.TrimSpace(rec.LastName),
		DateOfBirth:   parseDate(rec.DateOfBirth, req.DateOfBirth),
		Gender:        strings.ToLower(rec.Gender),
		ProviderPhone: rec.PhoneNumber,
		Raw:           rec.Raw,
		VerifiedAt:    b.now().UTC(),
	}
	if record.FirstName == "" || record.LastName == "" {
		return nil, apperror.Validation("Identity record is missing the customer's name")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if err := b.cache.Set(ctx, cacheKey(req.Phone, req.Type, req.Number), payload, RecordTTL); err != nil {
		return nil, fmt.Errorf("cache identity: %w", err)
	}

	logger.Info("identity verified", logger.Fields{
		logger.PhoneKey: phone.Mask(req.Phone),
		"type":          string(req.Type),
		"number":        utils.MaskIdentifier(req.Number),
	})
	return record, nil
}

// Verified returns the record cached by a recent VerifyIdentity.
func (b *Bridge) Verified(ctx context.Context, phoneNumber string, kind account.VerificationType, number string) (*CustomerRecord, error) {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, apperror.Validation("Invalid phone number")
	}

	raw, err := b.cache.Get(ctx, cacheKey(normalized, kind, strings.TrimSpace(number)))
	if errors.Is(err, monnify.ErrCacheMiss) {
		return nil, ErrNotVerified
	}
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}

	var rec CustomerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errCorruptedEntry
	}
	return &rec, nil
}

// Forget drops a cached record once registration has consumed it.
func (b *Bridge) Forget(ctx context.Context, rec *CustomerRecord) {
	if err := b.cache.Delete(ctx, cacheKey(rec.Phone, rec.Type, rec.Number)); err != nil {
		logger.Warn("failed to drop identity record", logger.WithError(err))
	}
}

// ProvisionWallet creates the customer's provider wallet. The wallet
// reference is derived from the phone, so an attempt whose outcome was lost
// is found on the provider instead of creating a second wallet.
func (b *Bridge) ProvisionWallet(ctx context.Context, info CustomerInfo) (*monnify.Wallet, error) {
	ref := id.WalletReference(info.Phone)
	req := monnify.CreateWalletRequest{
		WalletReference:     ref,
		WalletName:          info.FullName + " Wallet",
		CustomerName:        info.FullName,
		CustomerEmail:       info.Email,
		CustomerPhoneNumber: info.Phone,
	}
	if req.CustomerEmail == "" {
		req.CustomerEmail = info.Phone + "@" + placeholderDomain
	}
	if info.BVN != "" {
		req.BVNDetails = &monnify.BVNDetails{BVN: info.BVN, BVNDateOfBirth: info.BVNDateOfBirth.Format("2006-01-02")}
	}

	var lastErr error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		w, err := b.provider.CreateWallet(ctx, req)
		if err == nil {
			return w, nil
		}
		lastErr = err

		existing, findErr := b.provider.FindWallet(ctx, ref)
		if findErr == nil {
			logger.Info("provider wallet already existed", logger.Fields{logger.ReferenceKey: ref})
			return existing, nil
		}
		if !errors.Is(findErr, monnify.ErrNotFound) {
			return nil, apperror.Provider("look up provider wallet", findErr)
		}

		if monnify.IsRejected(err) {
			return nil, apperror.Wrap(apperror.KindValidation, "Wallet provisioning failed: "+monnify.Message(err), err)
		}
		if !monnify.IsTemporary(err) {
			break
		}
		logger.Warn("wallet creation outcome unknown, retrying", logger.Fields{
			logger.ReferenceKey: ref,
			"attempt":           attempt,
		})
	}
	return nil, apperror.Provider("create provider wallet", lastErr)
}

func verificationError(kind account.VerificationType, err error) error {
	if monnify.IsRejected(err) {
		msg := monnify.Message(err)
		if msg == "" {
			msg = strings.ToUpper(string(kind)) + " verification failed"
		}
		return apperror.Wrap(apperror.KindValidation, msg, err)
	}
	return apperror.Provider("verify "+string(kind), err)
}

// parseDate accepts the formats the provider has been seen to return.
func parseDate(s string, fallback time.Time) time.Time {
	for _, layout := range []string{"2006-01-02", "02-01-2006", "02-Jan-2006", time.RFC3339} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t
		}
	}
	return fallback
}

func cacheKey(phoneNumber string, kind account.VerificationType, number string) string {
	sum := sha256.Sum256([]byte(phoneNumber + "|" + string(kind) + "|" + number))
	return "kyc:verified:" + hex.EncodeToString(sum[:])
}
