package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/phone"
)

var (
	ErrInvalidCode       = apperror.Validation("Invalid OTP code")
	ErrExpired           = apperror.Validation("OTP has expired, please request a new one")
	ErrTooManyAttempts   = apperror.New(apperror.KindRateLimited, "Too many failed attempts, please request a new OTP")
	ErrNotVerified       = apperror.Unauthorized("Phone number not verified, please verify your phone number first")
	ErrInvalidPurpose    = apperror.Validation("Invalid OTP purpose")
	ErrInvalidPhone      = apperror.Validation("Invalid Nigerian phone number")
	ErrPhoneRegistered   = apperror.Conflict("Phone number already registered")
	ErrPhoneUnregistered = apperror.NotFound("No account found for this phone number")
)

// PhoneRegistry answers whether a phone already owns an account.
type PhoneRegistry interface {
	PhoneExists(ctx context.Context, phone string) (bool, error)
}

// CodeSender delivers the code. Delivery is best effort.
type CodeSender interface {
	OTP(ctx context.Context, phone, code string)
}

type Service struct {
	repo     Repository
	accounts PhoneRegistry
	sender   CodeSender
	now      func() time.Time
	generate func() (string, error)
}

func NewService(repo Repository, accounts PhoneRegistry, sender CodeSender) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		sender:   sender,
		now:      time.Now,
		generate: GenerateCode,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GenerateCode returns a uniformly random six digit code, zero padded.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

func (s *Service) Issue(ctx context.Context, rawPhone string, purpose Purpose) (*Challenge, error) {
	p, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	if !purpose.Valid() {
		return nil, ErrInvalidPurpose
	}

	exists, err := s.accounts.PhoneExists(ctx, p)
	if err != nil {
		return nil, apperror.Internal("check phone", err)
	}
	if purpose == PurposeRegistration && exists {
		return nil, ErrPhoneRegistered
	}
	if purpose != PurposeRegistration && !exists {
		return nil, ErrPhoneUnregistered
	}

	now := s.now()

	latest, err := s.repo.Latest(ctx, p, purpose)
	if err != nil && !errors.Is(err, ErrNoChallenge) {
		return nil, apperror.Internal("load otp", err)
	}
	if latest != nil && !latest.IsExpired(now) {
		if elapsed := now.Sub(latest.CreatedAt); elapsed < ResendCooldown {
			wait := ResendCooldown - elapsed
			return nil, apperror.RateLimited(fmt.Sprintf("Please wait %d seconds before requesting another OTP", int(wait.Seconds()+0.999)), wait)
		}
	}

	if _, err := s.repo.InvalidateCreatedBefore(ctx, p, purpose, now.Add(-CodeTTL), now); err != nil {
		return nil, apperror.Internal("invalidate otp", err)
	}

	code, err := s.generate()
	if err != nil {
		return nil, apperror.Internal("generate otp", err)
	}

	c := &Challenge{
		PhoneNumber: p,
		Purpose:     purpose,
		Code:        code,
		ExpiresAt:   now.Add(CodeTTL),
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, apperror.Internal("store otp", err)
	}

	s.sender.OTP(ctx, p, code)

	logger.Info("OTP issued", logger.Fields{logger.PhoneKey: phone.Mask(p), "purpose": string(purpose)})
	return c, nil
}

func (s *Service) Verify(ctx context.Context, rawPhone string, purpose Purpose, code string) (*Challenge, error) {
	p, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	if !purpose.Valid() {
		return nil, ErrInvalidPurpose
	}

	now := s.now()

	c, err := s.repo.Latest(ctx, p, purpose)
	if errors.Is(err, ErrNoChallenge) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, apperror.Internal("load otp", err)
	}

	switch {
	case c.IsVerified:
		return nil, ErrInvalidCode
	case c.IsExpired(now):
		return nil, ErrExpired
	case c.Attempts >= MaxAttempts:
		return nil, ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) != 1 {
		s.recordFailure(ctx, p, purpose, c, code)
		return nil, ErrInvalidCode
	}

	ok, err := s.repo.MarkVerified(ctx, c.ID, now)
	if err != nil {
		return nil, apperror.Internal("mark otp verified", err)
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	c.IsVerified = true
	c.VerifiedAt = &now
	logger.Info("OTP verified", logger.Fields{logger.PhoneKey: phone.Mask(p), "purpose": string(purpose)})
	return c, nil
}

// recordFailure charges the attempt to the live challenge and to any older
// challenge whose code matches the one tried.
func (s *Service) recordFailure(ctx context.Context, p string, purpose Purpose, live *Challenge, tried string) {
	if err := s.repo.IncrementAttempts(ctx, live.ID); err != nil {
		logger.Error("Failed to record OTP attempt", logger.WithError(err))
	}

	other, err := s.repo.FindByCode(ctx, p, purpose, tried)
	if err == nil && other.ID != live.ID {
		if err := s.repo.IncrementAttempts(ctx, other.ID); err != nil {
			logger.Error("Failed to record OTP attempt", logger.WithError(err))
		}
	}

	logger.Warn("OTP verification failed", logger.Fields{
		logger.PhoneKey: phone.Mask(p),
		"purpose":       string(purpose),
		"attempts":      live.Attempts + 1,
	})
}

// RequireRecent succeeds when the phone verified a challenge for purpose
// within VerifiedWindow.
func (s *Service) RequireRecent(ctx context.Context, p string, purpose Purpose) error {
	c, err := s.repo.LatestVerified(ctx, p, purpose)
	if errors.Is(err, ErrNoChallenge) {
		return ErrNotVerified
	}
	if err != nil {
		return apperror.Internal("load verified otp", err)
	}
	if c.VerifiedAt == nil || s.now().Sub(*c.VerifiedAt) > VerifiedWindow {
		return ErrNotVerified
	}
	return nil
}

// Purge deletes challenges that expired more than Retention ago.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredBefore(ctx, s.now().Add(-Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("Purged expired OTP challenges", logger.Fields{"count": n})
	}
	return n, nil
}
