package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/internal/kyc"
	"github.com/zjoart/go-monnify-wallet/internal/otp"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
	"github.com/zjoart/go-monnify-wallet/pkg/phone"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

const (
	dateLayout    = "02-01-2006"
	maxNameLength = 50
)

var (
	ErrInvalidCredentials = apperror.Unauthorized("Invalid credentials")
	ErrAccountInactive    = apperror.Unauthorized("Account is not active. Please contact support.")

	pinPattern = regexp.MustCompile(`^\d{6}$`)
)

type OTPGate interface {
	RequireRecent(ctx context.Context, phone string, purpose otp.Purpose) error
}

type KYC interface {
	VerifyIdentity(ctx context.Context, req kyc.IdentityRequest) (*kyc.CustomerRecord, error)
	Verified(ctx context.Context, phone string, kind account.VerificationType, number string) (*kyc.CustomerRecord, error)
	Forget(ctx context.Context, rec *kyc.CustomerRecord)
	ProvisionWallet(ctx context.Context, info kyc.CustomerInfo) (*monnify.Wallet, error)
}

type Welcomer interface {
	Welcome(ctx context.Context, to, name, accountNumber string)
}

type IdentityInput struct {
	PhoneNumber      string
	VerificationType account.VerificationType
	Number           string
	DateOfBirth      string
}

type RegistrationInput struct {
	PhoneNumber      string
	VerificationType account.VerificationType
	Number           string
	FirstName        string
	MiddleName       string
	LastName         string
	Email            string
	Gender           string
	Address          string
	State            string
	LGA              string
	Password         string
}

// Session is what a successful registration or login hands back.
type Session struct {
	Account   *account.Account
	Wallet    *wallet.Wallet
	Token     string
	ExpiresAt time.Time
}

type Service struct {
	accounts account.Repository
	wallets  wallet.Store
	uow      UnitOfWork
	otp      OTPGate
	kyc      KYC
	welcomer Welcomer
	tokens   *Tokens
	now      func() time.Time
}

func NewService(accounts account.Repository, wallets wallet.Store, uow UnitOfWork, gate OTPGate, k KYC, welcomer Welcomer, tokens *Tokens) *Service {
	return &Service{
		accounts: accounts,
		wallets:  wallets,
		uow:      uow,
		otp:      gate,
		kyc:      k,
		welcomer: welcomer,
		tokens:   tokens,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.tokens.now = now
	return s
}

// VerifyIdentity confirms a BVN or NIN for a phone that passed the
// registration OTP.
func (s *Service) VerifyIdentity(ctx context.Context, in IdentityInput) (*kyc.CustomerRecord, error) {
	p, err := phone.Normalize(in.PhoneNumber)
	if err != nil {
		return nil, otp.ErrInvalidPhone
	}
	if err := s.otp.RequireRecent(ctx, p, otp.PurposeRegistration); err != nil {
		return nil, err
	}

	var dob time.Time
	if strings.TrimSpace(in.DateOfBirth) != "" {
		dob, err = time.Parse(dateLayout, strings.TrimSpace(in.DateOfBirth))
		if err != nil {
			return nil, apperror.Validation("Date of birth must be in DD-MM-YYYY format")
		}
	}

	return s.kyc.VerifyIdentity(ctx, kyc.IdentityRequest{
		Phone:       p,
		Type:        account.VerificationType(strings.ToLower(string(in.VerificationType))),
		Number:      in.Number,
		DateOfBirth: dob,
	})
}

func validateRegistration(in *RegistrationInput) error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.MiddleName = strings.TrimSpace(in.MiddleName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Gender = strings.ToLower(strings.TrimSpace(in.Gender))
	in.VerificationType = account.VerificationType(strings.ToLower(string(in.VerificationType)))

	if !in.VerificationType.Valid() {
		return kyc.ErrInvalidType
	}
	if in.FirstName == "" || in.LastName == "" {
		return apperror.Validation("First name and last name are required")
	}
	for _, name := range []string{in.FirstName, in.MiddleName, in.LastName} {
		if len([]rune(name)) > maxNameLength {
			return apperror.Validation(fmt.Sprintf("Names must not exceed %d characters", maxNameLength))
		}
	}
	if in.Gender != "male" && in.Gender != "female" {
		return apperror.Validation("Gender must be male or female")
	}
	if in.Email != "" {
		if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
			return apperror.Validation("Invalid email address")
		}
	}
	if !pinPattern.MatchString(in.Password) {
		return apperror.Validation("Password must be a 6-digit PIN")
	}
	return nil
}

// CompleteRegistration turns a verified phone and identity into an active
// account with a provisioned wallet. The account row, the provider wallet
// and the local wallet row commit together.
func (s *Service) CompleteRegistration(ctx context.Context, in RegistrationInput) (*Session, error) {
	p, err := phone.Normalize(in.PhoneNumber)
	if err != nil {
		return nil, otp.ErrInvalidPhone
	}
	in.Number = strings.TrimSpace(in.Number)
	if err := validateRegistration(&in); err != nil {
		return nil, err
	}

	if err := s.otp.RequireRecent(ctx, p, otp.PurposeRegistration); err != nil {
		return nil, err
	}
	rec, err := s.kyc.Verified(ctx, p, in.VerificationType, in.Number)
	if err != nil {
		return nil, err
	}

	taken, err := s.accounts.PhoneExists(ctx, p)
	if err != nil {
		return nil, apperror.Internal("check phone", err)
	}
	if taken {
		return nil, otp.ErrPhoneRegistered
	}
	if in.Email != "" {
		taken, err := s.accounts.EmailExists(ctx, in.Email)
		if err != nil {
			return nil, apperror.Internal("check email", err)
		}
		if taken {
			return nil, apperror.Conflict("Email already registered")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal("hash password", err)
	}

	now := s.now().UTC()
	acc := &account.Account{
		PhoneNumber:      p,
		PhoneVerifiedAt:  &now,
		PasswordHash:     string(hash),
		FirstName:        in.FirstName,
		MiddleName:       in.MiddleName,
		LastName:         in.LastName,
		DateOfBirth:      rec.DateOfBirth,
		Gender:           in.Gender,
		Address:          in.Address,
		State:            in.State,
		LGA:              in.LGA,
		VerificationType: in.VerificationType,
		KYCLevel:         account.Tier1,
		KYCVerifiedAt:    &now,
		Status:           account.StatusActive,
	}
	if in.Email != "" {
		acc.Email = &in.Email
	}
	number := rec.Number
	info := kyc.CustomerInfo{Phone: p, FullName: acc.FullName(), Email: in.Email}
	switch in.VerificationType {
	case account.VerificationBVN:
		acc.BVN = &number
		acc.BVNVerified = true
		info.BVN = number
		info.BVNDateOfBirth = rec.DateOfBirth
	case account.VerificationNIN:
		acc.NIN = &number
		acc.NINVerified = true
	}

	var created *wallet.Wallet
	err = s.uow.Do(ctx, func(accounts account.Repository, wallets wallet.Store) error {
		if err := accounts.Create(ctx, acc); err != nil {
			return err
		}

		pw, err := s.kyc.ProvisionWallet(ctx, info)
		if err != nil {
			return err
		}
		if pw.CustomerID != "" {
			acc.ProviderCustomerID = &pw.CustomerID
		}
		data, err := json.Marshal(map[string]string{"customerId": pw.CustomerID, "walletId": pw.WalletID})
		if err != nil {
			return err
		}
		acc.ProviderData = datatypes.JSON(data)
		if err := accounts.Save(ctx, acc); err != nil {
			return err
		}

		w := wallet.New(acc, pw, now)
		if err := wallets.CreateWallet(ctx, w); err != nil {
			return err
		}
		created = w
		return nil
	})
	if err != nil {
		logger.Error("registration rolled back", logger.Merge(logger.WithError(err), logger.Fields{logger.PhoneKey: phone.Mask(p)}))
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.Internal("complete registration", err)
	}

	s.kyc.Forget(ctx, rec)
	s.welcomer.Welcome(ctx, p, acc.FirstName, created.AccountNumber)

	token, exp, err := s.tokens.Issue(acc)
	if err != nil {
		return nil, apperror.Internal("issue token", err)
	}

	logger.Info("registration completed", logger.Fields{
		logger.AccountIDKey: acc.ID.String(),
		logger.WalletIDKey:  created.ID.String(),
		logger.PhoneKey:     phone.Mask(p),
	})
	return &Session{Account: acc, Wallet: created, Token: token, ExpiresAt: exp}, nil
}

func (s *Service) Login(ctx context.Context, rawPhone, password string) (*Session, error) {
	p, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	acc, err := s.accounts.FindByPhone(ctx, p)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperror.Internal("load account", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if acc.PhoneVerifiedAt == nil || !acc.IsActive() {
		return nil, ErrAccountInactive
	}

	now := s.now().UTC()
	if err := s.accounts.TouchLogin(ctx, acc.ID, now); err != nil {
		logger.Warn("failed to record login", logger.Merge(logger.WithError(err), logger.Fields{logger.AccountIDKey: acc.ID.String()}))
	}
	acc.LastLoginAt = &now

	w, err := s.wallets.GetWalletByAccountID(ctx, acc.ID)
	if err != nil && !errors.Is(err, wallet.ErrWalletNotFound) {
		return nil, err
	}

	token, exp, err := s.tokens.Issue(acc)
	if err != nil {
		return nil, apperror.Internal("issue token", err)
	}
	return &Session{Account: acc, Wallet: w, Token: token, ExpiresAt: exp}, nil
}

// Profile returns the caller's account with its wallet, which may be nil.
func (s *Service) Profile(ctx context.Context, acc *account.Account) (*wallet.Wallet, error) {
	w, err := s.wallets.GetWalletByAccountID(ctx, acc.ID)
	if errors.Is(err, wallet.ErrWalletNotFound) {
		return nil, nil
	}
	return w, err
}
