package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/internal/kyc"
	"github.com/zjoart/go-monnify-wallet/internal/otp"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"github.com/zjoart/go-monnify-wallet/internal/wallet/wallettest"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type memAccounts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]account.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[uuid.UUID]account.Account{}}
}

func (m *memAccounts) WithTx(tx *gorm.DB) account.Repository { return m }

func (m *memAccounts) Create(ctx context.Context, acc *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.PhoneNumber == acc.PhoneNumber {
			return apperror.Conflict("Phone number already registered")
		}
	}
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	acc.CreatedAt = time.Now()
	m.rows[acc.ID] = *acc
	return nil
}

func (m *memAccounts) Save(ctx context.Context, acc *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[acc.ID] = *acc
	return nil
}

func (m *memAccounts) FindByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &row, nil
}

func (m *memAccounts) FindByPhone(ctx context.Context, p string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.PhoneNumber == p {
			return &row, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *memAccounts) PhoneExists(ctx context.Context, p string) (bool, error) {
	_, err := m.FindByPhone(ctx, p)
	return err == nil, nil
}

func (m *memAccounts) EmailExists(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Email != nil && *row.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAccounts) IdentityExists(ctx context.Context, kind account.VerificationType, number string) (bool, error) {
	return false, nil
}

func (m *memAccounts) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.LastLoginAt = &at
	m.rows[id] = row
	return nil
}

func (m *memAccounts) snapshot() map[uuid.UUID]account.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[uuid.UUID]account.Account, len(m.rows))
	for k, v := range m.rows {
		cp[k] = v
	}
	return cp
}

func (m *memAccounts) restore(rows map[uuid.UUID]account.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = rows
}

// memUnitOfWork rolls both repositories back when fn fails.
type memUnitOfWork struct {
	accounts *memAccounts
	wallets  *wallettest.Store
}

func (u *memUnitOfWork) Do(ctx context.Context, fn func(accounts account.Repository, wallets wallet.Store) error) error {
	return u.wallets.WithinTx(ctx, func(tx wallet.Store) error {
		saved := u.accounts.snapshot()
		if err := fn(u.accounts, tx); err != nil {
			u.accounts.restore(saved)
			return err
		}
		return nil
	})
}

type gate struct {
	verified map[string]bool
}

func (g *gate) RequireRecent(ctx context.Context, p string, purpose otp.Purpose) error {
	if purpose != otp.PurposeRegistration || !g.verified[p] {
		return otp.ErrNotVerified
	}
	return nil
}

type fakeKYC struct {
	records   map[string]*kyc.CustomerRecord
	provision func(kyc.CustomerInfo) (*monnify.Wallet, error)
	provided  []kyc.CustomerInfo
	forgotten int
}

func (f *fakeKYC) VerifyIdentity(ctx context.Context, req kyc.IdentityRequest) (*kyc.CustomerRecord, error) {
	if req.Type == account.VerificationBVN && req.DateOfBirth.IsZero() {
		return nil, kyc.ErrDateOfBirth
	}
	rec := &kyc.CustomerRecord{
		Phone:       req.Phone,
		Type:        req.Type,
		Number:      req.Number,
		FirstName:   "Ada",
		LastName:    "Obi",
		DateOfBirth: req.DateOfBirth,
	}
	f.records[req.Phone+string(req.Type)+req.Number] = rec
	return rec, nil
}

func (f *fakeKYC) Verified(ctx context.Context, p string, kind account.VerificationType, number string) (*kyc.CustomerRecord, error) {
	rec, ok := f.records[p+string(kind)+number]
	if !ok {
		return nil, kyc.ErrNotVerified
	}
	return rec, nil
}

func (f *fakeKYC) Forget(ctx context.Context, rec *kyc.CustomerRecord) {
	f.forgotten++
	delete(f.records, rec.Phone+string(rec.Type)+rec.Number)
}

func (f *fakeKYC) ProvisionWallet(ctx context.Context, info kyc.CustomerInfo) (*monnify.Wallet, error) {
	f.provided = append(f.provided, info)
	return f.provision(info)
}

type welcomes struct {
	sent []string
}

func (w *welcomes) Welcome(ctx context.Context, to, name, accountNumber string) {
	w.sent = append(w.sent, to+":"+accountNumber)
}

type fixture struct {
	svc      *Service
	accounts *memAccounts
	wallets  *wallettest.Store
	gate     *gate
	kyc      *fakeKYC
	welcomes *welcomes
	tokens   *Tokens
}

const testPhone = "2348012345678"

var testNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		accounts: newMemAccounts(),
		wallets:  wallettest.New(),
		gate:     &gate{verified: map[string]bool{testPhone: true}},
		kyc: &fakeKYC{
			records: map[string]*kyc.CustomerRecord{},
			provision: func(info kyc.CustomerInfo) (*monnify.Wallet, error) {
				return &monnify.Wallet{
					WalletID:        "W-1",
					WalletReference: "WLT-" + info.Phone,
					AccountNumber:   "5000000001",
					AccountName:     info.FullName,
					CustomerID:      "CUS-1",
				}, nil
			},
		},
		welcomes: &welcomes{},
		tokens:   NewTokens("test-secret", 24*time.Hour),
	}
	f.wallets.SetClock(func() time.Time { return testNow })
	f.svc = NewService(f.accounts, f.wallets, &memUnitOfWork{accounts: f.accounts, wallets: f.wallets}, f.gate, f.kyc, f.welcomes, f.tokens).
		WithClock(func() time.Time { return testNow })
	return f
}

func (f *fixture) verifyBVN(t *testing.T) {
	t.Helper()
	_, err := f.svc.VerifyIdentity(context.Background(), IdentityInput{
		PhoneNumber:      "08012345678",
		VerificationType: "BVN",
		Number:           "12345678901",
		DateOfBirth:      "09-03-1990",
	})
	require.NoError(t, err)
}

func registration() RegistrationInput {
	return RegistrationInput{
		PhoneNumber:      "08012345678",
		VerificationType: account.VerificationBVN,
		Number:           "12345678901",
		FirstName:        "Ada",
		LastName:         "Obi",
		Email:            "ada@example.com",
		Gender:           "Female",
		Password:         "123456",
	}
}

func TestVerifyIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.VerifyIdentity(ctx, IdentityInput{
		PhoneNumber:      "+234 801 234 5678",
		VerificationType: "bvn",
		Number:           "12345678901",
		DateOfBirth:      "09-03-1990",
	})
	require.NoError(t, err)
	assert.Equal(t, testPhone, rec.Phone)
	assert.Equal(t, time.Date(1990, 3, 9, 0, 0, 0, 0, time.UTC), rec.DateOfBirth)

	_, err = f.svc.VerifyIdentity(ctx, IdentityInput{PhoneNumber: testPhone, VerificationType: "bvn", Number: "12345678901", DateOfBirth: "1990-03-09"})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = f.svc.VerifyIdentity(ctx, IdentityInput{PhoneNumber: testPhone, VerificationType: "bvn", Number: "12345678901"})
	assert.ErrorIs(t, err, kyc.ErrDateOfBirth)

	_, err = f.svc.VerifyIdentity(ctx, IdentityInput{PhoneNumber: "08099999999", VerificationType: "nin", Number: "12345678901"})
	assert.ErrorIs(t, err, otp.ErrNotVerified)
}

func TestCompleteRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifyBVN(t)

	session, err := f.svc.CompleteRegistration(ctx, registration())
	require.NoError(t, err)

	acc := session.Account
	assert.Equal(t, testPhone, acc.PhoneNumber)
	assert.Equal(t, account.Tier1, acc.KYCLevel)
	assert.Equal(t, account.StatusActive, acc.Status)
	assert.Equal(t, "female", acc.Gender)
	assert.True(t, acc.BVNVerified)
	require.NotNil(t, acc.PhoneVerifiedAt)
	require.NotNil(t, acc.ProviderCustomerID)
	assert.Equal(t, "CUS-1", *acc.ProviderCustomerID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("123456")))

	stored, err := f.accounts.FindByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"customerId":"CUS-1","walletId":"W-1"}`, string(stored.ProviderData))

	w, err := f.wallets.GetWalletByAccountID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "5000000001", w.AccountNumber)
	assert.True(t, w.AvailableBalance.IsZero())
	assert.True(t, w.DailyLimit.Equal(account.Tier1.Limits().Daily))

	require.Len(t, f.kyc.provided, 1)
	assert.Equal(t, "12345678901", f.kyc.provided[0].BVN)
	assert.Equal(t, 1, f.kyc.forgotten)
	assert.Equal(t, []string{testPhone + ":5000000001"}, f.welcomes.sent)

	id, err := f.tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)
	assert.Equal(t, testNow.Add(24*time.Hour), session.ExpiresAt)

	// the identity record was consumed
	_, err = f.svc.CompleteRegistration(ctx, registration())
	assert.ErrorIs(t, err, kyc.ErrNotVerified)
}

func TestCompleteRegistrationValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*RegistrationInput)
	}{
		{"bad phone", func(in *RegistrationInput) { in.PhoneNumber = "12345" }},
		{"short pin", func(in *RegistrationInput) { in.Password = "1234" }},
		{"alphanumeric pin", func(in *RegistrationInput) { in.Password = "12ab56" }},
		{"missing last name", func(in *RegistrationInput) { in.LastName = " " }},
		{"long first name", func(in *RegistrationInput) { in.FirstName = strings.Repeat("a", 51) }},
		{"unknown gender", func(in *RegistrationInput) { in.Gender = "other" }},
		{"bad email", func(in *RegistrationInput) { in.Email = "ada@" }},
		{"display name email", func(in *RegistrationInput) { in.Email = "Ada <ada@example.com>" }},
		{"unknown verification type", func(in *RegistrationInput) { in.VerificationType = "passport" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.verifyBVN(t)

			in := registration()
			tt.modify(&in)
			_, err := f.svc.CompleteRegistration(context.Background(), in)
			assert.True(t, apperror.IsKind(err, apperror.KindValidation), "got %v", err)
			assert.Empty(t, f.kyc.provided)
		})
	}
}

func TestCompleteRegistrationRequiresVerifiedPhone(t *testing.T) {
	f := newFixture(t)
	f.verifyBVN(t)
	f.gate.verified[testPhone] = false

	_, err := f.svc.CompleteRegistration(context.Background(), registration())
	assert.ErrorIs(t, err, otp.ErrNotVerified)
}

func TestCompleteRegistrationConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := "ada@example.com"
	require.NoError(t, f.accounts.Create(ctx, &account.Account{PhoneNumber: "2348099999999", Email: &email}))
	f.verifyBVN(t)

	_, err := f.svc.CompleteRegistration(ctx, registration())
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	in := registration()
	in.Email = ""
	_, err = f.svc.CompleteRegistration(ctx, in)
	require.NoError(t, err)

	f.verifyBVN(t)
	_, err = f.svc.CompleteRegistration(ctx, in)
	assert.ErrorIs(t, err, otp.ErrPhoneRegistered)
}

func TestCompleteRegistrationRollsBack(t *testing.T) {
	t.Run("provider provisioning fails", func(t *testing.T) {
		f := newFixture(t)
		f.verifyBVN(t)
		f.kyc.provision = func(kyc.CustomerInfo) (*monnify.Wallet, error) {
			return nil, apperror.Provider("create wallet", errors.New("upstream 503"))
		}

		_, err := f.svc.CompleteRegistration(context.Background(), registration())
		assert.True(t, apperror.IsKind(err, apperror.KindProvider))

		exists, _ := f.accounts.PhoneExists(context.Background(), testPhone)
		assert.False(t, exists)
		assert.Empty(t, f.welcomes.sent)
		assert.Zero(t, f.kyc.forgotten)
	})

	t.Run("wallet insert fails", func(t *testing.T) {
		f := newFixture(t)
		f.verifyBVN(t)
		f.wallets.FailNext("CreateWallet", errors.New("connection reset"))

		_, err := f.svc.CompleteRegistration(context.Background(), registration())
		assert.True(t, apperror.IsKind(err, apperror.KindInternal))

		exists, _ := f.accounts.PhoneExists(context.Background(), testPhone)
		assert.False(t, exists)

		// the cached identity survives, so the user can retry
		_, err = f.svc.CompleteRegistration(context.Background(), registration())
		require.NoError(t, err)
		assert.Len(t, f.kyc.provided, 2)
	})
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifyBVN(t)
	registered, err := f.svc.CompleteRegistration(ctx, registration())
	require.NoError(t, err)

	session, err := f.svc.Login(ctx, "0801 234 5678", "123456")
	require.NoError(t, err)
	assert.Equal(t, registered.Account.ID, session.Account.ID)
	require.NotNil(t, session.Wallet)
	assert.Equal(t, "5000000001", session.Wallet.AccountNumber)
	stored, _ := f.accounts.FindByID(ctx, registered.Account.ID)
	require.NotNil(t, stored.LastLoginAt)
	assert.Equal(t, testNow, *stored.LastLoginAt)

	_, err = f.svc.Login(ctx, testPhone, "654321")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "08099999999", "123456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	stored.Status = account.StatusSuspended
	require.NoError(t, f.accounts.Save(ctx, stored))
	_, err = f.svc.Login(ctx, testPhone, "123456")
	assert.ErrorIs(t, err, ErrAccountInactive)
}
