package kyc

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
)

type fakeProvider struct {
	verifyCalls int
	verifyErr   error
	createErrs  []error
	creates     int
	existing    *monnify.Wallet
	lastCreate  monnify.CreateWalletRequest
}

func (f *fakeProvider) VerifyBVN(ctx context.Context, bvn string, dob time.Time) (*monnify.IdentityRecord, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &monnify.IdentityRecord{FirstName: "Ada", LastName: "Obi", DateOfBirth: "1990-03-09", Gender: "Female"}, nil
}

func (f *fakeProvider) VerifyNIN(ctx context.Context, nin string) (*monnify.IdentityRecord, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &monnify.IdentityRecord{FirstName: "Chidi", LastName: "Okafor", DateOfBirth: "09-03-1991"}, nil
}

func (f *fakeProvider) CreateWallet(ctx context.Context, req monnify.CreateWalletRequest) (*monnify.Wallet, error) {
	f.creates++
	f.lastCreate = req
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &monnify.Wallet{WalletID: "MW-1", WalletReference: req.WalletReference, AccountNumber: "5000000001"}, nil
}

func (f *fakeProvider) FindWallet(ctx context.Context, ref string) (*monnify.Wallet, error) {
	if f.existing != nil {
		return f.existing, nil
	}
	return nil, monnify.ErrNotFound
}

type fakeIndex map[string]bool

func (f fakeIndex) IdentityExists(ctx context.Context, kind account.VerificationType, number string) (bool, error) {
	return f[string(kind)+number], nil
}

func newBridge(t *testing.T, p *fakeProvider, idx fakeIndex) (*Bridge, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewBridge(p, idx, monnify.NewRedisCache(rdb)), mr
}

var dob = time.Date(1990, 3, 9, 0, 0, 0, 0, time.UTC)

func TestVerifyIdentityCachesRecord(t *testing.T) {
	p := &fakeProvider{}
	b, mr := newBridge(t, p, fakeIndex{})
	ctx := context.Background()

	rec, err := b.VerifyIdentity(ctx, IdentityRequest{Phone: "08012345678", Type: account.VerificationBVN, Number: "12345678901", DateOfBirth: dob})
	require.NoError(t, err)
	assert.Equal(t, "2348012345678", rec.Phone)
	assert.Equal(t, "female", rec.Gender)
	assert.Equal(t, dob, rec.DateOfBirth)

	got, err := b.Verified(ctx, "+2348012345678", account.VerificationBVN, "12345678901")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, 1, p.verifyCalls)

	key := cacheKey("2348012345678", account.VerificationBVN, "12345678901")
	assert.Equal(t, RecordTTL, mr.TTL(key))
	assert.NotContains(t, key, "12345678901")

	b.Forget(ctx, got)
	_, err = b.Verified(ctx, "2348012345678", account.VerificationBVN, "12345678901")
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestVerifyIdentityValidation(t *testing.T) {
	b, _ := newBridge(t, &fakeProvider{}, fakeIndex{})

	tests := []struct {
		name string
		req  IdentityRequest
		want error
	}{
		{"short number", IdentityRequest{Phone: "08012345678", Type: account.VerificationNIN, Number: "123"}, ErrInvalidNumber},
		{"letters", IdentityRequest{Phone: "08012345678", Type: account.VerificationNIN, Number: "1234567890a"}, ErrInvalidNumber},
		{"bvn without dob", IdentityRequest{Phone: "08012345678", Type: account.VerificationBVN, Number: "12345678901"}, ErrDateOfBirth},
		{"unknown type", IdentityRequest{Phone: "08012345678", Type: "passport", Number: "12345678901"}, ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.VerifyIdentity(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifyIdentityRejectsLinkedNumberBeforeCallingProvider(t *testing.T) {
	p := &fakeProvider{}
	b, _ := newBridge(t, p, fakeIndex{"nin12345678901": true})

	_, err := b.VerifyIdentity(context.Background(), IdentityRequest{Phone: "08012345678", Type: account.VerificationNIN, Number: "12345678901"})
	assert.ErrorIs(t, err, ErrNINInUse)
	assert.Equal(t, 0, p.verifyCalls)
}

func TestVerifyIdentityProviderFailures(t *testing.T) {
	rejected := &monnify.APIError{Operation: "verify_nin", StatusCode: 400, Message: "NIN not found"}
	b, _ := newBridge(t, &fakeProvider{verifyErr: rejected}, fakeIndex{})

	_, err := b.VerifyIdentity(context.Background(), IdentityRequest{Phone: "08012345678", Type: account.VerificationNIN, Number: "12345678901"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	assert.Equal(t, "NIN not found", apperror.PublicMessage(err))

	down := &monnify.APIError{Operation: "verify_nin", StatusCode: 503}
	b, _ = newBridge(t, &fakeProvider{verifyErr: down}, fakeIndex{})
	_, err = b.VerifyIdentity(context.Background(), IdentityRequest{Phone: "08012345678", Type: account.VerificationNIN, Number: "12345678901"})
	assert.Equal(t, apperror.KindProvider, apperror.KindOf(err))
}

func TestProvisionWalletUsesDeterministicReference(t *testing.T) {
	p := &fakeProvider{}
	b, _ := newBridge(t, p, fakeIndex{})

	w, err := b.ProvisionWallet(context.Background(), CustomerInfo{Phone: "2348012345678", FullName: "Ada Obi", BVN: "12345678901", BVNDateOfBirth: dob})
	require.NoError(t, err)
	assert.Equal(t, "WLT-2348012345678", w.WalletReference)
	assert.Equal(t, "2348012345678@hijaz.app", p.lastCreate.CustomerEmail)
	assert.Equal(t, "Ada Obi Wallet", p.lastCreate.WalletName)
	require.NotNil(t, p.lastCreate.BVNDetails)
	assert.Equal(t, "1990-03-09", p.lastCreate.BVNDetails.BVNDateOfBirth)
}

func TestProvisionWalletFindsWalletAfterLostResponse(t *testing.T) {
	p := &fakeProvider{
		createErrs: []error{&monnify.APIError{Operation: "create_wallet", Err: errors.New("i/o timeout")}},
		existing:   &monnify.Wallet{WalletID: "MW-9", WalletReference: "WLT-2348012345678", AccountNumber: "5000000009"},
	}
	b, _ := newBridge(t, p, fakeIndex{})

	w, err := b.ProvisionWallet(context.Background(), CustomerInfo{Phone: "2348012345678", FullName: "Ada Obi"})
	require.NoError(t, err)
	assert.Equal(t, "MW-9", w.WalletID)
	assert.Equal(t, 1, p.creates)
}

func TestProvisionWalletRetriesOnceWhenNothingExists(t *testing.T) {
	timeout := &monnify.APIError{Operation: "create_wallet", StatusCode: 502}
	p := &fakeProvider{createErrs: []error{timeout, timeout}}
	b, _ := newBridge(t, p, fakeIndex{})

	_, err := b.ProvisionWallet(context.Background(), CustomerInfo{Phone: "2348012345678", FullName: "Ada Obi"})
	assert.Equal(t, apperror.KindProvider, apperror.KindOf(err))
	assert.Equal(t, maxCreateAttempts, p.creates)

	p = &fakeProvider{createErrs: []error{timeout}}
	b, _ = newBridge(t, p, fakeIndex{})
	w, err := b.ProvisionWallet(context.Background(), CustomerInfo{Phone: "2348012345678", FullName: "Ada Obi"})
	require.NoError(t, err)
	assert.Equal(t, "MW-1", w.WalletID)
	assert.Equal(t, 2, p.creates)
}

func TestProvisionWalletRejection(t *testing.T) {
	p := &fakeProvider{createErrs: []error{&monnify.APIError{Operation: "create_wallet", StatusCode: 400, Message: "Invalid BVN"}}}
	b, _ := newBridge(t, p, fakeIndex{})

	_, err := b.ProvisionWallet(context.Background(), CustomerInfo{Phone: "2348012345678", FullName: "Ada Obi"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	assert.Equal(t, 1, p.creates)
}
