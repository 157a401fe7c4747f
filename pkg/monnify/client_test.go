package monnify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonnify struct {
	t        *testing.T
	logins   atomic.Int32
	calls    sync.Map
	handlers map[string]http.HandlerFunc
}

func (f *fakeMonnify) count(path string) int {
	v, ok := f.calls.Load(path)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int32).Load())
}

func (f *fakeMonnify) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/auth/login" {
		f.logins.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "MK_TEST" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			writeEnvelope(w, false, "invalid credentials", nil)
			return
		}
		writeEnvelope(w, true, "success", map[string]interface{}{"accessToken": "tok-123", "expiresIn": 3600})
		return
	}

	if r.Header.Get("Authorization") != "Bearer tok-123" {
		w.WriteHeader(http.StatusUnauthorized)
		writeEnvelope(w, false, "unauthorized", nil)
		return
	}

	v, _ := f.calls.LoadOrStore(r.URL.Path, &atomic.Int32{})
	v.(*atomic.Int32).Add(1)

	h, ok := f.handlers[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeEnvelope(w, false, "not found", nil)
		return
	}
	h(w, r)
}

func writeEnvelope(w http.ResponseWriter, ok bool, msg string, body interface{}) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"requestSuccessful": ok,
		"responseMessage":   msg,
		"responseCode":      "0",
		"responseBody":      body,
	})
}

func newTestClient(t *testing.T, handlers map[string]http.HandlerFunc) (*Client, *fakeMonnify, *miniredis.Miniredis) {
	t.Helper()

	fake := &fakeMonnify{t: t, handlers: handlers}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c, err := New(Sandbox, Config{
		APIKey:    "MK_TEST",
		SecretKey: "secret",
		BaseURL:   srv.URL,
		Timeout:   2 * time.Second,
	}, NewRedisCache(rdb), WithRetry(time.Millisecond, 3))
	require.NoError(t, err)
	return c, fake, mr
}

func TestNewRequiresKnownEnvironment(t *testing.T) {
	_, err := New(Environment("staging"), Config{APIKey: "a", SecretKey: "b"}, nil)
	assert.Error(t, err)

	c, err := New(Live, Config{APIKey: "a", SecretKey: "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.monnify.com", c.baseURL)
	assert.Equal(t, "https://sandbox.monnify.com", Sandbox.BaseURL())
}

func TestTokenIsSharedThroughCache(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"GET /api/v2/wallets/W1/balance": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, true, "success", map[string]interface{}{"availableBalance": 1500.5, "ledgerBalance": 1500.5})
		},
	}
	c, fake, mr := newTestClient(t, handlers)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		bal, err := c.GetWalletBalance(ctx, "W1")
		require.NoError(t, err)
		assert.True(t, bal.AvailableBalance.Equal(decimal.RequireFromString("1500.5")))
	}
	assert.Equal(t, int32(1), fake.logins.Load())

	// the cached entry expires before the provider's hour is up
	ttl := mr.TTL("monnify:token:sandbox")
	assert.Equal(t, 3000*time.Second, ttl)

	// a second client in the same environment reuses the cached token
	other, err := New(Sandbox, Config{APIKey: "MK_TEST", SecretKey: "secret", BaseURL: c.baseURL}, c.cache)
	require.NoError(t, err)
	_, err = other.GetWalletBalance(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.logins.Load())
}

func TestReadsRetryServerErrors(t *testing.T) {
	var attempts atomic.Int32
	handlers := map[string]http.HandlerFunc{
		"GET /api/v2/transfers/HJZ1": func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			writeEnvelope(w, true, "success", map[string]interface{}{"reference": "HJZ1", "status": "SUCCESS", "amount": 2000})
		},
	}
	c, _, _ := newTestClient(t, handlers)

	tr, err := c.GetTransferStatus(context.Background(), "HJZ1")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", tr.Status)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestTransferIsNotRetried(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"POST /api/v2/transfers/single": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	}
	c, fake, _ := newTestClient(t, handlers)

	_, err := c.Transfer(context.Background(), TransferRequest{Amount: Amount(decimal.NewFromInt(500)), Reference: "HJZ2"})
	require.Error(t, err)
	assert.True(t, IsTemporary(err))
	assert.Equal(t, 1, fake.count("/api/v2/transfers/single"))
}

func TestBusinessRejectionIsPermanent(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"POST /api/v2/kyc/bvn/validate": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "09-03-1990", body["dateOfBirth"])
			writeEnvelope(w, false, "BVN does not match date of birth", nil)
		},
	}
	c, _, _ := newTestClient(t, handlers)

	_, err := c.VerifyBVN(context.Background(), "12345678901", time.Date(1990, 3, 9, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.Equal(t, "BVN does not match date of birth", Message(err))
}

func TestBanksAreCached(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"GET /api/v1/banks": func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, true, "success", []Bank{{Name: "Moniepoint Microfinance Bank", Code: "50515"}})
		},
	}
	c, fake, mr := newTestClient(t, handlers)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		banks, err := c.GetBanks(ctx)
		require.NoError(t, err)
		require.Len(t, banks, 1)
		assert.Equal(t, "50515", banks[0].Code)
	}
	assert.Equal(t, 1, fake.count("/api/v1/banks"))
	assert.Equal(t, time.Hour, mr.TTL("monnify:banks:sandbox"))
}

func TestFindWalletNotFound(t *testing.T) {
	c, _, _ := newTestClient(t, map[string]http.HandlerFunc{})

	_, err := c.FindWallet(context.Background(), "WLT-2348012345678")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION"}`)
	sig := ComputeSignature("secret", payload)

	assert.True(t, VerifySignature("secret", payload, sig))
	assert.False(t, VerifySignature("secret", payload, ""))
	assert.False(t, VerifySignature("other", payload, sig))
	assert.False(t, VerifySignature("secret", append(payload, ' '), sig))
}
