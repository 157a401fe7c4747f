package key

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

type memRepo struct {
	mu   sync.Mutex
	keys []APIKey
}

func (m *memRepo) CountActive(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range m.keys {
		if k.AccountID == accountID && k.Active(now) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Create(ctx context.Context, k *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k.ID = uuid.New()
	k.CreatedAt = time.Now()
	m.keys = append(m.keys, *k)
	return nil
}

func (m *memRepo) find(match func(APIKey) bool) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if match(k) {
			cp := k
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) Get(ctx context.Context, id, accountID uuid.UUID) (*APIKey, error) {
	return m.find(func(k APIKey) bool { return k.ID == id && k.AccountID == accountID })
}

func (m *memRepo) FindByValue(ctx context.Context, value string) (*APIKey, error) {
	return m.find(func(k APIKey) bool { return k.KeyHash == hashKey(value) })
}

func (m *memRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []APIKey
	for _, k := range m.keys {
		if k.AccountID == accountID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memRepo) Revoke(ctx context.Context, id, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.keys {
		if m.keys[i].ID == id && m.keys[i].AccountID == accountID {
			m.keys[i].IsRevoked = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *memRepo) TouchUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.keys {
		if m.keys[i].ID == id {
			m.keys[i].LastUsedAt = &at
		}
	}
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(max int) (*Service, *memRepo, *clock) {
	repo := &memRepo{}
	c := &clock{t: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	return NewService(repo, max).WithClock(c.now), repo, c
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, repo, _ := newService(5)
	accountID := uuid.New()

	iss, err := svc.Create(context.Background(), accountID, "erp", []string{"read", "transfer", "READ"}, "1D")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(iss.Secret, keyPrefix))
	assert.Equal(t, []string{"READ", "TRANSFER"}, []string(iss.Key.Permissions))
	assert.NotContains(t, iss.Key.KeyHash, iss.Secret)
	assert.Equal(t, iss.Secret[:8]+"..."+iss.Secret[len(iss.Secret)-4:], iss.Key.MaskedKey)

	k, err := svc.Authenticate(context.Background(), iss.Secret)
	require.NoError(t, err)
	assert.Equal(t, accountID, k.AccountID)
	assert.NotNil(t, repo.keys[0].LastUsedAt)

	_, err = svc.Authenticate(context.Background(), keyPrefix+"00000000000000000000000000000000")
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newService(5)

	tests := []struct {
		name   string
		perms  []string
		expiry string
	}{
		{"unknown permission", []string{"DEPOSIT"}, "1D"},
		{"no permissions", nil, "1D"},
		{"bad expiry", []string{"READ"}, "2W"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), uuid.New(), "k", tt.perms, tt.expiry)
			assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
		})
	}
}

func TestActiveKeyQuota(t *testing.T) {
	svc, _, _ := newService(2)
	accountID := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := svc.Create(context.Background(), accountID, "k", []string{"READ"}, "1H")
		require.NoError(t, err)
	}
	_, err := svc.Create(context.Background(), accountID, "k", []string{"READ"}, "1H")
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))
}

func TestExpiredKeyAndRollover(t *testing.T) {
	svc, _, c := newService(1)
	accountID := uuid.New()

	iss, err := svc.Create(context.Background(), accountID, "payroll", []string{"TRANSFER"}, "1H")
	require.NoError(t, err)

	_, err = svc.Rollover(context.Background(), accountID, iss.Key.ID.String(), "1D")
	assert.ErrorIs(t, err, ErrNotExpired)

	c.t = c.t.Add(2 * time.Hour)
	_, err = svc.Authenticate(context.Background(), iss.Secret)
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))

	// expired keys no longer count toward the quota
	next, err := svc.Rollover(context.Background(), accountID, iss.Secret, "1D")
	require.NoError(t, err)
	assert.Equal(t, "payroll", next.Key.Name)
	assert.Equal(t, []string{"TRANSFER"}, []string(next.Key.Permissions))

	_, err = svc.Rollover(context.Background(), uuid.New(), iss.Secret, "1D")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestRevokedKeyIsRejected(t *testing.T) {
	svc, _, _ := newService(3)
	accountID := uuid.New()
	iss, err := svc.Create(context.Background(), accountID, "k", []string{"READ"}, "1Y")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), accountID, iss.Key.ID))
	_, err = svc.Authenticate(context.Background(), iss.Secret)
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))

	assert.ErrorIs(t, svc.Revoke(context.Background(), uuid.New(), iss.Key.ID), ErrNotFound)
}

func TestHandlerCreateAndList(t *testing.T) {
	svc, _, _ := newService(3)
	h := NewHandler(svc)
	acc := account.Account{ID: uuid.New()}

	body, _ := json.Marshal(CreateKeyRequest{Name: "erp", Permissions: []string{"READ"}, Expiry: "1M"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/keys/create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(context.WithValue(req.Context(), utils.AccountKey, acc))
	rr := httptest.NewRecorder()
	h.CreateAPIKey(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil)
	req = req.WithContext(context.WithValue(req.Context(), utils.AccountKey, acc))
	rr = httptest.NewRecorder()
	h.ListAPIKeys(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var res struct {
		Data []View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Data, 1)
	assert.NotContains(t, rr.Body.String(), "key_hash")

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/keys/"+res.Data[0].ID, nil)
	req = mux.SetURLVars(req, map[string]string{"id": res.Data[0].ID})
	req = req.WithContext(context.WithValue(req.Context(), utils.AccountKey, acc))
	rr = httptest.NewRecorder()
	h.RevokeAPIKey(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
