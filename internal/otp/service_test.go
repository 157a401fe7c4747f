package otp

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
)

type memRepo struct {
	mu   sync.Mutex
	rows []*Challenge
}

func (m *memRepo) Create(_ context.Context, c *Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	cp := *c
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memRepo) newest(match func(*Challenge) bool) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*Challenge
	for _, c := range m.rows {
		if match(c) {
			found = append(found, c)
		}
	}
	if len(found) == 0 {
		return nil, ErrNoChallenge
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	cp := *found[0]
	return &cp, nil
}

func (m *memRepo) Latest(_ context.Context, p string, purpose Purpose) (*Challenge, error) {
	return m.newest(func(c *Challenge) bool {
		return c.PhoneNumber == p && c.Purpose == purpose && c.InvalidatedAt == nil
	})
}

func (m *memRepo) FindByCode(_ context.Context, p string, purpose Purpose, code string) (*Challenge, error) {
	return m.newest(func(c *Challenge) bool {
		return c.PhoneNumber == p && c.Purpose == purpose && c.Code == code
	})
}

func (m *memRepo) LatestVerified(_ context.Context, p string, purpose Purpose) (*Challenge, error) {
	return m.newest(func(c *Challenge) bool {
		return c.PhoneNumber == p && c.Purpose == purpose && c.IsVerified
	})
}

func (m *memRepo) IncrementAttempts(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.ID == id {
			c.Attempts++
		}
	}
	return nil
}

func (m *memRepo) MarkVerified(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.ID == id && !c.IsVerified && c.Attempts < MaxAttempts && at.Before(c.ExpiresAt) {
			c.IsVerified = true
			c.VerifiedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) InvalidateCreatedBefore(_ context.Context, p string, purpose Purpose, before, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.rows {
		if c.PhoneNumber == p && c.Purpose == purpose && !c.IsVerified && c.InvalidatedAt == nil && c.CreatedAt.Before(before) {
			c.InvalidatedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memRepo) DeleteExpiredBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var n int64
	for _, c := range m.rows {
		if c.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.rows = kept
	return n, nil
}

func (m *memRepo) byCode(code string) *Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.Code == code {
			return c
		}
	}
	return nil
}

type registry map[string]bool

func (r registry) PhoneExists(_ context.Context, p string) (bool, error) { return r[p], nil }

type recordingSender struct {
	mu    sync.Mutex
	codes []string
}

func (s *recordingSender) OTP(_ context.Context, _ string, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

const testPhone = "2348012345678"

func newTestService(accounts registry) (*Service, *memRepo, *clock, *recordingSender) {
	repo := &memRepo{}
	clk := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	sender := &recordingSender{}
	svc := NewService(repo, accounts, sender).WithClock(clk.now)
	return svc, repo, clk, sender
}

func TestGenerateCodeKeepsLeadingZeros(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}

func TestIssueNormalisesPhoneAndSends(t *testing.T) {
	svc, _, clk, sender := newTestService(registry{})

	c, err := svc.Issue(context.Background(), "0801 234 5678", PurposeRegistration)
	require.NoError(t, err)

	assert.Equal(t, testPhone, c.PhoneNumber)
	assert.Equal(t, clk.t.Add(5*time.Minute), c.ExpiresAt)
	assert.Equal(t, 0, c.Attempts)
	assert.Equal(t, []string{c.Code}, sender.codes)
}

func TestIssueRejectsRegisteredPhone(t *testing.T) {
	svc, _, _, _ := newTestService(registry{testPhone: true})

	_, err := svc.Issue(context.Background(), testPhone, PurposeRegistration)
	assert.ErrorIs(t, err, ErrPhoneRegistered)

	_, err = svc.Issue(context.Background(), testPhone, PurposeLogin)
	assert.NoError(t, err)
}

func TestIssueCooldown(t *testing.T) {
	svc, _, clk, _ := newTestService(registry{})
	ctx := context.Background()

	_, err := svc.Issue(ctx, testPhone, PurposeRegistration)
	require.NoError(t, err)

	clk.advance(30 * time.Second)
	_, err = svc.Issue(ctx, testPhone, PurposeRegistration)
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindRateLimited, appErr.Kind)
	assert.Equal(t, 30*time.Second, appErr.RetryAfter)

	// other purposes need an existing account
	_, err = svc.Issue(ctx, testPhone, PurposePasswordReset)
	assert.ErrorIs(t, err, ErrPhoneUnregistered)

	clk.advance(31 * time.Second)
	_, err = svc.Issue(ctx, testPhone, PurposeRegistration)
	assert.NoError(t, err)
}

func TestIssueInvalidatesStaleChallenges(t *testing.T) {
	svc, repo, clk, _ := newTestService(registry{})
	ctx := context.Background()

	first, err := svc.Issue(ctx, testPhone, PurposeRegistration)
	require.NoError(t, err)

	clk.advance(6 * time.Minute)
	_, err = svc.Issue(ctx, testPhone, PurposeRegistration)
	require.NoError(t, err)

	assert.NotNil(t, repo.byCode(first.Code).InvalidatedAt)
}

func TestVerifySuccess(t *testing.T) {
	svc, _, clk, _ := newTestService(registry{})
	ctx := context.Background()

	c, err := svc.Issue(ctx, testPhone, PurposeRegistration)
	require.NoError(t, err)

	clk.advance(time.Minute)
	verified, err := svc.Verify(ctx, "08012345678", PurposeRegistration, c.Code)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)

	// a verified challenge cannot be replayed
	_, err = svc.Verify(ctx, testPhone, PurposeRegistration, c.Code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyExpiredEvenWithCorrectCode(t *testing.T) {
	svc, _, clk, _ := newTestService(registry{})
	ctx := context.Background()

	c, err := svc.Issue(ctx, testPhone, PurposeRegistration)
	require.NoError(t, err)

	clk.advance(5*time.Minute + time.Second)
	_, err = svc.Verify(ctx, testPhone, PurposeRegistration, c.Code)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyLocksAfterThreeWrongCodes(t *testing.T) {
	svc, _, _, _ := newTestService(registry{})
	ctx := context.Background()

	c, err := svc.Issue(ctx, testPhone, PurposeRegistration)
	require.NoError(t, err)

	wrong := "000000"
	if c.Code == wrong {
		wrong = "111111"
	}
	for i := 0; i < MaxAttempts; i++ {
		_, err := svc.Verify(ctx, testPhone, PurposeRegistration, wrong)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	_, err = svc.Verify(ctx, testPhone, PurposeRegistration, c.Code)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestVerifyChargesOlderChallengeMatchingTriedCode(t *testing.T) {
	svc, repo, clk, _ := newTestService(registry{})
	ctx := context.Background()

	first, err := svc.Issue(ctx, testPhone, PurposeRegistration)
	require.NoError(t, err)
	clk.advance(2 * time.Minute)
	second, err := svc.Issue(ctx, testPhone, PurposeRegistration)
	require.NoError(t, err)
	if first.Code == second.Code {
		t.Skip("codes collided")
	}

	_, err = svc.Verify(ctx, testPhone, PurposeRegistration, first.Code)
	assert.ErrorIs(t, err, ErrInvalidCode)

	assert.Equal(t, 1, repo.byCode(first.Code).Attempts)
	assert.Equal(t, 1, repo.byCode(second.Code).Attempts)
}

func TestRequireRecent(t *testing.T) {
	svc, _, clk, _ := newTestService(registry{})
	ctx := context.Background()

	assert.ErrorIs(t, svc.RequireRecent(ctx, testPhone, PurposeRegistration), ErrNotVerified)

	c, err := svc.Issue(ctx, testPhone, PurposeRegistration)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, testPhone, PurposeRegistration, c.Code)
	require.NoError(t, err)

	clk.advance(9 * time.Minute)
	assert.NoError(t, svc.RequireRecent(ctx, testPhone, PurposeRegistration))

	clk.advance(2 * time.Minute)
	assert.ErrorIs(t, svc.RequireRecent(ctx, testPhone, PurposeRegistration), ErrNotVerified)
}

func TestPurgeKeepsRecentlyExpired(t *testing.T) {
	svc, repo, clk, _ := newTestService(registry{})
	ctx := context.Background()

	_, err := svc.Issue(ctx, testPhone, PurposeRegistration)
	require.NoError(t, err)

	clk.advance(time.Hour)
	n, err := svc.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	clk.advance(24 * time.Hour)
	n, err = svc.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, repo.rows)
}

func TestChallengeIsValid(t *testing.T) {
	now := time.Now()
	base := Challenge{ExpiresAt: now.Add(time.Minute)}

	assert.True(t, base.IsValid(now))

	expired := base
	expired.ExpiresAt = now
	assert.False(t, expired.IsValid(now))

	used := base
	used.IsVerified = true
	assert.False(t, used.IsValid(now))

	exhausted := base
	exhausted.Attempts = MaxAttempts
	assert.False(t, exhausted.IsValid(now))

	invalidated := base
	invalidated.InvalidatedAt = &now
	assert.False(t, invalidated.IsValid(now))
}
