package guest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*models.GuestSession
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*models.GuestSession)}
}

func (s *memStore) CreateGuestSession(_ context.Context, session *models.GuestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.TokenHash] = &cp
	return nil
}

func (s *memStore) GetGuestSession(_ context.Context, hash string) (*models.GuestSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[hash]
	if !ok {
		return nil, apperrors.ErrGuestUnknown
	}
	cp := *session
	return &cp, nil
}

func (s *memStore) RevokeGuestSession(_ context.Context, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[hash]
	if !ok {
		return apperrors.ErrGuestUnknown
	}
	if session.RevokedAt == nil {
		session.RevokedAt = &at
	}
	return nil
}

func (s *memStore) DeleteGuestSessionsExpiredBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, session := range s.sessions {
		if session.ExpiresAt.Before(before) {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newIssuer(t *testing.T) (*Issuer, *memStore, *clock) {
	t.Helper()
	store := newMemStore()
	clk := &clock{now: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	return NewIssuer(store, logger.NewNop(), WithClock(clk.Now)), store, clk
}

const day = 24 * time.Hour

func TestIssueAndValidate(t *testing.T) {
	issuer, store, clk := newIssuer(t)
	ctx := context.Background()

	token, actor, err := issuer.Issue(ctx, "  Anna ")
	require.NoError(t, err)
	assert.Len(t, token, 43)
	assert.Equal(t, "Anna", actor.DisplayName)
	assert.Equal(t, clk.Now().Add(90*day), actor.ExpiresAt)

	_, stored := store.sessions[token]
	assert.False(t, stored, "raw token must not be stored")
	_, stored = store.sessions[HashToken(token)]
	assert.True(t, stored)

	got, err := issuer.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
	assert.Equal(t, "guest:"+HashToken(token), got.Key())
}

func TestTokensAreUnique(t *testing.T) {
	issuer, _, _ := newIssuer(t)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token, _, err := issuer.Issue(context.Background(), "Anna")
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup)
		seen[token] = struct{}{}
	}
}

func TestGuestLifecycle(t *testing.T) {
	issuer, _, clk := newIssuer(t)
	ctx := context.Background()

	token, _, err := issuer.Issue(ctx, "Anna")
	require.NoError(t, err)

	clk.Advance(89 * day)
	_, err = issuer.Validate(ctx, token)
	require.NoError(t, err, "valid at day 89")

	clk.Advance(2 * day)
	_, err = issuer.Validate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrGuestExpired, "expired at day 91")
	assert.ErrorIs(t, err, apperrors.ErrExpiredIdentity)
}

func TestRevoke(t *testing.T) {
	issuer, _, _ := newIssuer(t)
	ctx := context.Background()

	token, _, err := issuer.Issue(ctx, "Boris")
	require.NoError(t, err)
	require.NoError(t, issuer.Revoke(ctx, token))

	_, err = issuer.Validate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrGuestRevoked)
	assert.ErrorIs(t, err, apperrors.ErrRevoked)

	assert.ErrorIs(t, issuer.Revoke(ctx, "nope"), apperrors.ErrGuestUnknown)
}

func TestValidateUnknown(t *testing.T) {
	issuer, _, _ := newIssuer(t)
	_, err := issuer.Validate(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrGuestUnknown)
	_, err = issuer.Validate(context.Background(), "forged")
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestIssueRequiresName(t *testing.T) {
	issuer, store, _ := newIssuer(t)
	_, _, err := issuer.Issue(context.Background(), " ")
	assert.ErrorIs(t, err, apperrors.ErrDisplayNameRequired)
	assert.Empty(t, store.sessions)
}

func TestPurgeExpired(t *testing.T) {
	issuer, store, clk := newIssuer(t)
	ctx := context.Background()

	_, _, err := issuer.Issue(ctx, "Old")
	require.NoError(t, err)
	clk.Advance(60 * day)
	_, _, err = issuer.Issue(ctx, "New")
	require.NoError(t, err)

	// Old expired at day 90, ten days before now.
	clk.Advance(40 * day)
	n, err := issuer.PurgeExpired(ctx, 30*day)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = issuer.PurgeExpired(ctx, 7*day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, store.sessions, 1)
	for _, s := range store.sessions {
		assert.Equal(t, "New", s.DisplayName)
	}
}

func TestRenewKeepsIdentity(t *testing.T) {
	issuer, _, clk := newIssuer(t)
	ctx := context.Background()

	token, first, err := issuer.Issue(ctx, "Anna")
	require.NoError(t, err)
	clk.Advance(91 * day)

	renewed, second, err := issuer.Renew(ctx, token, "")
	require.NoError(t, err)
	assert.NotEqual(t, token, renewed)
	assert.Equal(t, first.Key(), second.Key())
	assert.Equal(t, "Anna", second.DisplayName)
	assert.Equal(t, clk.Now().Add(90*day), second.ExpiresAt)

	got, err := issuer.Validate(ctx, renewed)
	require.NoError(t, err)
	assert.Equal(t, first.Key(), got.Key())

	// A second renewal still points at the first identity.
	clk.Advance(91 * day)
	_, third, err := issuer.Renew(ctx, renewed, "Anna K.")
	require.NoError(t, err)
	assert.Equal(t, first.Key(), third.Key())
	assert.Equal(t, "Anna K.", third.DisplayName)
}

func TestRenewAfterLogoutStartsOver(t *testing.T) {
	issuer, _, _ := newIssuer(t)
	ctx := context.Background()

	token, first, err := issuer.Issue(ctx, "Anna")
	require.NoError(t, err)
	require.NoError(t, issuer.Revoke(ctx, token))

	_, second, err := issuer.Renew(ctx, token, "Anna")
	require.NoError(t, err)
	assert.NotEqual(t, first.Key(), second.Key())

	_, _, err = issuer.Renew(ctx, "forged", "")
	assert.ErrorIs(t, err, apperrors.ErrDisplayNameRequired)
}

func TestIdentifyIgnoresExpiry(t *testing.T) {
	issuer, _, clk := newIssuer(t)
	ctx := context.Background()

	token, actor, err := issuer.Issue(ctx, "Anna")
	require.NoError(t, err)
	clk.Advance(200 * day)

	got, err := issuer.Identify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, actor.Key(), got.Key())

	require.NoError(t, issuer.Revoke(ctx, token))
	_, err = issuer.Identify(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrGuestRevoked)
}
