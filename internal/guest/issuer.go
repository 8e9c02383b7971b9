// Package guest issues and validates the anonymous tokens guests reserve
// with. The token is the only credential a guest has, so only its SHA-256
// is ever stored.
package guest

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/metrics"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
	"github.com/wishliste/donum/pkg/validation"
)

const (
	DefaultTTL = 90 * 24 * time.Hour
	tokenBytes = 32
)

type Issuer struct {
	store   models.GuestStore
	ttl     time.Duration
	now     func() time.Time
	logger  *logger.Logger
	metrics *metrics.Metrics
}

type Option func(*Issuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Issuer) { i.metrics = m }
}

func NewIssuer(store models.GuestStore, logger *logger.Logger, opts ...Option) *Issuer {
	i := &Issuer{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger.Named("guest"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// HashToken returns the stored form of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue starts a new guest with a fresh identity. The returned token is
// shown to the caller once and cannot be recovered later.
func (i *Issuer) Issue(ctx context.Context, displayName string) (string, models.GuestActor, error) {
	name, err := validation.ValidateAndNormalizeDisplayName(displayName)
	if err != nil {
		return "", models.GuestActor{}, err
	}
	return i.issue(ctx, name, "")
}

// Renew replaces an expired session with a new one for the same guest, so
// contributions made with the old token stay theirs. An empty displayName
// keeps the old name. A revoked or unknown token gets a fresh identity.
func (i *Issuer) Renew(ctx context.Context, token, displayName string) (string, models.GuestActor, error) {
	session, err := i.store.GetGuestSession(ctx, HashToken(token))
	if errors.Is(err, apperrors.ErrGuestUnknown) {
		return i.Issue(ctx, displayName)
	}
	if err != nil {
		return "", models.GuestActor{}, err
	}
	if session.Revoked() {
		return i.Issue(ctx, displayName)
	}

	name := session.DisplayName
	if displayName != "" {
		if name, err = validation.ValidateAndNormalizeDisplayName(displayName); err != nil {
			return "", models.GuestActor{}, err
		}
	}
	return i.issue(ctx, name, session.Identity())
}

func (i *Issuer) issue(ctx context.Context, name, actorHash string) (string, models.GuestActor, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", models.GuestActor{}, fmt.Errorf("failed to generate guest token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := i.now().UTC()
	session := &models.GuestSession{
		TokenHash:   HashToken(token),
		ActorHash:   actorHash,
		DisplayName: name,
		CreatedAt:   now,
		ExpiresAt:   now.Add(i.ttl),
	}
	if session.ActorHash == "" {
		session.ActorHash = session.TokenHash
	}
	if err := i.store.CreateGuestSession(ctx, session); err != nil {
		return "", models.GuestActor{}, err
	}
	i.metrics.GuestIssued()
	i.logger.Debug("Issued guest session", "expires_at", session.ExpiresAt, "renewal", actorHash != "")

	return token, actorOf(session), nil
}

// Validate resolves a token to its guest. It fails with a revoked error after
// logout and an expired error once the TTL has passed.
func (i *Issuer) Validate(ctx context.Context, token string) (models.GuestActor, error) {
	session, err := i.lookup(ctx, token)
	if err != nil {
		return models.GuestActor{}, err
	}
	if session.ExpiredAt(i.now()) {
		return models.GuestActor{}, apperrors.ErrGuestExpired
	}
	return actorOf(session), nil
}

// Identify resolves a token for acting on what the guest already holds:
// cancelling or listing contributions. An expired session still identifies
// its guest; a revoked one does not.
func (i *Issuer) Identify(ctx context.Context, token string) (models.GuestActor, error) {
	session, err := i.lookup(ctx, token)
	if err != nil {
		return models.GuestActor{}, err
	}
	return actorOf(session), nil
}

func (i *Issuer) lookup(ctx context.Context, token string) (*models.GuestSession, error) {
	if token == "" {
		return nil, apperrors.ErrGuestUnknown
	}
	session, err := i.store.GetGuestSession(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if session.Revoked() {
		return nil, apperrors.ErrGuestRevoked
	}
	return session, nil
}

func actorOf(session *models.GuestSession) models.GuestActor {
	return models.GuestActor{
		ActorHash:   session.Identity(),
		DisplayName: session.DisplayName,
		ExpiresAt:   session.ExpiresAt,
	}
}

// Revoke ends a session. Contributions made with it stay attributed to the
// guest's identity hash.
func (i *Issuer) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.ErrGuestUnknown
	}
	return i.store.RevokeGuestSession(ctx, HashToken(token), i.now().UTC())
}

// PurgeExpired deletes sessions that expired more than grace ago. Sessions
// of guests who still hold contributions are kept so those stay cancellable.
func (i *Issuer) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := i.store.DeleteGuestSessionsExpiredBefore(ctx, i.now().UTC().Add(-grace))
	if err != nil {
		return 0, err
	}
	i.metrics.GuestsPurged(n)
	return n, nil
}
