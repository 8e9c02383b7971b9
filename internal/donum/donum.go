package donum

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/config"
	"github.com/wishliste/donum/internal/coordinator"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
	"github.com/wishliste/donum/pkg/validation"
)

type Coordinator interface {
	Reserve(ctx context.Context, itemID int64, actor models.Actor, amount models.Amount) (*models.FundingSnapshot, error)
	Cancel(ctx context.Context, itemID int64, actor models.Actor, contributionID string) (*models.FundingSnapshot, error)
	Reprice(ctx context.Context, itemID int64, owner models.AuthenticatedUser, price decimal.NullDecimal) (*models.FundingSnapshot, error)
	Snapshot(ctx context.Context, itemID int64, viewer models.Actor) (*models.FundingSnapshot, error)
}

type GuestIssuer interface {
	Issue(ctx context.Context, displayName string) (string, models.GuestActor, error)
	Renew(ctx context.Context, token, displayName string) (string, models.GuestActor, error)
	Validate(ctx context.Context, token string) (models.GuestActor, error)
	Identify(ctx context.Context, token string) (models.GuestActor, error)
	Revoke(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context, grace time.Duration) (int64, error)
}

type Verifier interface {
	Verify(token string) (models.AuthenticatedUser, error)
}

// Donum is the main struct for the application.
// It resolves who is acting and hands every mutation to the coordinator.
type Donum struct {
	logger *logger.Logger
	config *config.Config

	repo        models.Repository
	coordinator Coordinator
	guests      GuestIssuer
	verifier    Verifier
	broker      models.Broker
}

func NewDonum(
	repo models.Repository,
	coordinator Coordinator,
	guests GuestIssuer,
	verifier Verifier,
	broker models.Broker,
	logger *logger.Logger,
	config *config.Config,
) *Donum {
	return &Donum{
		repo:        repo,
		coordinator: coordinator,
		guests:      guests,
		verifier:    verifier,
		broker:      broker,
		logger:      logger.Named("donum"),
		config:      config,
	}
}

// Start runs the guest session janitor until ctx is done. Contributions of
// purged sessions are kept.
func (d *Donum) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.config.GuestPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.purgeGuests(ctx)
		}
	}
}

func (d *Donum) purgeGuests(ctx context.Context) {
	n, err := d.guests.PurgeExpired(ctx, d.config.GuestPurgeAfter)
	if err != nil {
		d.logger.Error("Failed to purge expired guest sessions", "error", err)
		return
	}
	if n > 0 {
		d.logger.Info("Purged expired guest sessions", "count", n)
	}
}

// Reserve resolves the actor and reserves the item. A guest whose token is
// missing, expired or revoked silently gets a new session, which needs a
// display name. When a session was issued the result carries its token even
// if the reservation itself failed, so the caller can keep it.
func (d *Donum) Reserve(ctx context.Context, in models.ReserveInput) (*models.ReserveResult, error) {
	actor, result, err := d.reserver(ctx, in)
	if err != nil {
		return nil, err
	}
	snap, err := d.coordinator.Reserve(ctx, in.ItemID, actor, in.Amount)
	if err != nil {
		if result.GuestToken != "" {
			return result, err
		}
		return nil, err
	}
	result.Snapshot = snap
	return result, nil
}

func (d *Donum) reserver(ctx context.Context, in models.ReserveInput) (models.Actor, *models.ReserveResult, error) {
	result := &models.ReserveResult{}
	if in.BearerToken != "" {
		user, err := d.verifier.Verify(in.BearerToken)
		if err != nil {
			return nil, nil, err
		}
		return user, result, nil
	}

	if in.GuestToken != "" {
		g, err := d.guests.Validate(ctx, in.GuestToken)
		switch {
		case err == nil:
			if in.DisplayName == "" {
				return g, result, nil
			}
			name, err := validation.ValidateAndNormalizeDisplayName(in.DisplayName)
			if err != nil {
				return nil, nil, err
			}
			return models.WithName(g, name), result, nil
		case errors.Is(err, apperrors.ErrExpiredIdentity):
			// Same guest, new token: their contributions stay theirs.
			d.logger.Debug("Renewing expired guest session")
			token, g, err := d.guests.Renew(ctx, in.GuestToken, in.DisplayName)
			if err != nil {
				return nil, nil, err
			}
			result.GuestToken = token
			result.GuestExpiresAt = g.ExpiresAt
			return g, result, nil
		case errors.Is(err, apperrors.ErrRevoked),
			errors.Is(err, apperrors.ErrGuestUnknown):
			d.logger.Debug("Re-issuing guest session", "reason", apperrors.CodeOf(err))
		default:
			return nil, nil, err
		}
	}

	token, g, err := d.guests.Issue(ctx, in.DisplayName)
	if err != nil {
		return nil, nil, err
	}
	result.GuestToken = token
	result.GuestExpiresAt = g.ExpiresAt
	return g, result, nil
}

// Unreserve cancels the caller's contribution. A guest must present their
// token: a display name alone never identifies anyone. An expired token still
// works here so a contribution never outlives its owner's ability to cancel.
func (d *Donum) Unreserve(ctx context.Context, in models.UnreserveInput) (*models.FundingSnapshot, error) {
	actor, err := d.holder(ctx, in.BearerToken, in.GuestToken)
	if err != nil {
		return nil, err
	}
	return d.coordinator.Cancel(ctx, in.ItemID, actor, in.ContributionID)
}

// MyContributions returns the funding of every item the caller contributes
// to, most recent contribution first.
func (d *Donum) MyContributions(ctx context.Context, in models.ViewerInput) ([]*models.FundingSnapshot, error) {
	actor, err := d.holder(ctx, in.BearerToken, in.GuestToken)
	if err != nil {
		return nil, err
	}
	contributions, err := d.repo.ListContributionsByActor(ctx, actor)
	if err != nil {
		return nil, err
	}

	snaps := make([]*models.FundingSnapshot, 0, len(contributions))
	seen := make(map[int64]struct{}, len(contributions))
	for _, c := range contributions {
		if _, ok := seen[c.ItemID]; ok {
			continue
		}
		seen[c.ItemID] = struct{}{}
		item, err := d.repo.GetItem(ctx, c.ItemID)
		if errors.Is(err, apperrors.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, coordinator.SnapshotOf(item, actor))
	}
	return snaps, nil
}

// holder identifies a caller acting on contributions they already hold.
func (d *Donum) holder(ctx context.Context, bearer, guestToken string) (models.Actor, error) {
	switch {
	case bearer != "":
		user, err := d.verifier.Verify(bearer)
		if err != nil {
			return nil, err
		}
		return user, nil
	case guestToken != "":
		g, err := d.guests.Identify(ctx, guestToken)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, apperrors.New(apperrors.KindUnauthenticated, apperrors.CodeGuestUnknown, "a bearer or guest token is required")
	}
}

func (d *Donum) Reprice(ctx context.Context, in models.RepriceInput) (*models.FundingSnapshot, error) {
	user, err := d.verifier.Verify(in.BearerToken)
	if err != nil {
		return nil, err
	}
	return d.coordinator.Reprice(ctx, in.ItemID, user, in.Price)
}

func (d *Donum) Snapshot(ctx context.Context, itemID int64, viewer models.ViewerInput) (*models.FundingSnapshot, error) {
	return d.coordinator.Snapshot(ctx, itemID, d.viewer(ctx, viewer))
}

// ListSnapshots returns the funding of every item of the list addressed by
// key, a list id or a share token.
func (d *Donum) ListSnapshots(ctx context.Context, key string, viewer models.ViewerInput) ([]*models.FundingSnapshot, error) {
	listID, err := d.repo.ResolveChannel(ctx, key)
	if err != nil {
		return nil, err
	}
	items, err := d.repo.ListItems(ctx, listID)
	if err != nil {
		return nil, err
	}
	actor := d.viewer(ctx, viewer)
	snaps := make([]*models.FundingSnapshot, 0, len(items))
	for _, item := range items {
		snaps = append(snaps, coordinator.SnapshotOf(item, actor))
	}
	return snaps, nil
}

func (d *Donum) Subscribe(ctx context.Context, key string) (models.Subscription, error) {
	return d.broker.Subscribe(ctx, key)
}

func (d *Donum) LogoutGuest(ctx context.Context, token string) error {
	return d.guests.Revoke(ctx, token)
}

// viewer identifies the reader for marking their contributions. Reads never
// fail on a bad credential.
func (d *Donum) viewer(ctx context.Context, in models.ViewerInput) models.Actor {
	if in.BearerToken != "" {
		if user, err := d.verifier.Verify(in.BearerToken); err == nil {
			return user
		}
	}
	if in.GuestToken != "" {
		if g, err := d.guests.Validate(ctx, in.GuestToken); err == nil {
			return g
		}
	}
	return nil
}
