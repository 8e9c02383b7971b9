// Package coordinator serializes every mutation of an item. Mutations of one
// item run one at a time, in this process through a per-item lock and across
// processes through the row lock taken by the store. Events are published
// only after the store committed.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/ledger"
	"github.com/wishliste/donum/internal/metrics"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
)

type Store interface {
	GetItem(ctx context.Context, itemID int64) (*models.Item, error)
	MutateItem(ctx context.Context, itemID int64, fn models.MutationFunc) (*models.Item, *models.Wishlist, error)
}

type Publisher interface {
	Publish(ctx context.Context, event models.InvalidationEvent)
}

type Coordinator struct {
	store     Store
	publisher Publisher
	locks     *keyedMutex
	now       func() time.Time
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func New(store Store, publisher Publisher, logger *logger.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		publisher: publisher,
		locks:     newKeyedMutex(),
		now:       time.Now,
		logger:    logger.Named("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// decision is a ledger outcome plus the event to publish once it is
// committed. A nil mutation changes nothing and publishes nothing.
type decision struct {
	mutation *models.ItemMutation
	event    models.EventType
}

type decideFunc func(item *models.Item, list *models.Wishlist) (decision, error)

// Reserve records a full or partial reservation of actor on the item.
func (c *Coordinator) Reserve(ctx context.Context, itemID int64, actor models.Actor, amount models.Amount) (*models.FundingSnapshot, error) {
	return c.mutate(ctx, "reserve", itemID, actor, func(item *models.Item, list *models.Wishlist) (decision, error) {
		if u, ok := actor.(models.AuthenticatedUser); ok && u.UserID == list.OwnerID {
			return decision{}, apperrors.ErrOwnItem
		}
		ch, err := ledger.FromItem(item).Reserve(actor, amount, c.now().UTC())
		if err != nil {
			return decision{}, err
		}
		return decision{
			mutation: &models.ItemMutation{
				Add:             ch.Added,
				CollectedAmount: ch.After.Collected(),
				IsReserved:      ch.After.IsReserved(),
			},
			event: models.EventItemReserved,
		}, nil
	})
}

// Cancel removes a contribution of actor. An empty contributionID means the
// actor's own.
func (c *Coordinator) Cancel(ctx context.Context, itemID int64, actor models.Actor, contributionID string) (*models.FundingSnapshot, error) {
	return c.mutate(ctx, "cancel", itemID, actor, func(item *models.Item, _ *models.Wishlist) (decision, error) {
		ch, err := ledger.FromItem(item).Cancel(actor, contributionID)
		if err != nil {
			return decision{}, err
		}
		return decision{
			mutation: &models.ItemMutation{
				RemoveID:        ch.Removed.ID,
				CollectedAmount: ch.After.Collected(),
				IsReserved:      ch.After.IsReserved(),
			},
			event: models.EventItemUnreserved,
		}, nil
	})
}

// Reprice lets the list owner change the funding target.
func (c *Coordinator) Reprice(ctx context.Context, itemID int64, owner models.AuthenticatedUser, price decimal.NullDecimal) (*models.FundingSnapshot, error) {
	return c.mutate(ctx, "reprice", itemID, owner, func(item *models.Item, list *models.Wishlist) (decision, error) {
		if list.OwnerID != owner.UserID {
			return decision{}, apperrors.ErrNotOwner
		}
		before := ledger.FromItem(item)
		after, err := before.Reprice(price)
		if err != nil {
			return decision{}, err
		}
		if ledger.SamePrice(after.Price, before.Price) {
			return decision{}, nil
		}
		return decision{
			mutation: &models.ItemMutation{
				SetPrice:        &after.Price,
				CollectedAmount: after.Collected(),
				IsReserved:      after.IsReserved(),
			},
			event: models.EventItemUpdated,
		}, nil
	})
}

// Snapshot reads the committed state without entering the critical section.
func (c *Coordinator) Snapshot(ctx context.Context, itemID int64, viewer models.Actor) (*models.FundingSnapshot, error) {
	item, err := c.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return SnapshotOf(item, viewer), nil
}

func (c *Coordinator) mutate(ctx context.Context, op string, itemID int64, actor models.Actor, decide decideFunc) (*models.FundingSnapshot, error) {
	start := time.Now()
	unlock, err := c.locks.Lock(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var d decision
	item, list, err := c.store.MutateItem(ctx, itemID, func(item *models.Item, list *models.Wishlist) (*models.ItemMutation, error) {
		var err error
		d, err = decide(item, list)
		if err != nil {
			return nil, err
		}
		return d.mutation, nil
	})
	c.metrics.ObserveMutation(op, err, time.Since(start))
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			c.logger.Debug("Mutation rejected", "operation", op, "item_id", itemID, "actor", actor.Key(), "code", appErr.Code)
		} else {
			c.logger.Error("Mutation failed", "operation", op, "item_id", itemID, "error", err)
		}
		return nil, err
	}

	if err := ledger.CheckItem(item); err != nil {
		c.logger.Error("Funding invariant violated", "item_id", itemID, "error", err)
	}
	if d.mutation != nil {
		c.publisher.Publish(ctx, models.InvalidationEvent{
			Type:   d.event,
			ListID: list.ID,
			ItemID: item.ID,
			At:     c.now().UTC(),
		})
	}
	return SnapshotOf(item, actor), nil
}
