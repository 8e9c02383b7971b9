package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ItemMutation is the outcome of a ledger decision, applied by the
// repository inside the item's transaction.
type ItemMutation struct {
	// Add is inserted when set.
	Add *Contribution
	// RemoveID deletes the contribution with that id when set.
	RemoveID string
	// SetPrice replaces the price when set.
	SetPrice *decimal.NullDecimal
	// CollectedAmount and IsReserved are the re-derived aggregate.
	CollectedAmount decimal.Decimal
	IsReserved      bool
}

// MutationFunc decides a mutation from the locked item and its list. Returning
// an error rolls the transaction back.
type MutationFunc func(item *Item, list *Wishlist) (*ItemMutation, error)

type Repository interface {
	GetItem(ctx context.Context, itemID int64) (*Item, error)
	GetWishlist(ctx context.Context, listID int64) (*Wishlist, error)
	GetWishlistByShareToken(ctx context.Context, token string) (*Wishlist, error)
	ListItems(ctx context.Context, listID int64) ([]*Item, error)
	// ListContributionsByActor returns the actor's active contributions,
	// newest first.
	ListContributionsByActor(ctx context.Context, actor Actor) ([]*Contribution, error)
	// MutateItem runs fn with the item row locked and applies its result in
	// the same transaction. It returns the committed item.
	MutateItem(ctx context.Context, itemID int64, fn MutationFunc) (*Item, *Wishlist, error)

	CreateWishlist(ctx context.Context, list *Wishlist) error
	CreateItem(ctx context.Context, item *Item) error

	GuestStore
	ChannelResolver
	Close() error
}

type GuestStore interface {
	CreateGuestSession(ctx context.Context, session *GuestSession) error
	GetGuestSession(ctx context.Context, tokenHash string) (*GuestSession, error)
	RevokeGuestSession(ctx context.Context, tokenHash string, at time.Time) error
	DeleteGuestSessionsExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// ChannelResolver maps a channel key (numeric list id or share token) to the
// list id that owns the channel.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, key string) (int64, error)
}
