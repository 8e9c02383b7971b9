package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Amount is a reservation request: either the full item or a partial
// amount. The zero value is a full reservation.
type Amount struct {
	partial bool
	value   decimal.Decimal
}

func Full() Amount { return Amount{} }

func Partial(v decimal.Decimal) Amount { return Amount{partial: true, value: v} }

func (a Amount) IsPartial() bool { return a.partial }

// Value is the partial amount. It is zero for a full reservation.
func (a Amount) Value() decimal.Decimal { return a.value }

type ReserveInput struct {
	ItemID int64
	Amount Amount
	// DisplayName is required for anonymous callers.
	DisplayName string
	// BearerToken is an identity provider access token, if any.
	BearerToken string
	// GuestToken is a previously issued guest token, if any.
	GuestToken string
}

type ReserveResult struct {
	Snapshot *FundingSnapshot
	// GuestToken is set only when a new guest session was issued.
	GuestToken     string
	GuestExpiresAt time.Time
}

type UnreserveInput struct {
	ItemID int64
	// ContributionID targets a specific contribution. Empty means the
	// caller's own.
	ContributionID string
	DisplayName    string
	BearerToken    string
	GuestToken     string
}

type RepriceInput struct {
	ItemID      int64
	BearerToken string
	Price       decimal.NullDecimal
}

// ViewerInput identifies who is reading so their own contributions can be
// marked. Both tokens are optional.
type ViewerInput struct {
	BearerToken string
	GuestToken  string
}

type DonumI interface {
	Start(ctx context.Context) error
	Reserve(ctx context.Context, in ReserveInput) (*ReserveResult, error)
	Unreserve(ctx context.Context, in UnreserveInput) (*FundingSnapshot, error)
	Reprice(ctx context.Context, in RepriceInput) (*FundingSnapshot, error)
	Snapshot(ctx context.Context, itemID int64, viewer ViewerInput) (*FundingSnapshot, error)
	ListSnapshots(ctx context.Context, key string, viewer ViewerInput) ([]*FundingSnapshot, error)
	MyContributions(ctx context.Context, caller ViewerInput) ([]*FundingSnapshot, error)
	Subscribe(ctx context.Context, key string) (Subscription, error)
	LogoutGuest(ctx context.Context, token string) error
}

type APIServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}
