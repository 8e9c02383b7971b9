package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type FundingState string

const (
	StateUnreserved      FundingState = "unreserved"
	StatePartiallyFunded FundingState = "partially_funded"
	StateFullyReserved   FundingState = "fully_reserved"
)

// FundingSnapshot is the committed funding view of one item.
type FundingSnapshot struct {
	ItemID          int64               `json:"item_id"`
	ListID          int64               `json:"wishlist_id"`
	Title           string              `json:"title"`
	Price           decimal.NullDecimal `json:"price"`
	Currency        string              `json:"currency"`
	CollectedAmount decimal.Decimal     `json:"collected_amount"`
	IsReserved      bool                `json:"is_reserved"`
	State           FundingState        `json:"state"`
	Contributions   []ContributionView  `json:"contributions"`
}

// ContributionView is a contribution as shown to a viewer. Mine marks the
// viewer's own contribution.
type ContributionView struct {
	ID          string           `json:"id"`
	DisplayName string           `json:"display_name"`
	Kind        ContributionKind `json:"kind"`
	Amount      decimal.Decimal  `json:"amount"`
	CreatedAt   time.Time        `json:"created_at"`
	Mine        bool             `json:"mine,omitempty"`
}
