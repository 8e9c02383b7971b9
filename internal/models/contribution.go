package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ContributionKind string

const (
	// ContributionFull claims the whole item.
	ContributionFull ContributionKind = "full"
	// ContributionPartial funds part of the price.
	ContributionPartial ContributionKind = "partial"
)

// Contribution is one actor's claim against an item. History stays
// attributed to the guest token hash after the session ends.
type Contribution struct {
	// ID is a random UUID assigned on insert.
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// ItemID is the funded item.
	ItemID int64 `json:"item_id" gorm:"column:item_id;not null;uniqueIndex:idx_contribution_item_actor,priority:1"`
	// ActorKey identifies the contributor. At most one per item.
	ActorKey string `json:"-" gorm:"column:actor_key;size:80;not null;uniqueIndex:idx_contribution_item_actor,priority:2"`
	// UserID is set for authenticated contributors.
	UserID *int64 `json:"-" gorm:"column:user_id;index"`
	// GuestTokenHash is set for guest contributors.
	GuestTokenHash *string `json:"-" gorm:"column:guest_token_hash;size:64;index"`
	// DisplayName is shown to other viewers.
	DisplayName string `json:"display_name" gorm:"column:display_name;size:100;not null"`
	// Kind tells a full reservation from a partial one.
	Kind ContributionKind `json:"kind" gorm:"column:kind;size:16;not null"`
	// Amount is zero for a full reservation of a priceless item.
	Amount decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(10,2);not null"`
	// CreatedAt orders contributions for display.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
}

func (c *Contribution) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
