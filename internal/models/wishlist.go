package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wishlist is the owner's list of items. It is addressed publicly by its
// share token.
type Wishlist struct {
	// ID is the internal list identifier.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// OwnerID is the user id of the list owner.
	OwnerID int64 `json:"owner_id" gorm:"column:owner_id;index;not null"`
	// Title is the list title.
	Title string `json:"title" gorm:"column:title;size:255"`
	// ShareToken is the public alias of the list.
	ShareToken string `json:"share_token" gorm:"column:share_token;size:64;uniqueIndex;not null"`
	// Items are the items of the list.
	Items []Item `json:"items,omitempty" gorm:"foreignKey:WishlistID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the creation time.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// Item is a single wish with its funding aggregate. CollectedAmount and
// IsReserved are only ever written through a ledger mutation.
type Item struct {
	// ID is the item identifier.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// WishlistID is the list the item belongs to.
	WishlistID int64 `json:"wishlist_id" gorm:"column:wishlist_id;index;not null"`
	// Title is the item title.
	Title string `json:"title" gorm:"column:title;size:255"`
	// Price is the funding target. Invalid means the item has no price.
	Price decimal.NullDecimal `json:"price" gorm:"column:price;type:numeric(10,2)"`
	// Currency is a display symbol or code, never converted.
	Currency string `json:"currency" gorm:"column:currency;size:10"`
	// CollectedAmount is the sum of all contribution amounts.
	CollectedAmount decimal.Decimal `json:"collected_amount" gorm:"column:collected_amount;type:numeric(10,2);not null"`
	// IsReserved is derived from Price and Contributions.
	IsReserved bool `json:"is_reserved" gorm:"column:is_reserved;not null"`
	// Contributions ordered by creation.
	Contributions []Contribution `json:"contributions,omitempty" gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"column:updated_at"`
}
