package models

import "time"

type EventType string

const (
	EventItemReserved   EventType = "item_reserved"
	EventItemUnreserved EventType = "item_unreserved"
	EventItemUpdated    EventType = "item_updated"
)

// InvalidationEvent tells subscribers of a list that something changed and
// they should refetch. It carries no state.
type InvalidationEvent struct {
	Type   EventType `json:"type"`
	ListID int64     `json:"wishlist_id"`
	ItemID int64     `json:"item_id,omitempty"`
	At     time.Time `json:"at"`
}
