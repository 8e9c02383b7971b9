package models

import (
	"strconv"
	"time"
)

// Actor is whoever performs a reservation: an AuthenticatedUser or a
// GuestActor. It is an attribution and authorization key only.
type Actor interface {
	// Key is the stable attribution key stored on contributions.
	Key() string
	// Name is the display name attached to new contributions.
	Name() string
	isActor()
}

// AuthenticatedUser is a logged-in account resolved from a bearer token.
type AuthenticatedUser struct {
	UserID      int64
	DisplayName string
}

func (u AuthenticatedUser) Key() string  { return "user:" + strconv.FormatInt(u.UserID, 10) }
func (u AuthenticatedUser) Name() string { return u.DisplayName }
func (AuthenticatedUser) isActor()       {}

// GuestActor is an anonymous visitor holding a guest session token. ActorHash
// is the hash of the guest's first token and survives session renewal.
type GuestActor struct {
	ActorHash   string
	DisplayName string
	ExpiresAt   time.Time
}

func (g GuestActor) Key() string  { return "guest:" + g.ActorHash }
func (g GuestActor) Name() string { return g.DisplayName }
func (GuestActor) isActor()       {}

// WithName returns a copy of the actor carrying a different display name.
func WithName(a Actor, name string) Actor {
	switch v := a.(type) {
	case AuthenticatedUser:
		v.DisplayName = name
		return v
	case GuestActor:
		v.DisplayName = name
		return v
	}
	return a
}

// Attribution returns the columns a contribution stores for the actor.
func Attribution(a Actor) (userID *int64, guestTokenHash *string) {
	switch v := a.(type) {
	case AuthenticatedUser:
		id := v.UserID
		return &id, nil
	case GuestActor:
		h := v.ActorHash
		return nil, &h
	}
	return nil, nil
}
