// Package apperrors provides the typed failures returned across the
// reservation boundary.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind groups codes into the classes the HTTP boundary maps to statuses.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindAuthorization   Kind = "authorization"
	KindUnauthenticated Kind = "unauthenticated"
	KindExpiredIdentity Kind = "expired_identity"
	KindRevoked         Kind = "revoked"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// Code is a machine-readable error code.
type Code string

const (
	// Ledger
	CodeAlreadyFullyReserved   Code = "ALREADY_FULLY_RESERVED"
	CodeAlreadyPartiallyFunded Code = "ALREADY_PARTIALLY_FUNDED"
	CodeDuplicateContribution  Code = "DUPLICATE_CONTRIBUTION"
	CodeInvalidAmount          Code = "INVALID_AMOUNT"
	CodeNoActiveContribution   Code = "NO_ACTIVE_CONTRIBUTION"
	CodeNotContributor         Code = "NOT_CONTRIBUTOR"
	CodePriceBelowCollected    Code = "PRICE_BELOW_COLLECTED"

	// Actors
	CodeDisplayNameRequired Code = "DISPLAY_NAME_REQUIRED"
	CodeDisplayNameTooLong  Code = "DISPLAY_NAME_TOO_LONG"
	CodeOwnItem             Code = "OWN_ITEM"
	CodeNotOwner            Code = "NOT_OWNER"
	CodeGuestExpired        Code = "GUEST_EXPIRED"
	CodeGuestRevoked        Code = "GUEST_REVOKED"
	CodeGuestUnknown        Code = "GUEST_UNKNOWN"
	CodeTokenInvalid        Code = "TOKEN_INVALID"

	// Lookups
	CodeItemNotFound Code = "ITEM_NOT_FOUND"
	CodeListNotFound Code = "LIST_NOT_FOUND"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeInternal     Code = "INTERNAL"
)

// Error is the domain error type.
type Error struct {
	Kind     Kind
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, or a bare kind sentinel by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return e.Kind == t.Kind
	}
	return e.Code == t.Code
}

// New creates a domain error.
func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates a domain error around an underlying cause.
func Wrap(kind Kind, code Code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// WithMetadata attaches display metadata (for example the remaining amount).
func (e *Error) WithMetadata(key, value string) *Error {
	cp := *e
	cp.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata[key] = value
	return &cp
}

// Kind sentinels, usable with errors.Is.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrAuthorization   = &Error{Kind: KindAuthorization}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrExpiredIdentity = &Error{Kind: KindExpiredIdentity}
	ErrRevoked         = &Error{Kind: KindRevoked}
	ErrNotFound        = &Error{Kind: KindNotFound}
)

// Code sentinels, usable with errors.Is.
var (
	ErrAlreadyFullyReserved   = New(KindConflict, CodeAlreadyFullyReserved, "item is already fully reserved")
	ErrAlreadyPartiallyFunded = New(KindConflict, CodeAlreadyPartiallyFunded, "item is partially funded, only contributions are accepted")
	ErrDuplicateContribution  = New(KindConflict, CodeDuplicateContribution, "actor already holds a contribution on this item")
	ErrInvalidAmount          = New(KindValidation, CodeInvalidAmount, "invalid amount")
	ErrNoActiveContribution   = New(KindConflict, CodeNoActiveContribution, "actor has no active contribution on this item")
	ErrNotContributor         = New(KindAuthorization, CodeNotContributor, "contribution belongs to another actor")
	ErrPriceBelowCollected    = New(KindConflict, CodePriceBelowCollected, "price cannot drop below the collected amount")
	ErrDisplayNameRequired    = New(KindValidation, CodeDisplayNameRequired, "display name is required")
	ErrDisplayNameTooLong     = New(KindValidation, CodeDisplayNameTooLong, "display name is too long")
	ErrOwnItem                = New(KindAuthorization, CodeOwnItem, "owners cannot reserve their own items")
	ErrNotOwner               = New(KindAuthorization, CodeNotOwner, "only the list owner can do this")
	ErrGuestExpired           = New(KindExpiredIdentity, CodeGuestExpired, "guest session expired")
	ErrGuestRevoked           = New(KindRevoked, CodeGuestRevoked, "guest session revoked")
	ErrGuestUnknown           = New(KindUnauthenticated, CodeGuestUnknown, "unknown guest token")
	ErrTokenInvalid           = New(KindUnauthenticated, CodeTokenInvalid, "invalid access token")
	ErrItemNotFound           = New(KindNotFound, CodeItemNotFound, "item not found")
	ErrListNotFound           = New(KindNotFound, CodeListNotFound, "wish list not found")
)

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
