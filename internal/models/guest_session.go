package models

import "time"

// GuestSession backs an anonymous actor token. The raw token is never stored.
type GuestSession struct {
	// ID is the row identifier.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// TokenHash is the hex SHA-256 of the token.
	TokenHash string `json:"-" gorm:"column:token_hash;size:64;uniqueIndex;not null"`
	// ActorHash is the token hash of the first session of this guest.
	// Sessions renewed after expiry carry it forward so the guest keeps
	// ownership of their contributions. Empty on rows created before renewal
	// existed, where the token hash stands in.
	ActorHash string `json:"-" gorm:"column:actor_hash;size:64;index;not null;default:''"`
	// DisplayName is the name the guest reserved with.
	DisplayName string `json:"display_name" gorm:"column:display_name;size:100"`
	// CreatedAt is the issue time.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	// ExpiresAt is CreatedAt plus the guest TTL.
	ExpiresAt time.Time `json:"expires_at" gorm:"column:expires_at;index;not null"`
	// RevokedAt is set on logout.
	RevokedAt *time.Time `json:"revoked_at,omitempty" gorm:"column:revoked_at"`
}

// Identity is the hash contributions of this guest are attributed to.
func (s *GuestSession) Identity() string {
	if s.ActorHash != "" {
		return s.ActorHash
	}
	return s.TokenHash
}

func (s *GuestSession) Revoked() bool {
	return s.RevokedAt != nil
}

// ExpiredAt reports whether the session is past its expiry at now.
func (s *GuestSession) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
