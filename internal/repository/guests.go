package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/models"
)

func (db *DB) CreateGuestSession(ctx context.Context, session *models.GuestSession) error {
	if err := db.Conn.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create guest session: %w", err)
	}
	return nil
}

func (db *DB) GetGuestSession(ctx context.Context, tokenHash string) (*models.GuestSession, error) {
	var session models.GuestSession
	if err := db.Conn.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrGuestUnknown
		}
		return nil, fmt.Errorf("failed to get guest session: %w", err)
	}
	return &session, nil
}

// RevokeGuestSession marks the session revoked. Revoking twice keeps the
// first timestamp.
func (db *DB) RevokeGuestSession(ctx context.Context, tokenHash string, at time.Time) error {
	res := db.Conn.WithContext(ctx).Model(&models.GuestSession{}).
		Where("token_hash = ? AND revoked_at IS NULL", tokenHash).
		Update("revoked_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to revoke guest session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := db.GetGuestSession(ctx, tokenHash); err != nil {
			return err
		}
	}
	return nil
}

// DeleteGuestSessionsExpiredBefore removes sessions that expired before the
// given time. Sessions of a guest with active contributions are kept: they are
// the only credential that can still cancel them.
func (db *DB) DeleteGuestSessionsExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	res := db.Conn.WithContext(ctx).
		Where("expires_at < ?", before).
		Where("NOT EXISTS (?)", db.Conn.Model(&models.Contribution{}).
			Select("1").
			Where("contributions.guest_token_hash = COALESCE(NULLIF(guest_sessions.actor_hash, ''), guest_sessions.token_hash)")).
		Delete(&models.GuestSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to remove expired guest sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
