package repository

import (
	"context"
	"errors"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/pkg/validation"
)

// ResolveChannel maps a list id or share token to the list id.
func (db *DB) ResolveChannel(ctx context.Context, key string) (int64, error) {
	id, isID, err := validation.ParseChannelKey(key)
	if err != nil {
		return 0, err
	}
	if isID {
		list, err := db.GetWishlist(ctx, id)
		if err == nil {
			return list.ID, nil
		}
		// A share token may be all digits.
		if !errors.Is(err, apperrors.ErrListNotFound) {
			return 0, err
		}
	}
	list, err := db.GetWishlistByShareToken(ctx, key)
	if err != nil {
		return 0, err
	}
	return list.ID, nil
}
