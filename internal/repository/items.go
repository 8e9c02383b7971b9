package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/models"
)

func orderContributions(tx *gorm.DB) *gorm.DB {
	return tx.Order("created_at ASC, id ASC")
}

func (db *DB) CreateWishlist(ctx context.Context, list *models.Wishlist) error {
	if err := db.Conn.WithContext(ctx).Create(list).Error; err != nil {
		return fmt.Errorf("failed to create wishlist: %w", err)
	}
	return nil
}

func (db *DB) CreateItem(ctx context.Context, item *models.Item) error {
	if err := db.Conn.WithContext(ctx).Omit("Contributions").Create(item).Error; err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (db *DB) GetWishlist(ctx context.Context, listID int64) (*models.Wishlist, error) {
	var list models.Wishlist
	if err := db.Conn.WithContext(ctx).First(&list, listID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrListNotFound
		}
		return nil, fmt.Errorf("failed to get wishlist: %w", err)
	}
	return &list, nil
}

func (db *DB) GetWishlistByShareToken(ctx context.Context, token string) (*models.Wishlist, error) {
	var list models.Wishlist
	if err := db.Conn.WithContext(ctx).Where("share_token = ?", token).First(&list).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrListNotFound
		}
		return nil, fmt.Errorf("failed to get wishlist by share token: %w", err)
	}
	return &list, nil
}

func (db *DB) GetItem(ctx context.Context, itemID int64) (*models.Item, error) {
	var item models.Item
	err := db.Conn.WithContext(ctx).
		Preload("Contributions", orderContributions).
		First(&item, itemID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

func (db *DB) ListItems(ctx context.Context, listID int64) ([]*models.Item, error) {
	var items []*models.Item
	err := db.Conn.WithContext(ctx).
		Preload("Contributions", orderContributions).
		Where("wishlist_id = ?", listID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// ListContributionsByActor looks contributions up through the attribution
// columns, so guest history is found under the guest's identity hash.
func (db *DB) ListContributionsByActor(ctx context.Context, actor models.Actor) ([]*models.Contribution, error) {
	q := db.Conn.WithContext(ctx)
	switch userID, guestHash := models.Attribution(actor); {
	case userID != nil:
		q = q.Where("user_id = ?", *userID)
	case guestHash != nil:
		q = q.Where("guest_token_hash = ?", *guestHash)
	default:
		return nil, nil
	}

	var contributions []*models.Contribution
	if err := q.Order("created_at DESC, id DESC").Find(&contributions).Error; err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	return contributions, nil
}

// MutateItem locks the item row for the duration of the transaction, so
// mutations stay serialized across several service instances. The callback
// sees the committed contributions and its result is written in the same
// transaction.
func (db *DB) MutateItem(ctx context.Context, itemID int64, fn models.MutationFunc) (*models.Item, *models.Wishlist, error) {
	var (
		out  models.Item
		list models.Wishlist
	)
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.Item
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrItemNotFound
			}
			return fmt.Errorf("failed to lock item: %w", err)
		}
		if err := orderContributions(tx.Where("item_id = ?", itemID)).Find(&item.Contributions).Error; err != nil {
			return fmt.Errorf("failed to load contributions: %w", err)
		}
		if err := tx.First(&list, item.WishlistID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrListNotFound
			}
			return fmt.Errorf("failed to get wishlist: %w", err)
		}

		m, err := fn(&item, &list)
		if err != nil {
			return err
		}
		if err := applyMutation(tx, itemID, m); err != nil {
			return err
		}

		return tx.Preload("Contributions", orderContributions).First(&out, itemID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &out, &list, nil
}

func applyMutation(tx *gorm.DB, itemID int64, m *models.ItemMutation) error {
	if m == nil {
		return nil
	}
	if m.RemoveID != "" {
		res := tx.Where("id = ? AND item_id = ?", m.RemoveID, itemID).Delete(&models.Contribution{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete contribution: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperrors.ErrNoActiveContribution
		}
	}
	if m.Add != nil {
		if err := tx.Create(m.Add).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.ErrDuplicateContribution
			}
			return fmt.Errorf("failed to create contribution: %w", err)
		}
	}

	updates := map[string]interface{}{
		"collected_amount": m.CollectedAmount,
		"is_reserved":      m.IsReserved,
		"updated_at":       time.Now().UTC(),
	}
	if m.SetPrice != nil {
		updates["price"] = *m.SetPrice
	}
	if err := tx.Model(&models.Item{}).Where("id = ?", itemID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return nil
}
