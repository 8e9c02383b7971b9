package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "donum.db"), logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, db *DB, price string) (*models.Wishlist, *models.Item) {
	t.Helper()
	ctx := context.Background()
	list := &models.Wishlist{OwnerID: 1, Title: "Birthday", ShareToken: "pB3x_share-token"}
	require.NoError(t, db.CreateWishlist(ctx, list))
	item := &models.Item{WishlistID: list.ID, Title: "Kettle", Currency: "₽"}
	if price != "" {
		item.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	require.NoError(t, db.CreateItem(ctx, item))
	return list, item
}

func contribution(itemID int64, key, name, amount string, at time.Time) *models.Contribution {
	return &models.Contribution{
		ItemID:      itemID,
		ActorKey:    key,
		DisplayName: name,
		Kind:        models.ContributionPartial,
		Amount:      decimal.RequireFromString(amount),
		CreatedAt:   at,
	}
}

func TestMutateItemAddAndRemove(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	list, item := seed(t, db, "1000")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	out, gotList, err := db.MutateItem(ctx, item.ID, func(it *models.Item, l *models.Wishlist) (*models.ItemMutation, error) {
		assert.Equal(t, list.ID, l.ID)
		assert.Empty(t, it.Contributions)
		return &models.ItemMutation{
			Add:             contribution(it.ID, "guest:a", "Anna", "400", start),
			CollectedAmount: decimal.RequireFromString("400"),
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, list.ID, gotList.ID)
	require.Len(t, out.Contributions, 1)
	assert.NotEmpty(t, out.Contributions[0].ID)
	assert.True(t, out.CollectedAmount.Equal(decimal.RequireFromString("400")))

	_, _, err = db.MutateItem(ctx, item.ID, func(it *models.Item, _ *models.Wishlist) (*models.ItemMutation, error) {
		return &models.ItemMutation{
			Add:             contribution(it.ID, "guest:b", "Boris", "600", start.Add(time.Minute)),
			CollectedAmount: decimal.RequireFromString("1000"),
			IsReserved:      true,
		}, nil
	})
	require.NoError(t, err)

	got, err := db.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, got.Contributions, 2)
	assert.Equal(t, "Anna", got.Contributions[0].DisplayName)
	assert.Equal(t, "Boris", got.Contributions[1].DisplayName)
	assert.True(t, got.IsReserved)

	annaID := got.Contributions[0].ID
	out, _, err = db.MutateItem(ctx, item.ID, func(it *models.Item, _ *models.Wishlist) (*models.ItemMutation, error) {
		require.Len(t, it.Contributions, 2)
		return &models.ItemMutation{RemoveID: annaID, CollectedAmount: decimal.RequireFromString("600")}, nil
	})
	require.NoError(t, err)
	require.Len(t, out.Contributions, 1)
	assert.Equal(t, "Boris", out.Contributions[0].DisplayName)
	assert.False(t, out.IsReserved)
}

func TestMutateItemRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, item := seed(t, db, "100")

	_, _, err := db.MutateItem(ctx, item.ID, func(it *models.Item, _ *models.Wishlist) (*models.ItemMutation, error) {
		return nil, apperrors.ErrDuplicateContribution
	})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateContribution)

	got, err := db.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Contributions)
	assert.True(t, got.CollectedAmount.IsZero())
}

func TestMutateItemUniqueActor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, item := seed(t, db, "100")
	at := time.Now().UTC()

	add := func(it *models.Item, _ *models.Wishlist) (*models.ItemMutation, error) {
		return &models.ItemMutation{Add: contribution(it.ID, "user:9", "Vera", "10", at), CollectedAmount: decimal.NewFromInt(10)}, nil
	}
	_, _, err := db.MutateItem(ctx, item.ID, add)
	require.NoError(t, err)

	_, _, err = db.MutateItem(ctx, item.ID, add)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateContribution)
}

func TestMutateItemSetsPrice(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, item := seed(t, db, "100")

	price := decimal.NullDecimal{}
	out, _, err := db.MutateItem(ctx, item.ID, func(*models.Item, *models.Wishlist) (*models.ItemMutation, error) {
		return &models.ItemMutation{SetPrice: &price}, nil
	})
	require.NoError(t, err)
	assert.False(t, out.Price.Valid)
}

func TestMutateItemNotFound(t *testing.T) {
	db := newTestDB(t)
	_, _, err := db.MutateItem(context.Background(), 404, func(*models.Item, *models.Wishlist) (*models.ItemMutation, error) {
		t.Fatal("callback must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)

	_, err = db.GetItem(context.Background(), 404)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestResolveChannel(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	list, _ := seed(t, db, "")

	id, err := db.ResolveChannel(ctx, list.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, list.ID, id)

	id, err = db.ResolveChannel(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, list.ID, id)

	_, err = db.ResolveChannel(ctx, "999")
	assert.ErrorIs(t, err, apperrors.ErrListNotFound)

	_, err = db.ResolveChannel(ctx, "unknown-token")
	assert.ErrorIs(t, err, apperrors.ErrListNotFound)
}

func TestListItems(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	list, first := seed(t, db, "10")
	second := &models.Item{WishlistID: list.ID, Title: "Book"}
	require.NoError(t, db.CreateItem(ctx, second))

	items, err := db.ListItems(ctx, list.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)
}

func TestGuestSessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	live := &models.GuestSession{TokenHash: "live", DisplayName: "Anna", CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour)}
	old := &models.GuestSession{TokenHash: "old", DisplayName: "Boris", CreatedAt: now, ExpiresAt: now.Add(-24 * time.Hour)}
	require.NoError(t, db.CreateGuestSession(ctx, live))
	require.NoError(t, db.CreateGuestSession(ctx, old))

	got, err := db.GetGuestSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "Anna", got.DisplayName)
	assert.False(t, got.Revoked())

	require.NoError(t, db.RevokeGuestSession(ctx, "live", now))
	require.NoError(t, db.RevokeGuestSession(ctx, "live", now.Add(time.Hour)))
	got, err = db.GetGuestSession(ctx, "live")
	require.NoError(t, err)
	require.True(t, got.Revoked())
	assert.True(t, got.RevokedAt.Equal(now))

	assert.ErrorIs(t, db.RevokeGuestSession(ctx, "missing", now), apperrors.ErrGuestUnknown)

	n, err := db.DeleteGuestSessionsExpiredBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = db.GetGuestSession(ctx, "old")
	assert.ErrorIs(t, err, apperrors.ErrGuestUnknown)
}

func TestPurgeKeepsSessionsHoldingContributions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, item := seed(t, db, "1000")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-24 * time.Hour)

	// first and renewed belong to the same guest, who still holds a contribution.
	first := &models.GuestSession{TokenHash: "first", ActorHash: "first", DisplayName: "Anna", CreatedAt: expired, ExpiresAt: expired}
	renewed := &models.GuestSession{TokenHash: "renewed", ActorHash: "first", DisplayName: "Anna", CreatedAt: expired, ExpiresAt: expired}
	idle := &models.GuestSession{TokenHash: "idle", ActorHash: "idle", DisplayName: "Boris", CreatedAt: expired, ExpiresAt: expired}
	for _, s := range []*models.GuestSession{first, renewed, idle} {
		require.NoError(t, db.CreateGuestSession(ctx, s))
	}

	hash := "first"
	held := contribution(item.ID, "guest:first", "Anna", "100", now)
	held.GuestTokenHash = &hash
	_, _, err := db.MutateItem(ctx, item.ID, func(*models.Item, *models.Wishlist) (*models.ItemMutation, error) {
		return &models.ItemMutation{Add: held, CollectedAmount: decimal.RequireFromString("100")}, nil
	})
	require.NoError(t, err)

	n, err := db.DeleteGuestSessionsExpiredBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetGuestSession(ctx, "idle")
	assert.ErrorIs(t, err, apperrors.ErrGuestUnknown)
	for _, hash := range []string{"first", "renewed"} {
		_, err = db.GetGuestSession(ctx, hash)
		assert.NoError(t, err, hash)
	}
}

func TestListContributionsByActor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	list, kettle := seed(t, db, "1000")
	book := &models.Item{WishlistID: list.ID, Title: "Book"}
	require.NoError(t, db.CreateItem(ctx, book))
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	guest := models.GuestActor{ActorHash: "anna", DisplayName: "Anna"}
	user := models.AuthenticatedUser{UserID: 7, DisplayName: "Vera"}
	add := func(itemID int64, actor models.Actor, amount string, at time.Time) {
		c := contribution(itemID, actor.Key(), actor.Name(), amount, at)
		c.UserID, c.GuestTokenHash = models.Attribution(actor)
		_, _, err := db.MutateItem(ctx, itemID, func(*models.Item, *models.Wishlist) (*models.ItemMutation, error) {
			return &models.ItemMutation{Add: c}, nil
		})
		require.NoError(t, err)
	}
	add(kettle.ID, guest, "100", start)
	add(book.ID, guest, "0", start.Add(time.Hour))
	add(kettle.ID, user, "200", start.Add(2*time.Hour))

	mine, err := db.ListContributionsByActor(ctx, guest)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, book.ID, mine[0].ItemID, "newest first")
	assert.Equal(t, kettle.ID, mine[1].ItemID)

	mine, err = db.ListContributionsByActor(ctx, user)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Vera", mine[0].DisplayName)

	mine, err = db.ListContributionsByActor(ctx, models.AuthenticatedUser{UserID: 8})
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestResolveChannelDigitShareToken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	list := &models.Wishlist{OwnerID: 1, Title: "Numbers", ShareToken: "20260101"}
	require.NoError(t, db.CreateWishlist(ctx, list))

	id, err := db.ResolveChannel(ctx, "20260101")
	require.NoError(t, err)
	assert.Equal(t, list.ID, id)

	id, err = db.ResolveChannel(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, list.ID, id)
}
