package coordinator

import (
	"github.com/wishliste/donum/internal/ledger"
	"github.com/wishliste/donum/internal/models"
)

// SnapshotOf builds the funding view of a committed item. Contributions of
// viewer, when given, are marked as theirs.
func SnapshotOf(item *models.Item, viewer models.Actor) *models.FundingSnapshot {
	f := ledger.FromItem(item)
	snap := &models.FundingSnapshot{
		ItemID:          item.ID,
		ListID:          item.WishlistID,
		Title:           item.Title,
		Price:           item.Price,
		Currency:        item.Currency,
		CollectedAmount: f.Collected(),
		IsReserved:      f.IsReserved(),
		State:           f.State(),
		Contributions:   make([]models.ContributionView, 0, len(item.Contributions)),
	}
	for _, c := range item.Contributions {
		snap.Contributions = append(snap.Contributions, models.ContributionView{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Kind:        c.Kind,
			Amount:      c.Amount,
			CreatedAt:   c.CreatedAt,
			Mine:        viewer != nil && c.ActorKey == viewer.Key(),
		})
	}
	return snap
}
