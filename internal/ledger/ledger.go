// Package ledger holds the funding rules of a single item. Every function is
// pure: it takes the current aggregate and returns the change to apply, so
// the caller decides where the critical section and the commit happen.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/models"
)

// Scale is the number of fractional digits amounts may carry.
const Scale = 2

// Funding is the funding aggregate of one item.
type Funding struct {
	ItemID        int64
	Price         decimal.NullDecimal
	Contributions []models.Contribution
}

// Change is the result of an accepted mutation.
type Change struct {
	Added   *models.Contribution
	Removed *models.Contribution
	After   Funding
}

func FromItem(item *models.Item) Funding {
	contributions := make([]models.Contribution, len(item.Contributions))
	copy(contributions, item.Contributions)
	return Funding{ItemID: item.ID, Price: item.Price, Contributions: contributions}
}

// Collected is the sum of all contribution amounts.
func (f Funding) Collected() decimal.Decimal {
	sum := decimal.Zero
	for _, c := range f.Contributions {
		sum = sum.Add(c.Amount)
	}
	return sum
}

// Remaining is price minus collected. It is zero for a priceless item.
func (f Funding) Remaining() decimal.Decimal {
	if !f.Price.Valid {
		return decimal.Zero
	}
	return f.Price.Decimal.Sub(f.Collected())
}

// IsReserved is true when a priceless item holds its single full
// reservation, or when a priced item is fully funded.
func (f Funding) IsReserved() bool {
	if !f.Price.Valid {
		return len(f.Contributions) == 1 && f.Contributions[0].Amount.IsZero()
	}
	return f.Collected().GreaterThanOrEqual(f.Price.Decimal)
}

func (f Funding) State() models.FundingState {
	switch {
	case f.IsReserved():
		return models.StateFullyReserved
	case len(f.Contributions) > 0:
		return models.StatePartiallyFunded
	default:
		return models.StateUnreserved
	}
}

func (f Funding) indexOfActor(key string) int {
	for i, c := range f.Contributions {
		if c.ActorKey == key {
			return i
		}
	}
	return -1
}

func (f Funding) indexOfID(id string) int {
	for i, c := range f.Contributions {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Reserve dispatches on the requested amount.
func (f Funding) Reserve(actor models.Actor, amount models.Amount, now time.Time) (*Change, error) {
	if amount.IsPartial() {
		return f.ReservePartial(actor, amount.Value(), now)
	}
	return f.ReserveFull(actor, now)
}

// ReserveFull claims the whole item. A priced item that already has partial
// contributions can only be funded further.
func (f Funding) ReserveFull(actor models.Actor, now time.Time) (*Change, error) {
	if err := requireName(actor); err != nil {
		return nil, err
	}
	if f.IsReserved() {
		return nil, apperrors.ErrAlreadyFullyReserved
	}
	if f.indexOfActor(actor.Key()) >= 0 {
		return nil, apperrors.ErrDuplicateContribution
	}
	if len(f.Contributions) > 0 {
		return nil, apperrors.ErrAlreadyPartiallyFunded.WithMetadata("remaining", f.Remaining().StringFixed(Scale))
	}

	amount := decimal.Zero
	if f.Price.Valid {
		amount = f.Price.Decimal
	}
	return f.add(newContribution(f.ItemID, actor, models.ContributionFull, amount, now)), nil
}

// ReservePartial funds part of a priced item. The amount must be positive and
// fit in what is left.
func (f Funding) ReservePartial(actor models.Actor, amount decimal.Decimal, now time.Time) (*Change, error) {
	if err := requireName(actor); err != nil {
		return nil, err
	}
	if !f.Price.Valid {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidAmount, "item has no price, only a full reservation is possible")
	}
	if !amount.IsPositive() {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidAmount, "amount must be positive")
	}
	if !amount.Equal(amount.Round(Scale)) {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidAmount, fmt.Sprintf("amount must have at most %d decimal places", Scale))
	}
	if f.IsReserved() {
		return nil, apperrors.ErrAlreadyFullyReserved
	}
	if f.indexOfActor(actor.Key()) >= 0 {
		return nil, apperrors.ErrDuplicateContribution
	}
	remaining := f.Remaining()
	if amount.GreaterThan(remaining) {
		return nil, apperrors.New(apperrors.KindConflict, apperrors.CodeInvalidAmount, "amount exceeds what is left to collect").
			WithMetadata("remaining", remaining.StringFixed(Scale))
	}
	return f.add(newContribution(f.ItemID, actor, models.ContributionPartial, amount, now)), nil
}

// Cancel removes a contribution of the actor. With an empty contributionID it
// removes the actor's own; otherwise the targeted contribution must belong to
// the actor.
func (f Funding) Cancel(actor models.Actor, contributionID string) (*Change, error) {
	idx := -1
	if contributionID != "" {
		idx = f.indexOfID(contributionID)
		if idx >= 0 && f.Contributions[idx].ActorKey != actor.Key() {
			return nil, apperrors.ErrNotContributor
		}
	} else {
		idx = f.indexOfActor(actor.Key())
	}
	if idx < 0 {
		return nil, apperrors.ErrNoActiveContribution
	}

	removed := f.Contributions[idx]
	after := Funding{ItemID: f.ItemID, Price: f.Price}
	after.Contributions = make([]models.Contribution, 0, len(f.Contributions)-1)
	after.Contributions = append(after.Contributions, f.Contributions[:idx]...)
	after.Contributions = append(after.Contributions, f.Contributions[idx+1:]...)
	return &Change{Removed: &removed, After: after}, nil
}

// Reprice changes the funding target. Collected money is never stranded: the
// new price may not drop below what is collected, the price may only be
// removed from an item nobody contributed to, and a standing full
// reservation blocks any change.
func (f Funding) Reprice(price decimal.NullDecimal) (Funding, error) {
	if SamePrice(f.Price, price) {
		return f, nil
	}
	if price.Valid {
		if !price.Decimal.IsPositive() {
			return f, apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidAmount, "price must be positive")
		}
		if !price.Decimal.Equal(price.Decimal.Round(Scale)) {
			return f, apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidAmount, fmt.Sprintf("price must have at most %d decimal places", Scale))
		}
	}
	for _, c := range f.Contributions {
		if c.Kind == models.ContributionFull {
			return f, apperrors.ErrAlreadyFullyReserved
		}
	}
	if !price.Valid {
		if len(f.Contributions) > 0 {
			return f, apperrors.New(apperrors.KindConflict, apperrors.CodePriceBelowCollected, "price cannot be removed while contributions exist")
		}
	} else if collected := f.Collected(); price.Decimal.LessThan(collected) {
		return f, apperrors.ErrPriceBelowCollected.WithMetadata("collected", collected.StringFixed(Scale))
	}

	after := f
	after.Price = price
	return after, nil
}

// Check verifies the funding invariants.
func (f Funding) Check() error {
	seen := make(map[string]struct{}, len(f.Contributions))
	for _, c := range f.Contributions {
		if _, ok := seen[c.ActorKey]; ok {
			return fmt.Errorf("item %d: actor %s holds more than one contribution", f.ItemID, c.ActorKey)
		}
		seen[c.ActorKey] = struct{}{}
		if c.Amount.IsNegative() {
			return fmt.Errorf("item %d: contribution %s has negative amount %s", f.ItemID, c.ID, c.Amount)
		}
	}
	if f.Price.Valid && f.Collected().GreaterThan(f.Price.Decimal) {
		return fmt.Errorf("item %d: collected %s exceeds price %s", f.ItemID, f.Collected(), f.Price.Decimal)
	}
	return nil
}

// CheckItem verifies the funding invariants and that the stored aggregate
// matches its derivation.
func CheckItem(item *models.Item) error {
	f := FromItem(item)
	if err := f.Check(); err != nil {
		return err
	}
	if !item.CollectedAmount.Equal(f.Collected()) {
		return fmt.Errorf("item %d: stored collected %s, contributions sum to %s", item.ID, item.CollectedAmount, f.Collected())
	}
	if item.IsReserved != f.IsReserved() {
		return fmt.Errorf("item %d: stored reserved=%t, derived %t", item.ID, item.IsReserved, f.IsReserved())
	}
	return nil
}

func (f Funding) add(c models.Contribution) *Change {
	after := Funding{ItemID: f.ItemID, Price: f.Price}
	after.Contributions = make([]models.Contribution, 0, len(f.Contributions)+1)
	after.Contributions = append(after.Contributions, f.Contributions...)
	after.Contributions = append(after.Contributions, c)
	return &Change{Added: &c, After: after}
}

func newContribution(itemID int64, actor models.Actor, kind models.ContributionKind, amount decimal.Decimal, now time.Time) models.Contribution {
	userID, tokenHash := models.Attribution(actor)
	return models.Contribution{
		ID:             uuid.NewString(),
		ItemID:         itemID,
		ActorKey:       actor.Key(),
		UserID:         userID,
		GuestTokenHash: tokenHash,
		DisplayName:    actor.Name(),
		Kind:           kind,
		Amount:         amount,
		CreatedAt:      now,
	}
}

func requireName(actor models.Actor) error {
	if strings.TrimSpace(actor.Name()) == "" {
		return apperrors.ErrDisplayNameRequired
	}
	return nil
}

// SamePrice reports whether two prices are both absent or numerically equal.
func SamePrice(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
