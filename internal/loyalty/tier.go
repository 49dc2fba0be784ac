package loyalty

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
)

// SortTiers returns a copy of tiers ordered ascending by threshold.
// Tiers sharing a threshold keep insertion order (by ID), so the
// later-inserted one sorts last.
func SortTiers(tiers []model.Tier) []model.Tier {
	sorted := make([]model.Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].MinPointsRequired.Cmp(sorted[j].MinPointsRequired); c != 0 {
			return c < 0
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// ResolveTier returns the highest tier whose threshold is met by total.
// tiers must already be sorted with SortTiers. When no threshold is met
// the lowest tier is returned; an empty table yields nil.
func ResolveTier(tiers []model.Tier, total decimal.Decimal) *model.Tier {
	if len(tiers) == 0 {
		return nil
	}
	resolved := tiers[0]
	for _, t := range tiers {
		if t.MinPointsRequired.LessThanOrEqual(total) {
			resolved = t
		}
	}
	return &resolved
}

// IsUpgrade reports whether moving from current to resolved is a promotion.
// A nil current tier is upgraded by any resolved tier.
func IsUpgrade(current, resolved *model.Tier) bool {
	if resolved == nil {
		return false
	}
	if current == nil {
		return true
	}
	if current.ID == resolved.ID {
		return false
	}
	return resolved.MinPointsRequired.GreaterThan(current.MinPointsRequired) ||
		(resolved.MinPointsRequired.Equal(current.MinPointsRequired) && resolved.ID > current.ID)
}

// FindTier returns the tier with the given ID, or nil.
func FindTier(tiers []model.Tier, id *int64) *model.Tier {
	if id == nil {
		return nil
	}
	for i := range tiers {
		if tiers[i].ID == *id {
			t := tiers[i]
			return &t
		}
	}
	return nil
}

// DuplicateThresholds returns the names of tiers whose threshold repeats an
// earlier tier's. Such tables resolve to the later tier but are misconfigured.
func DuplicateThresholds(sorted []model.Tier) []string {
	var dups []string
	for i := 1; i < len(sorted); i++ {
		if sorted[i].MinPointsRequired.Equal(sorted[i-1].MinPointsRequired) {
			dups = append(dups, sorted[i].Name)
		}
	}
	return dups
}
