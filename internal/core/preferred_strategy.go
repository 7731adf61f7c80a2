package core

import "sort"

// MetaPreferencePriority is the metadata key holding a location's
// numeric admin preference, read from public then private metadata.
// Higher wins; absent means 0.
const MetaPreferencePriority = "preference_priority"

// PreferredStrategy routes to an admin-preferred location: either the
// explicitly configured one, or the candidate with the highest
// preference priority in its metadata. It never splits a request: the
// result is a single location able to cover the full quantity, or
// nothing.
type PreferredStrategy struct {
	// PreferredLocationID, when set, is tried before any metadata
	// ranking.
	PreferredLocationID string
}

// NewPreferredStrategy configures the policy with an explicit preferred
// location.
func NewPreferredStrategy(locationID string) *PreferredStrategy {
	return &PreferredStrategy{PreferredLocationID: locationID}
}

func (s *PreferredStrategy) Kind() StrategyKind { return StrategyPreferred }

func (s *PreferredStrategy) SelectLocation(variant *Variant, quantity int64, candidates []*StockLocation, customer *Coordinates) *StockLocation {
	eligible := withAvailable(variant, candidates, quantity)
	if len(eligible) == 0 {
		return nil
	}
	if s.PreferredLocationID != "" {
		for _, loc := range eligible {
			if loc.ID == s.PreferredLocationID {
				return loc
			}
		}
	}
	ordered := make([]*StockLocation, len(eligible))
	copy(ordered, eligible)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MetaInt(MetaPreferencePriority, 0) > ordered[j].MetaInt(MetaPreferencePriority, 0)
	})
	return ordered[0]
}

// Allocate covers the whole quantity from the selected location, or
// returns nil. Splitting is not supported by this policy.
func (s *PreferredStrategy) Allocate(variant *Variant, quantity int64, candidates []*StockLocation, customer *Coordinates) []Allocation {
	loc := s.SelectLocation(variant, quantity, candidates, customer)
	if loc == nil {
		return nil
	}
	return []Allocation{{LocationID: loc.ID, Quantity: quantity}}
}
