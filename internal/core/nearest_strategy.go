package core

import "sort"

// NearestStrategy prefers the locations closest to the customer by
// great-circle distance. Without customer coordinates it degrades to
// candidate order; locations without coordinates sort after those with,
// ties breaking on iteration order.
type NearestStrategy struct{}

func (s *NearestStrategy) Kind() StrategyKind { return StrategyNearest }

func (s *NearestStrategy) SelectLocation(variant *Variant, quantity int64, candidates []*StockLocation, customer *Coordinates) *StockLocation {
	eligible := withAvailable(variant, candidates, quantity)
	if len(eligible) == 0 {
		return nil
	}
	if customer == nil {
		return eligible[0]
	}
	return byDistance(eligible, *customer)[0]
}

func (s *NearestStrategy) Allocate(variant *Variant, quantity int64, candidates []*StockLocation, customer *Coordinates) []Allocation {
	eligible := withAvailable(variant, candidates, 1)
	if customer != nil {
		eligible = byDistance(eligible, *customer)
	}
	return greedyAllocate(variant, quantity, eligible)
}

// byDistance returns the locations stably sorted by distance to the
// point; locations without coordinates keep their relative order at the
// end.
func byDistance(locations []*StockLocation, point Coordinates) []*StockLocation {
	ordered := make([]*StockLocation, len(locations))
	copy(ordered, locations)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, iOK := ordered[i].DistanceTo(point)
		dj, jOK := ordered[j].DistanceTo(point)
		if iOK != jOK {
			return iOK
		}
		if !iOK {
			return false
		}
		return di < dj
	})
	return ordered
}
