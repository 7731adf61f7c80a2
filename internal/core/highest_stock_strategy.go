package core

import "sort"

// HighestStockStrategy drains the locations holding the most available
// stock first, concentrating shipments where inventory is deepest.
type HighestStockStrategy struct{}

func (s *HighestStockStrategy) Kind() StrategyKind { return StrategyHighestStock }

func (s *HighestStockStrategy) SelectLocation(variant *Variant, quantity int64, candidates []*StockLocation, customer *Coordinates) *StockLocation {
	eligible := withAvailable(variant, candidates, quantity)
	if len(eligible) == 0 {
		return nil
	}
	return byAvailableDesc(variant, eligible)[0]
}

func (s *HighestStockStrategy) Allocate(variant *Variant, quantity int64, candidates []*StockLocation, customer *Coordinates) []Allocation {
	eligible := byAvailableDesc(variant, withAvailable(variant, candidates, 1))
	return greedyAllocate(variant, quantity, eligible)
}

// byAvailableDesc returns the locations stably sorted by available
// quantity of the variant, largest first.
func byAvailableDesc(variant *Variant, locations []*StockLocation) []*StockLocation {
	ordered := make([]*StockLocation, len(locations))
	copy(ordered, locations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return available(variant, ordered[i]) > available(variant, ordered[j])
	})
	return ordered
}
