package core

import "fmt"

// StrategyKind names one of the closed set of fulfillment policies.
type StrategyKind string

const (
	StrategyNearest       StrategyKind = "nearest"
	StrategyHighestStock  StrategyKind = "highest_stock"
	StrategyPreferred     StrategyKind = "preferred"
	StrategyCostOptimized StrategyKind = "cost_optimized"
)

// Allocation is a quantity to draw from one location.
type Allocation struct {
	LocationID string `json:"stock_location_id"`
	Quantity   int64  `json:"quantity"`
}

// FulfillmentStrategy selects which location(s) supply a requested
// quantity of a variant. Implementations are pure: same candidates and
// metadata always yield the same selection, and they never block.
//
// Strategies assume the caller validated quantity > 0. "No candidate has
// stock" yields nil rather than an error, and a multi-location
// allocation that cannot reach the full quantity returns nil rather
// than a partial result, signalling the caller to back-order or reject.
type FulfillmentStrategy interface {
	// Kind returns the policy's tag.
	Kind() StrategyKind

	// SelectLocation picks a single location able to cover the full
	// quantity, or nil when none qualifies. customer may be nil.
	SelectLocation(variant *Variant, quantity int64, candidates []*StockLocation, customer *Coordinates) *StockLocation

	// Allocate spreads the quantity across one or more locations in
	// policy order. The allocations sum to exactly quantity, or the
	// result is nil.
	Allocate(variant *Variant, quantity int64, candidates []*StockLocation, customer *Coordinates) []Allocation
}

// StrategyFor resolves a kind to its implementation. Policies needing
// configuration (Preferred with an explicit location id, CostOptimized
// with a location cap) have dedicated constructors.
func StrategyFor(kind StrategyKind) (FulfillmentStrategy, error) {
	switch kind {
	case StrategyNearest:
		return &NearestStrategy{}, nil
	case StrategyHighestStock:
		return &HighestStockStrategy{}, nil
	case StrategyPreferred:
		return &PreferredStrategy{}, nil
	case StrategyCostOptimized:
		return NewCostOptimizedStrategy(0), nil
	default:
		return nil, fmt.Errorf("unknown fulfillment strategy %q", kind)
	}
}

// DefaultStrategy is the fallback when a caller names an unrecognized
// strategy.
func DefaultStrategy() FulfillmentStrategy {
	return &HighestStockStrategy{}
}

// available returns the variant's available count at the location, zero
// when the location does not track the variant.
func available(variant *Variant, loc *StockLocation) int64 {
	si := variant.StockItemAt(loc.ID)
	if si == nil {
		return 0
	}
	return si.Available()
}

// withAvailable filters candidates to those with at least minAvailable
// of the variant, preserving order.
func withAvailable(variant *Variant, candidates []*StockLocation, minAvailable int64) []*StockLocation {
	var out []*StockLocation
	for _, loc := range candidates {
		if available(variant, loc) >= minAvailable {
			out = append(out, loc)
		}
	}
	return out
}

// greedyAllocate drains ordered locations until the quantity is
// satisfied. Returns nil when the candidates are exhausted first.
func greedyAllocate(variant *Variant, quantity int64, ordered []*StockLocation) []Allocation {
	var allocations []Allocation
	remaining := quantity
	for _, loc := range ordered {
		if remaining <= 0 {
			break
		}
		avail := available(variant, loc)
		if avail <= 0 {
			continue
		}
		take := min(avail, remaining)
		allocations = append(allocations, Allocation{LocationID: loc.ID, Quantity: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil
	}
	return allocations
}
