package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Metadata keys tuning the cost model per location. Absent keys use the
// fixed defaults below.
const (
	MetaFulfillmentCostBase = "fulfillment_cost_base"
	MetaHandlingCostPerUnit = "handling_cost_per_unit"
	MetaShippingCostPerKm   = "shipping_cost_per_km"
)

// defaultMaxCostLocations caps how many locations a cost-optimized
// allocation may split across.
const defaultMaxCostLocations = 3

// defaultDistanceKm is assumed when either endpoint lacks coordinates.
const defaultDistanceKm = 500.0

var (
	defaultCostBase     = decimal.NewFromInt(5)
	defaultHandlingCost = decimal.RequireFromString("0.50")
	defaultShippingCost = decimal.RequireFromString("0.10")
)

// CostOptimizedStrategy ranks locations by estimated fulfillment cost:
//
//	totalCost = base + distanceKm·shippingPerKm + quantity·handlingPerUnit
//
// with coefficients sourced from location metadata. Single-location
// selection picks the cheapest location with sufficient stock;
// multi-location allocation ranks by per-unit cost and greedily drains
// the cheapest locations, splitting across at most MaxLocations.
type CostOptimizedStrategy struct {
	MaxLocations int
}

// NewCostOptimizedStrategy builds the policy; maxLocations <= 0 selects
// the default cap of 3.
func NewCostOptimizedStrategy(maxLocations int) *CostOptimizedStrategy {
	if maxLocations <= 0 {
		maxLocations = defaultMaxCostLocations
	}
	return &CostOptimizedStrategy{MaxLocations: maxLocations}
}

func (s *CostOptimizedStrategy) Kind() StrategyKind { return StrategyCostOptimized }

// FulfillmentCost estimates the total cost of drawing quantity units of
// stock from the location for a customer at the given point.
func (s *CostOptimizedStrategy) FulfillmentCost(loc *StockLocation, quantity int64, customer *Coordinates) decimal.Decimal {
	base := loc.MetaDecimal(MetaFulfillmentCostBase, defaultCostBase)
	handling := loc.MetaDecimal(MetaHandlingCostPerUnit, defaultHandlingCost)
	shipping := loc.MetaDecimal(MetaShippingCostPerKm, defaultShippingCost)

	distance := defaultDistanceKm
	if customer != nil {
		if km, ok := loc.DistanceTo(*customer); ok {
			distance = km
		}
	}
	return base.
		Add(decimal.NewFromFloat(distance).Mul(shipping)).
		Add(decimal.NewFromInt(quantity).Mul(handling))
}

func (s *CostOptimizedStrategy) SelectLocation(variant *Variant, quantity int64, candidates []*StockLocation, customer *Coordinates) *StockLocation {
	eligible := withAvailable(variant, candidates, quantity)
	if len(eligible) == 0 {
		return nil
	}
	ordered := make([]*StockLocation, len(eligible))
	copy(ordered, eligible)
	sort.SliceStable(ordered, func(i, j int) bool {
		return s.FulfillmentCost(ordered[i], quantity, customer).
			LessThan(s.FulfillmentCost(ordered[j], quantity, customer))
	})
	return ordered[0]
}

func (s *CostOptimizedStrategy) Allocate(variant *Variant, quantity int64, candidates []*StockLocation, customer *Coordinates) []Allocation {
	eligible := withAvailable(variant, candidates, 1)
	if len(eligible) == 0 {
		return nil
	}

	// Rank by per-unit cost, amortizing the fixed portion over the
	// units drawable from each location.
	ordered := make([]*StockLocation, len(eligible))
	copy(ordered, eligible)
	sort.SliceStable(ordered, func(i, j int) bool {
		return s.perUnitCost(variant, ordered[i], quantity, customer).
			LessThan(s.perUnitCost(variant, ordered[j], quantity, customer))
	})
	if len(ordered) > s.MaxLocations {
		ordered = ordered[:s.MaxLocations]
	}
	return greedyAllocate(variant, quantity, ordered)
}

func (s *CostOptimizedStrategy) perUnitCost(variant *Variant, loc *StockLocation, quantity int64, customer *Coordinates) decimal.Decimal {
	drawable := min(available(variant, loc), quantity)
	if drawable <= 0 {
		drawable = 1
	}
	return s.FulfillmentCost(loc, drawable, customer).Div(decimal.NewFromInt(drawable))
}
