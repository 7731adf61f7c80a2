package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/core"
	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/memory"
)

// setupPlannerTest seeds three locations:
//
//	loc-east  (40,-74)  v1:100  v2:20
//	loc-west  (34,-118) v1:10
//	loc-idle  inactive  v1:500
func setupPlannerTest(t *testing.T) (*core.FulfillmentPlanner, context.Context) {
	t.Helper()
	store := memory.NewStore()

	east := core.NewStockLocation("loc-east", "East Coast", "EAST")
	east.Position = &core.Coordinates{Latitude: 40.7, Longitude: -74.0}
	west := core.NewStockLocation("loc-west", "West Coast", "WEST")
	west.Position = &core.Coordinates{Latitude: 34.0, Longitude: -118.2}
	idle := core.NewStockLocation("loc-idle", "Mothballed", "IDLE")
	idle.Active = false
	store.AddLocation(east)
	store.AddLocation(west)
	store.AddLocation(idle)

	v1 := &core.Variant{ID: "v1", SKU: "SKU-1"}
	for _, seed := range []struct {
		loc string
		qty int64
	}{{"loc-east", 100}, {"loc-west", 10}, {"loc-idle", 500}} {
		si := core.NewStockItem("v1", seed.loc, "SKU-1")
		si.OnHand = seed.qty
		v1.StockItems = append(v1.StockItems, si)
	}
	v2 := &core.Variant{ID: "v2", SKU: "SKU-2"}
	si := core.NewStockItem("v2", "loc-east", "SKU-2")
	si.OnHand = 20
	v2.StockItems = append(v2.StockItems, si)

	store.AddVariant(v1)
	store.AddVariant(v2)

	return core.NewFulfillmentPlanner(store, nil), context.Background()
}

func TestPlanner_GroupsLinesByLocation(t *testing.T) {
	planner, ctx := setupPlannerTest(t)

	order := core.PlannerOrder{
		ID: "order-1",
		LineItems: []core.OrderLineItem{
			{ID: "line-1", VariantID: "v1", Quantity: 50},
			{ID: "line-2", VariantID: "v2", Quantity: 5},
		},
	}
	result, err := planner.Plan(ctx, order, core.StrategyHighestStock, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	// Both lines route to loc-east (deepest stock for v1, only stock for
	// v2) and must share one shipment.
	if len(result.Shipments) != 1 {
		t.Fatalf("plan has %d shipments, want 1: %+v", len(result.Shipments), result.Shipments)
	}
	s := result.Shipments[0]
	if s.LocationID != "loc-east" || len(s.Items) != 2 {
		t.Errorf("shipment = %+v, want both lines at loc-east", s)
	}
	if !result.FullyFulfillable || result.PartialFulfillment {
		t.Errorf("flags = fullyFulfillable:%v partial:%v, want true/false",
			result.FullyFulfillable, result.PartialFulfillment)
	}
}

func TestPlanner_NearestRoutesByCustomer(t *testing.T) {
	planner, ctx := setupPlannerTest(t)

	// Customer in Los Angeles; west coast holds enough for the line.
	customer := &core.Coordinates{Latitude: 34.05, Longitude: -118.25}
	order := core.PlannerOrder{
		ID:        "order-2",
		LineItems: []core.OrderLineItem{{ID: "line-1", VariantID: "v1", Quantity: 8}},
	}
	result, err := planner.Plan(ctx, order, core.StrategyNearest, customer)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if result.Shipments[0].LocationID != "loc-west" {
		t.Errorf("routed to %s, want loc-west", result.Shipments[0].LocationID)
	}
}

func TestPlanner_IgnoresInactiveLocations(t *testing.T) {
	planner, ctx := setupPlannerTest(t)

	// Only the inactive location holds 500; active ones top out at 100.
	order := core.PlannerOrder{
		ID:        "order-3",
		LineItems: []core.OrderLineItem{{ID: "line-1", VariantID: "v1", Quantity: 200}},
	}
	_, err := planner.Plan(ctx, order, core.StrategyHighestStock, nil)
	var derr *core.DomainError
	if !errors.As(err, &derr) || derr.Code != core.CodeNoStock {
		t.Fatalf("expected %s, got %v", core.CodeNoStock, err)
	}
}

func TestPlanner_FailsFastOnUnroutableLine(t *testing.T) {
	planner, ctx := setupPlannerTest(t)

	// line-2 is unfulfillable; the whole plan must fail, not degrade to a
	// partial plan covering line-1.
	order := core.PlannerOrder{
		ID: "order-4",
		LineItems: []core.OrderLineItem{
			{ID: "line-1", VariantID: "v1", Quantity: 10},
			{ID: "line-2", VariantID: "v2", Quantity: 999},
		},
	}
	if _, err := planner.Plan(ctx, order, core.StrategyHighestStock, nil); err == nil {
		t.Fatal("plan with unroutable line succeeded")
	}
}

func TestPlanner_ValidatesLineQuantities(t *testing.T) {
	planner, ctx := setupPlannerTest(t)

	order := core.PlannerOrder{
		ID:        "order-5",
		LineItems: []core.OrderLineItem{{ID: "line-1", VariantID: "v1", Quantity: 0}},
	}
	if _, err := planner.Plan(ctx, order, core.StrategyHighestStock, nil); err == nil {
		t.Error("zero-quantity line accepted")
	}

	order.LineItems[0] = core.OrderLineItem{ID: "line-1", VariantID: "ghost", Quantity: 1}
	if _, err := planner.Plan(ctx, order, core.StrategyHighestStock, nil); err == nil {
		t.Error("unknown variant accepted")
	}
}

func TestPlanner_UnknownStrategyFallsBack(t *testing.T) {
	planner, ctx := setupPlannerTest(t)

	order := core.PlannerOrder{
		ID:        "order-6",
		LineItems: []core.OrderLineItem{{ID: "line-1", VariantID: "v1", Quantity: 50}},
	}
	result, err := planner.Plan(ctx, order, "round_robin", nil)
	if err != nil {
		t.Fatalf("Plan with unknown strategy failed: %v", err)
	}
	// Fallback is highest stock, which routes to loc-east.
	if result.Shipments[0].LocationID != "loc-east" {
		t.Errorf("fallback routed to %s, want loc-east", result.Shipments[0].LocationID)
	}
}

func TestPlanner_EmptyOrder(t *testing.T) {
	planner, ctx := setupPlannerTest(t)

	_, err := planner.Plan(ctx, core.PlannerOrder{ID: "order-7"}, core.StrategyHighestStock, nil)
	var derr *core.DomainError
	if !errors.As(err, &derr) || derr.Code != core.CodeEmptyPlan {
		t.Fatalf("expected %s, got %v", core.CodeEmptyPlan, err)
	}
}
