package core

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderLineItem is one requested (lineItem, variant, quantity) triple of
// an order to plan.
type OrderLineItem struct {
	ID        string `json:"id"`
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
}

// PlannerOrder is the read model of an order handed to the planner.
type PlannerOrder struct {
	ID        string          `json:"id"`
	LineItems []OrderLineItem `json:"line_items"`
}

// FulfillmentItem is a line item routed to a shipment plan.
type FulfillmentItem struct {
	LineItemID string `json:"line_item_id"`
	VariantID  string `json:"variant_id"`
	Quantity   int64  `json:"quantity"`
}

// FulfillmentShipmentPlan groups the items supplied from one location.
type FulfillmentShipmentPlan struct {
	LocationID string            `json:"stock_location_id"`
	Items      []FulfillmentItem `json:"items"`
}

// FulfillmentPlanResult is the immutable outcome of planning an order:
// one shipment plan per supplying location. FullyFulfillable is true
// iff every line item was routed to exactly one location for its full
// quantity; PartialFulfillment is its negation. The planner fails fast
// on any unroutable line, so a returned plan is always fully
// fulfillable.
type FulfillmentPlanResult struct {
	OrderID            string                    `json:"order_id"`
	Shipments          []FulfillmentShipmentPlan `json:"shipments"`
	PartialFulfillment bool                      `json:"is_partial_fulfillment"`
	FullyFulfillable   bool                      `json:"is_fully_fulfillable"`
}

// FulfillmentPlanner assembles an order's line items into per-location
// shipment plans using a caller-selected strategy. Strategy choice is
// passed per call; the planner holds no mutable selection state.
type FulfillmentPlanner struct {
	repo   StockRepository
	logger *zap.Logger
	tracer trace.Tracer
}

// NewFulfillmentPlanner wires the planner. logger may be nil.
func NewFulfillmentPlanner(repo StockRepository, logger *zap.Logger) *FulfillmentPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FulfillmentPlanner{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("resys.shop/stock"),
	}
}

// Plan routes every line item to a single supplying location and groups
// the results by location. An unrecognized strategy kind falls back to
// HighestStock. Planning is read-only: a single unfulfillable line item
// aborts the whole plan with no mutation anywhere.
func (p *FulfillmentPlanner) Plan(ctx context.Context, order PlannerOrder, kind StrategyKind, customer *Coordinates) (*FulfillmentPlanResult, error) {
	ctx, span := p.tracer.Start(ctx, "fulfillment.plan")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.Int("order.line_items", len(order.LineItems)),
		attribute.String("fulfillment.strategy", string(kind)),
	)

	strategy, err := StrategyFor(kind)
	if err != nil {
		p.logger.Warn("unknown fulfillment strategy, falling back to highest stock",
			zap.String("strategy", string(kind)),
			zap.String("order_id", order.ID))
		strategy = DefaultStrategy()
	}

	locations, err := p.repo.Locations(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var shipments []FulfillmentShipmentPlan
	byLocation := make(map[string]int) // location id → index into shipments

	for _, line := range order.LineItems {
		if line.Quantity <= 0 {
			err := NewValidationError("line item %s: quantity must be positive, got %d", line.ID, line.Quantity)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		variant, err := p.repo.Variant(ctx, line.VariantID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		// Single-location routing per line: only locations physically
		// holding the full quantity qualify.
		var candidates []*StockLocation
		for _, loc := range locations {
			if !loc.Active {
				continue
			}
			if si := variant.StockItemAt(loc.ID); si != nil && si.OnHand >= line.Quantity {
				candidates = append(candidates, loc)
			}
		}
		if len(candidates) == 0 {
			err := &DomainError{
				Code:    CodeNoStock,
				Message: "no location holds " + variant.SKU + " for line item " + line.ID,
			}
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		chosen := strategy.SelectLocation(variant, line.Quantity, candidates, customer)
		if chosen == nil {
			err := &DomainError{
				Code:    CodeNoLocation,
				Message: "strategy selected no location for line item " + line.ID,
			}
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		idx, ok := byLocation[chosen.ID]
		if !ok {
			idx = len(shipments)
			shipments = append(shipments, FulfillmentShipmentPlan{LocationID: chosen.ID})
			byLocation[chosen.ID] = idx
		}
		shipments[idx].Items = append(shipments[idx].Items, FulfillmentItem{
			LineItemID: line.ID,
			VariantID:  line.VariantID,
			Quantity:   line.Quantity,
		})
	}

	if len(shipments) == 0 {
		err := &DomainError{Code: CodeEmptyPlan, Message: "order " + order.ID + " produced no shipments"}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &FulfillmentPlanResult{
		OrderID:          order.ID,
		Shipments:        shipments,
		FullyFulfillable: true,
	}
	p.logger.Info("fulfillment plan assembled",
		zap.String("order_id", order.ID),
		zap.String("strategy", string(strategy.Kind())),
		zap.Int("shipments", len(shipments)))
	span.SetStatus(codes.Ok, "plan assembled")
	return result, nil
}
