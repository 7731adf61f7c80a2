// Package app composes the stock engine into the single surface the
// binaries call. It decouples presentation from the engine:
// implementations contain no display logic of any kind.
package app

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/core"
)

// ReceiveStockRequest describes a supplier receipt into one location.
type ReceiveStockRequest struct {
	DestinationLocationID string
	Reference             string
	Quantities            map[string]int64
	// UnitCosts, keyed by variant id, folds receipt costs into the
	// weighted average unit cost of the destination items.
	UnitCosts map[string]decimal.Decimal
}

// TransferStockRequest describes a location→location movement.
type TransferStockRequest struct {
	SourceLocationID      string
	DestinationLocationID string
	Reference             string
	Quantities            map[string]int64
}

// Service is the application facade over the stock engine.
type Service struct {
	repo      core.StockRepository
	transfers *core.TransferService
	planner   *core.FulfillmentPlanner
	logger    *zap.Logger
}

// NewService wires the facade. events and logger may be nil.
func NewService(repo core.StockRepository, events core.EventPublisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		transfers: core.NewTransferService(repo, events, logger),
		planner:   core.NewFulfillmentPlanner(repo, logger),
		logger:    logger,
	}
}

// StockLevels returns current levels for every tracked (variant,
// location) pair.
func (s *Service) StockLevels(ctx context.Context) ([]core.StockLevel, error) {
	return s.repo.StockLevels(ctx)
}

// LedgerEntries returns the audit trail for one (variant, location)
// pair.
func (s *Service) LedgerEntries(ctx context.Context, variantID, locationID string) ([]core.StockLedgerEntry, error) {
	return s.repo.LedgerEntries(ctx, variantID, locationID)
}

// ReceiveStock records a supplier receipt: it creates a sourceless
// transfer and executes it, tagging ledger entries with the Supplier
// originator and folding any receipt unit costs into the destination
// items' weighted average.
func (s *Service) ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*core.StockTransfer, error) {
	t, err := s.transfers.Create(ctx, "", req.DestinationLocationID, req.Reference)
	if err != nil {
		return nil, err
	}
	if err := s.transfers.Receive(ctx, t.ID, req.DestinationLocationID, req.Quantities, req.UnitCosts); err != nil {
		return nil, err
	}
	return t, nil
}

// TransferStock creates and executes a location→location transfer in
// one step.
func (s *Service) TransferStock(ctx context.Context, req TransferStockRequest) (*core.StockTransfer, error) {
	t, err := s.transfers.Create(ctx, req.SourceLocationID, req.DestinationLocationID, req.Reference)
	if err != nil {
		return nil, err
	}
	if err := s.transfers.Transfer(ctx, t.ID, req.SourceLocationID, req.DestinationLocationID, req.Quantities); err != nil {
		return nil, err
	}
	return t, nil
}

// Transfers exposes the underlying transfer service for callers that
// manage the create/execute lifecycle themselves.
func (s *Service) Transfers() *core.TransferService {
	return s.transfers
}

// Reserve encumbers stock for an order at one location.
func (s *Service) Reserve(ctx context.Context, variantID, locationID string, quantity int64, orderID string) error {
	return s.repo.Reserve(ctx, variantID, locationID, quantity, orderID)
}

// Release returns encumbered stock to the available pool.
func (s *Service) Release(ctx context.Context, variantID, locationID string, quantity int64, orderID string) error {
	return s.repo.Release(ctx, variantID, locationID, quantity, orderID)
}

// PlanOrder assembles per-location shipment plans for the order using
// the named strategy.
func (s *Service) PlanOrder(ctx context.Context, order core.PlannerOrder, strategy core.StrategyKind, customer *core.Coordinates) (*core.FulfillmentPlanResult, error) {
	return s.planner.Plan(ctx, order, strategy, customer)
}
