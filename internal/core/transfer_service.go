package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TransferService orchestrates validated, all-or-nothing movements of
// one or more variants between two locations, or receipts from an
// external supplier. Execution is two-phase: every line is validated
// before any stock moves, so a bad line never leaves earlier lines
// half-applied. Domain events are published only after the repository
// commit succeeds.
type TransferService struct {
	repo   StockRepository
	events EventPublisher
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewTransferService wires the service. events and logger may be nil.
func NewTransferService(repo StockRepository, events EventPublisher, logger *zap.Logger) *TransferService {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{
		repo:   repo,
		events: events,
		logger: logger,
		tracer: otel.Tracer("resys.shop/stock"),
		now:    time.Now,
	}
}

// Create records a pending transfer between two locations, or from an
// external supplier when sourceLocationID is empty. The transfer number
// is generated from the repository's sequence with a "T" prefix.
func (s *TransferService) Create(ctx context.Context, sourceLocationID, destinationLocationID, reference string) (*StockTransfer, error) {
	if destinationLocationID == "" {
		return nil, NewValidationError("destination location is required")
	}
	if sourceLocationID == destinationLocationID {
		return nil, NewValidationError("source and destination locations must differ")
	}
	if sourceLocationID != "" {
		if _, err := s.repo.Location(ctx, sourceLocationID); err != nil {
			return nil, err
		}
	}
	if _, err := s.repo.Location(ctx, destinationLocationID); err != nil {
		return nil, err
	}

	number, err := s.repo.NextTransferNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate transfer number: %w", err)
	}

	t := &StockTransfer{
		ID:                    uuid.NewString(),
		Number:                number,
		SourceLocationID:      sourceLocationID,
		DestinationLocationID: destinationLocationID,
		Reference:             reference,
		CreatedAt:             s.now(),
	}
	if err := s.repo.CreateTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create transfer %s: %w", number, err)
	}

	s.publish(ctx, StockTransferCreated{
		TransferID:            t.ID,
		Number:                t.Number,
		SourceLocationID:      t.SourceLocationID,
		DestinationLocationID: t.DestinationLocationID,
		CreatedAt:             t.CreatedAt,
	})
	s.logger.Info("stock transfer created",
		zap.String("transfer_id", t.ID),
		zap.String("number", t.Number),
		zap.String("source", t.SourceLocationID),
		zap.String("destination", t.DestinationLocationID))
	return t, nil
}

// Transfer executes a location→location movement. The supplied location
// ids must match the ones recorded at creation. Per-variant validation
// errors accumulate into an ErrorList; when any line is invalid, no
// stock moves at all.
func (s *TransferService) Transfer(ctx context.Context, transferID, sourceLocationID, destinationLocationID string, quantities map[string]int64) error {
	ctx, span := s.tracer.Start(ctx, "stock.transfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("transfer.id", transferID),
		attribute.Int("transfer.variants", len(quantities)),
	)

	t, err := s.repo.Transfer(ctx, transferID)
	if err != nil {
		return s.fail(span, err)
	}
	if t.SourceLocationID == "" {
		return s.fail(span, NewValidationError("transfer %s has no source location; use Receive", t.Number))
	}
	if sourceLocationID != t.SourceLocationID || destinationLocationID != t.DestinationLocationID {
		return s.fail(span, NewValidationError("locations %s→%s do not match transfer %s",
			sourceLocationID, destinationLocationID, t.Number))
	}

	lines, err := s.execute(ctx, t, quantities, nil, OriginatorStockTransfer, true)
	if err != nil {
		return s.fail(span, err)
	}

	s.publish(ctx, StockTransferred{
		TransferID:            t.ID,
		SourceLocationID:      t.SourceLocationID,
		DestinationLocationID: t.DestinationLocationID,
		VariantQuantities:     quantities,
		TransferredAt:         t.ExecutedAt,
	})
	s.logger.Info("stock transferred",
		zap.String("transfer_id", t.ID),
		zap.String("number", t.Number),
		zap.Int("variants", len(lines)))
	span.SetStatus(codes.Ok, "stock transferred")
	return nil
}

// Receive executes a supplier→location receipt on a transfer created
// without a source. Ledger entries are tagged with the Supplier
// originator. unitCosts, keyed by variant id, may be nil; provided
// costs fold into the destination items' weighted average unit cost.
func (s *TransferService) Receive(ctx context.Context, transferID, destinationLocationID string, quantities map[string]int64, unitCosts map[string]decimal.Decimal) error {
	ctx, span := s.tracer.Start(ctx, "stock.receive")
	defer span.End()
	span.SetAttributes(
		attribute.String("transfer.id", transferID),
		attribute.Int("transfer.variants", len(quantities)),
	)

	t, err := s.repo.Transfer(ctx, transferID)
	if err != nil {
		return s.fail(span, err)
	}
	if t.SourceLocationID != "" {
		return s.fail(span, NewValidationError("transfer %s has a source location; use Transfer", t.Number))
	}
	if destinationLocationID != t.DestinationLocationID {
		return s.fail(span, NewValidationError("location %s does not match transfer %s", destinationLocationID, t.Number))
	}

	if _, err := s.execute(ctx, t, quantities, unitCosts, OriginatorSupplier, false); err != nil {
		return s.fail(span, err)
	}

	s.publish(ctx, StockReceived{
		TransferID:            t.ID,
		DestinationLocationID: t.DestinationLocationID,
		VariantQuantities:     quantities,
		ReceivedAt:            t.ExecutedAt,
	})
	s.logger.Info("stock received",
		zap.String("transfer_id", t.ID),
		zap.String("number", t.Number),
		zap.Int("variants", len(quantities)))
	span.SetStatus(codes.Ok, "stock received")
	return nil
}

// Update changes the free-text reference of a pending transfer.
func (s *TransferService) Update(ctx context.Context, transferID, reference string) error {
	t, err := s.repo.Transfer(ctx, transferID)
	if err != nil {
		return err
	}
	t.Reference = reference
	if err := s.repo.UpdateTransfer(ctx, t); err != nil {
		return fmt.Errorf("failed to update transfer %s: %w", t.Number, err)
	}
	s.publish(ctx, StockTransferUpdated{TransferID: t.ID, UpdatedAt: s.now()})
	return nil
}

// Delete removes a pending transfer. Executed transfers are audit
// history and cannot be deleted.
func (s *TransferService) Delete(ctx context.Context, transferID string) error {
	t, err := s.repo.Transfer(ctx, transferID)
	if err != nil {
		return err
	}
	if t.Executed() {
		return NewValidationError("transfer %s has been executed and cannot be deleted", t.Number)
	}
	if err := s.repo.DeleteTransfer(ctx, t.ID); err != nil {
		return fmt.Errorf("failed to delete transfer %s: %w", t.Number, err)
	}
	s.publish(ctx, StockTransferDeleted{TransferID: t.ID, DeletedAt: s.now()})
	return nil
}

// execute runs the two-phase movement: validate every line, then apply
// all of them through the repository's atomic ExecuteTransfer.
func (s *TransferService) execute(ctx context.Context, t *StockTransfer, quantities map[string]int64, unitCosts map[string]decimal.Decimal, originator MovementOriginator, checkSource bool) ([]TransferLine, error) {
	if t.Executed() {
		return nil, NewValidationError("transfer %s has already been executed", t.Number)
	}
	if len(quantities) == 0 {
		return nil, NewValidationError("transfer %s has no variant quantities", t.Number)
	}

	if checkSource {
		if _, err := s.repo.Location(ctx, t.SourceLocationID); err != nil {
			return nil, err
		}
	}
	if _, err := s.repo.Location(ctx, t.DestinationLocationID); err != nil {
		return nil, err
	}

	// Phase one: validate the shape of every line, accumulating errors
	// instead of stopping at the first bad variant. Stock sufficiency is
	// validated by the repository under its own locks, where the numbers
	// cannot shift before the movement applies.
	variantIDs := make([]string, 0, len(quantities))
	for id := range quantities {
		variantIDs = append(variantIDs, id)
	}
	sort.Strings(variantIDs)

	var errs ErrorList
	lines := make([]TransferLine, 0, len(variantIDs))
	for _, variantID := range variantIDs {
		qty := quantities[variantID]
		if qty <= 0 {
			errs = append(errs, NewValidationError("variant %s: quantity must be positive, got %d", variantID, qty))
			continue
		}
		if _, err := s.repo.Variant(ctx, variantID); err != nil {
			errs = append(errs, err)
			continue
		}
		line := TransferLine{VariantID: variantID, Quantity: qty}
		if cost, ok := unitCosts[variantID]; ok {
			if cost.IsNegative() {
				errs = append(errs, NewValidationError("variant %s: unit cost cannot be negative, got %s", variantID, cost))
				continue
			}
			line.UnitCost = &cost
		}
		lines = append(lines, line)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	// Phase two: apply all lines atomically.
	entries, err := s.repo.ExecuteTransfer(ctx, t, lines, originator)
	if err != nil {
		return nil, err
	}
	t.LedgerEntryIDs = make([]string, len(entries))
	for i, e := range entries {
		t.LedgerEntryIDs[i] = e.ID
	}
	return lines, nil
}

func (s *TransferService) publish(ctx context.Context, event Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		// At-least-once delivery is the publisher's concern; a failed
		// publish must not fail the committed stock movement.
		s.logger.Error("failed to publish stock event",
			zap.String("event_type", event.EventType()),
			zap.Error(err))
	}
}

func (s *TransferService) fail(span trace.Span, err error) error {
	span.SetStatus(codes.Error, err.Error())
	return err
}
