package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// StockRepository is the persistence boundary of the engine. Mutations
// of the same (variant, location) pair are serialized by the
// implementation: the in-memory store uses per-pair locks, the Postgres
// store row locks inside a transaction. Mutations of different pairs
// may proceed in parallel.
type StockRepository interface {
	// Reads. These are the only operations expected to block on I/O.
	Location(ctx context.Context, id string) (*StockLocation, error)
	Locations(ctx context.Context) ([]*StockLocation, error)
	Variant(ctx context.Context, id string) (*Variant, error)
	StockLevels(ctx context.Context) ([]StockLevel, error)
	LedgerEntries(ctx context.Context, variantID, locationID string) ([]StockLedgerEntry, error)

	// Per-pair mutations.
	Reserve(ctx context.Context, variantID, locationID string, quantity int64, orderID string) error
	Release(ctx context.Context, variantID, locationID string, quantity int64, orderID string) error
	// Restock increases on-hand stock. unitCost, when non-nil, folds
	// the receipt into the item's weighted average cost.
	Restock(ctx context.Context, variantID, locationID string, quantity int64, unitCost *decimal.Decimal, originator MovementOriginator, transferID string) (*StockLedgerEntry, error)
	Unstock(ctx context.Context, variantID, locationID string, quantity int64, originator MovementOriginator, transferID string) (*StockLedgerEntry, error)

	// Transfers.
	NextTransferNumber(ctx context.Context) (string, error)
	CreateTransfer(ctx context.Context, t *StockTransfer) error
	Transfer(ctx context.Context, id string) (*StockTransfer, error)
	UpdateTransfer(ctx context.Context, t *StockTransfer) error
	DeleteTransfer(ctx context.Context, id string) error
	// ExecuteTransfer applies all lines all-or-nothing: it locks every
	// touched pair (ordered by location then variant id, so opposing
	// transfers cannot deadlock), re-validates, moves stock, appends
	// ledger entries, and marks the transfer executed. A validation
	// failure leaves every quantity untouched and returns an ErrorList.
	ExecuteTransfer(ctx context.Context, t *StockTransfer, lines []TransferLine, originator MovementOriginator) ([]StockLedgerEntry, error)
}
