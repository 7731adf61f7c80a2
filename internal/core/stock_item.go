package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockItem is the quantity account for one variant at one location.
// OnHand tracks physically present stock, Reserved tracks quantity
// encumbered by open orders. When Backorderable is true, Reserved may
// exceed OnHand and the available count goes negative, meaning "already
// oversold by N, fulfilled later".
//
// All four mutating operations are pure state transitions; callers must
// serialize mutations of the same (variant, location) pair (see
// StockRepository implementations).
type StockItem struct {
	ID            string          `json:"id"`
	VariantID     string          `json:"variant_id"`
	LocationID    string          `json:"stock_location_id"`
	SKU           string          `json:"sku"`
	OnHand        int64           `json:"quantity_on_hand"`
	Reserved      int64           `json:"quantity_reserved"`
	Backorderable bool            `json:"backorderable"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
}

// NewStockItem creates an empty, non-backorderable account for the
// variant at the location.
func NewStockItem(variantID, locationID, sku string) *StockItem {
	return &StockItem{
		ID:         uuid.NewString(),
		VariantID:  variantID,
		LocationID: locationID,
		SKU:        sku,
	}
}

// Available returns OnHand - Reserved. Negative values only occur for
// backorderable items.
func (si *StockItem) Available() int64 {
	return si.OnHand - si.Reserved
}

// Reserve encumbers quantity for an order. For non-backorderable items
// the request fails with InsufficientStockError when it exceeds the
// available count; backorderable items always accept the reservation.
// Reservation moves no physical stock and produces no ledger entry.
func (si *StockItem) Reserve(quantity int64, orderID string) error {
	if quantity <= 0 {
		return NewValidationError("reserve quantity must be positive, got %d", quantity)
	}
	if !si.Backorderable && quantity > si.Available() {
		return &InsufficientStockError{
			VariantID: si.VariantID,
			Available: si.Available(),
			Requested: quantity,
		}
	}
	si.Reserved += quantity
	return nil
}

// Release returns reserved quantity to the available pool. Releasing
// more than is reserved releases everything; Reserved never goes
// negative. Returns the quantity actually released.
func (si *StockItem) Release(quantity int64, orderID string) int64 {
	if quantity <= 0 {
		return 0
	}
	released := min(quantity, si.Reserved)
	si.Reserved -= released
	return released
}

// Restock increases OnHand and returns the ledger entry for the change.
func (si *StockItem) Restock(quantity int64, originator MovementOriginator, transferID string) (*StockLedgerEntry, error) {
	if quantity <= 0 {
		return nil, NewValidationError("restock quantity must be positive, got %d", quantity)
	}
	si.OnHand += quantity
	return si.ledgerEntry(quantity, originator, transferID), nil
}

// RestockAtCost is Restock with a receipt unit cost; the item's UnitCost
// becomes the weighted average of the existing stock and the receipt:
//
//	newCost = (oldQty·oldCost + qty·unitCost) / (oldQty + qty)
func (si *StockItem) RestockAtCost(quantity int64, unitCost decimal.Decimal, originator MovementOriginator, transferID string) (*StockLedgerEntry, error) {
	if quantity <= 0 {
		return nil, NewValidationError("restock quantity must be positive, got %d", quantity)
	}
	if unitCost.IsNegative() {
		return nil, NewValidationError("unit cost cannot be negative, got %s", unitCost)
	}
	oldQty := decimal.NewFromInt(si.OnHand)
	qty := decimal.NewFromInt(quantity)
	newQty := oldQty.Add(qty)
	if newQty.IsZero() {
		si.UnitCost = unitCost
	} else {
		si.UnitCost = oldQty.Mul(si.UnitCost).Add(qty.Mul(unitCost)).Div(newQty)
	}
	si.OnHand += quantity
	return si.ledgerEntry(quantity, originator, transferID), nil
}

// Unstock decreases OnHand and returns the ledger entry for the change.
// Non-backorderable items cannot go below zero on hand.
func (si *StockItem) Unstock(quantity int64, originator MovementOriginator, transferID string) (*StockLedgerEntry, error) {
	if quantity <= 0 {
		return nil, NewValidationError("unstock quantity must be positive, got %d", quantity)
	}
	if !si.Backorderable && quantity > si.OnHand {
		return nil, &InsufficientStockError{
			VariantID: si.VariantID,
			Available: si.OnHand,
			Requested: quantity,
		}
	}
	si.OnHand -= quantity
	return si.ledgerEntry(-quantity, originator, transferID), nil
}

func (si *StockItem) ledgerEntry(delta int64, originator MovementOriginator, transferID string) *StockLedgerEntry {
	return &StockLedgerEntry{
		ID:          uuid.NewString(),
		StockItemID: si.ID,
		VariantID:   si.VariantID,
		LocationID:  si.LocationID,
		Delta:       delta,
		Originator:  originator,
		TransferID:  transferID,
		CreatedAt:   time.Now(),
	}
}
