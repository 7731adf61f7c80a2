package core_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/core"
)

func newItem(t *testing.T, onHand int64) *core.StockItem {
	t.Helper()
	si := core.NewStockItem("variant-1", "loc-1", "SKU-1")
	if onHand > 0 {
		if _, err := si.Restock(onHand, core.OriginatorAdjustment, ""); err != nil {
			t.Fatalf("seed restock failed: %v", err)
		}
	}
	return si
}

func TestStockItem_ReserveCeiling(t *testing.T) {
	si := newItem(t, 5)

	if err := si.Reserve(3, "order-1"); err != nil {
		t.Fatalf("first reservation failed: %v", err)
	}
	if got := si.Available(); got != 2 {
		t.Fatalf("available after reserving 3 of 5 = %d, want 2", got)
	}

	// Only 2 left available; a second reservation of 3 must be rejected
	// even though on-hand is still 5.
	err := si.Reserve(3, "order-2")
	var insufficient *core.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Available != 2 || insufficient.Requested != 3 {
		t.Errorf("error carried available=%d requested=%d, want 2 and 3", insufficient.Available, insufficient.Requested)
	}
	if si.Reserved != 3 {
		t.Errorf("failed reservation mutated Reserved to %d, want 3", si.Reserved)
	}
}

func TestStockItem_BackorderableOvercommit(t *testing.T) {
	si := newItem(t, 2)
	si.Backorderable = true

	if err := si.Reserve(10, "order-1"); err != nil {
		t.Fatalf("backorderable reservation failed: %v", err)
	}
	if got := si.Available(); got != -8 {
		t.Errorf("available = %d, want -8 (oversold by 8)", got)
	}
}

func TestStockItem_ReserveValidation(t *testing.T) {
	si := newItem(t, 5)
	for _, qty := range []int64{0, -1} {
		if err := si.Reserve(qty, "order-1"); err == nil {
			t.Errorf("Reserve(%d) succeeded, want validation error", qty)
		}
	}
}

func TestStockItem_ReleaseFloor(t *testing.T) {
	si := newItem(t, 5)
	if err := si.Reserve(3, "order-1"); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if released := si.Release(10, "order-1"); released != 3 {
		t.Errorf("Release(10) released %d, want 3", released)
	}
	if si.Reserved != 0 {
		t.Errorf("Reserved = %d after over-release, want 0", si.Reserved)
	}
	if released := si.Release(1, "order-1"); released != 0 {
		t.Errorf("release with nothing reserved released %d, want 0", released)
	}
}

func TestStockItem_RestockAndUnstockLedger(t *testing.T) {
	si := newItem(t, 0)

	entry, err := si.Restock(10, core.OriginatorSupplier, "transfer-1")
	if err != nil {
		t.Fatalf("restock failed: %v", err)
	}
	if entry.Delta != 10 || entry.Originator != core.OriginatorSupplier || entry.TransferID != "transfer-1" {
		t.Errorf("restock entry = %+v, want delta 10, SUPPLIER, transfer-1", entry)
	}

	entry, err = si.Unstock(4, core.OriginatorStockTransfer, "transfer-2")
	if err != nil {
		t.Fatalf("unstock failed: %v", err)
	}
	if entry.Delta != -4 {
		t.Errorf("unstock entry delta = %d, want -4", entry.Delta)
	}
	if si.OnHand != 6 {
		t.Errorf("on hand = %d, want 6", si.OnHand)
	}
}

func TestStockItem_UnstockBelowZero(t *testing.T) {
	si := newItem(t, 3)

	if _, err := si.Unstock(4, core.OriginatorAdjustment, ""); err == nil {
		t.Fatal("unstock below zero succeeded for non-backorderable item")
	}
	if si.OnHand != 3 {
		t.Errorf("failed unstock mutated on hand to %d, want 3", si.OnHand)
	}

	si.Backorderable = true
	if _, err := si.Unstock(4, core.OriginatorAdjustment, ""); err != nil {
		t.Fatalf("backorderable unstock below zero failed: %v", err)
	}
	if si.OnHand != -1 {
		t.Errorf("on hand = %d, want -1", si.OnHand)
	}
}

func TestStockItem_WeightedAverageCost(t *testing.T) {
	si := newItem(t, 0)

	// First receipt sets the cost outright.
	if _, err := si.RestockAtCost(10, decimal.RequireFromString("2.00"), core.OriginatorSupplier, ""); err != nil {
		t.Fatalf("first receipt failed: %v", err)
	}
	if !si.UnitCost.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("unit cost after first receipt = %s, want 2.00", si.UnitCost)
	}

	// (10·2.00 + 30·4.00) / 40 = 3.50
	if _, err := si.RestockAtCost(30, decimal.RequireFromString("4.00"), core.OriginatorSupplier, ""); err != nil {
		t.Fatalf("second receipt failed: %v", err)
	}
	if !si.UnitCost.Equal(decimal.RequireFromString("3.50")) {
		t.Errorf("unit cost after second receipt = %s, want 3.50", si.UnitCost)
	}
	if si.OnHand != 40 {
		t.Errorf("on hand = %d, want 40", si.OnHand)
	}

	if _, err := si.RestockAtCost(5, decimal.RequireFromString("-1.00"), core.OriginatorSupplier, ""); err == nil {
		t.Error("negative unit cost accepted")
	}
}

// The ledger must reconcile: on hand equals the sum of all deltas.
func TestStockItem_LedgerReconciliation(t *testing.T) {
	si := newItem(t, 0)
	var sum int64

	for _, qty := range []int64{10, 25, 7} {
		entry, err := si.Restock(qty, core.OriginatorSupplier, "")
		if err != nil {
			t.Fatalf("restock %d failed: %v", qty, err)
		}
		sum += entry.Delta
	}
	for _, qty := range []int64{8, 12} {
		entry, err := si.Unstock(qty, core.OriginatorSale, "")
		if err != nil {
			t.Fatalf("unstock %d failed: %v", qty, err)
		}
		sum += entry.Delta
	}

	if si.OnHand != sum {
		t.Errorf("on hand %d does not reconcile with ledger sum %d", si.OnHand, sum)
	}
	if si.OnHand != 22 {
		t.Errorf("on hand = %d, want 22", si.OnHand)
	}
}
