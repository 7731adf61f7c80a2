package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/core"
	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/memory"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	events []core.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...core.Event) error {
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, events ...core.Event) error {
	return errors.New("broker unreachable")
}

// setupTransferTest seeds two locations and two variants: loc-a holds
// 100 of v1 and 50 of v2, loc-b is empty.
func setupTransferTest(t *testing.T, events core.EventPublisher) (*memory.Store, *core.TransferService, context.Context) {
	t.Helper()
	store := memory.NewStore()
	store.AddLocation(core.NewStockLocation("loc-a", "Warehouse A", "WH-A"))
	store.AddLocation(core.NewStockLocation("loc-b", "Warehouse B", "WH-B"))

	v1 := &core.Variant{ID: "v1", SKU: "SKU-1"}
	si1 := core.NewStockItem("v1", "loc-a", "SKU-1")
	si1.OnHand = 100
	v1.StockItems = append(v1.StockItems, si1)

	v2 := &core.Variant{ID: "v2", SKU: "SKU-2"}
	si2 := core.NewStockItem("v2", "loc-a", "SKU-2")
	si2.OnHand = 50
	v2.StockItems = append(v2.StockItems, si2)

	store.AddVariant(v1)
	store.AddVariant(v2)

	return store, core.NewTransferService(store, events, nil), context.Background()
}

func onHandAt(t *testing.T, store *memory.Store, ctx context.Context, variantID, locationID string) int64 {
	t.Helper()
	v, err := store.Variant(ctx, variantID)
	if err != nil {
		t.Fatalf("variant %s: %v", variantID, err)
	}
	si := v.StockItemAt(locationID)
	if si == nil {
		return 0
	}
	return si.OnHand
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestTransferService_CreateValidation(t *testing.T) {
	_, svc, ctx := setupTransferTest(t, nil)

	tests := []struct {
		name     string
		src, dst string
	}{
		{"missing destination", "loc-a", ""},
		{"same source and destination", "loc-a", "loc-a"},
		{"unknown source", "loc-ghost", "loc-b"},
		{"unknown destination", "loc-a", "loc-ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.src, tt.dst, ""); err == nil {
				t.Errorf("Create(%q, %q) succeeded", tt.src, tt.dst)
			}
		})
	}
}

func TestTransferService_TransferMovesStock(t *testing.T) {
	pub := &recordingPublisher{}
	store, svc, ctx := setupTransferTest(t, pub)

	tr, err := svc.Create(ctx, "loc-a", "loc-b", "rebalance")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if tr.Number != "T1" {
		t.Errorf("transfer number = %s, want T1", tr.Number)
	}

	if err := svc.Transfer(ctx, tr.ID, "loc-a", "loc-b", map[string]int64{"v1": 30}); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	if got := onHandAt(t, store, ctx, "v1", "loc-a"); got != 70 {
		t.Errorf("source on hand = %d, want 70", got)
	}
	if got := onHandAt(t, store, ctx, "v1", "loc-b"); got != 30 {
		t.Errorf("destination on hand = %d, want 30", got)
	}

	stored, err := store.Transfer(ctx, tr.ID)
	if err != nil {
		t.Fatalf("reload transfer: %v", err)
	}
	if !stored.Executed() {
		t.Error("transfer not marked executed")
	}
	if len(stored.LedgerEntryIDs) != 2 {
		t.Errorf("transfer references %d ledger entries, want 2 (one out, one in)", len(stored.LedgerEntryIDs))
	}

	entries, err := store.LedgerEntries(ctx, "v1", "loc-a")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Delta != -30 || entries[0].Originator != core.OriginatorStockTransfer {
		t.Errorf("source ledger = %+v, want one -30 STOCK_TRANSFER entry", entries)
	}

	want := []string{"stock.transfer-created", "stock.transferred"}
	got := pub.types()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("published events = %v, want %v", got, want)
	}
}

func TestTransferService_ExecuteIsTerminal(t *testing.T) {
	_, svc, ctx := setupTransferTest(t, nil)

	tr, err := svc.Create(ctx, "loc-a", "loc-b", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := svc.Transfer(ctx, tr.ID, "loc-a", "loc-b", map[string]int64{"v1": 10}); err != nil {
		t.Fatalf("first execution failed: %v", err)
	}
	if err := svc.Transfer(ctx, tr.ID, "loc-a", "loc-b", map[string]int64{"v1": 10}); err == nil {
		t.Error("second execution of the same transfer succeeded")
	}
}

func TestTransferService_AccumulatesLineErrors(t *testing.T) {
	store, svc, ctx := setupTransferTest(t, nil)

	tr, err := svc.Create(ctx, "loc-a", "loc-b", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Two malformed lines: non-positive quantity and unknown variant.
	// Both must be reported together, and nothing may move.
	err = svc.Transfer(ctx, tr.ID, "loc-a", "loc-b", map[string]int64{
		"v1":    -5,
		"ghost": 1,
	})
	var list core.ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("expected ErrorList, got %T: %v", err, err)
	}
	if len(list) != 2 {
		t.Errorf("accumulated %d errors, want 2: %v", len(list), list)
	}

	// Two oversized lines: insufficiency is detected by the repository
	// under its locks, and both shortfalls are reported together.
	err = svc.Transfer(ctx, tr.ID, "loc-a", "loc-b", map[string]int64{
		"v1": 101,
		"v2": 51,
	})
	list = nil
	if !errors.As(err, &list) {
		t.Fatalf("expected ErrorList, got %T: %v", err, err)
	}
	if len(list) != 2 {
		t.Errorf("accumulated %d errors, want 2: %v", len(list), list)
	}
	var insufficient *core.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Error("ErrorList does not surface the InsufficientStockError")
	}

	if got := onHandAt(t, store, ctx, "v1", "loc-a"); got != 100 {
		t.Errorf("v1 on hand changed to %d despite failed transfer", got)
	}
	if got := onHandAt(t, store, ctx, "v2", "loc-a"); got != 50 {
		t.Errorf("v2 on hand changed to %d despite failed transfer", got)
	}
	stored, _ := store.Transfer(ctx, tr.ID)
	if stored.Executed() {
		t.Error("failed transfer marked executed")
	}
}

func TestTransferService_NoPartialApplication(t *testing.T) {
	store, svc, ctx := setupTransferTest(t, nil)

	tr, err := svc.Create(ctx, "loc-a", "loc-b", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// v1 is satisfiable on its own; the oversized v2 line must keep it
	// from moving too.
	err = svc.Transfer(ctx, tr.ID, "loc-a", "loc-b", map[string]int64{"v1": 10, "v2": 51})
	if err == nil {
		t.Fatal("transfer with one unsatisfiable line succeeded")
	}
	if got := onHandAt(t, store, ctx, "v1", "loc-b"); got != 0 {
		t.Errorf("v1 moved %d units despite failing sibling line", got)
	}
}

func TestTransferService_LocationMismatch(t *testing.T) {
	_, svc, ctx := setupTransferTest(t, nil)

	tr, err := svc.Create(ctx, "loc-a", "loc-b", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := svc.Transfer(ctx, tr.ID, "loc-b", "loc-a", map[string]int64{"v1": 5}); err == nil {
		t.Error("transfer with swapped locations succeeded")
	}
	if err := svc.Transfer(ctx, tr.ID, "loc-a", "loc-b", nil); err == nil {
		t.Error("transfer with no quantities succeeded")
	}
}

func TestTransferService_ReceiveFromSupplier(t *testing.T) {
	pub := &recordingPublisher{}
	store, svc, ctx := setupTransferTest(t, pub)

	tr, err := svc.Create(ctx, "", "loc-b", "PO-1234")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// A sourceless transfer cannot be executed as a movement.
	if err := svc.Transfer(ctx, tr.ID, "", "loc-b", map[string]int64{"v1": 5}); err == nil {
		t.Error("Transfer accepted a supplier receipt")
	}

	costs := map[string]decimal.Decimal{"v1": decimal.RequireFromString("2.50")}
	if err := svc.Receive(ctx, tr.ID, "loc-b", map[string]int64{"v1": 40}, costs); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	v, _ := store.Variant(ctx, "v1")
	si := v.StockItemAt("loc-b")
	if si == nil || si.OnHand != 40 {
		t.Fatalf("destination item = %+v, want 40 on hand", si)
	}
	if !si.UnitCost.Equal(decimal.RequireFromString("2.50")) {
		t.Errorf("unit cost = %s, want 2.50", si.UnitCost)
	}

	entries, _ := store.LedgerEntries(ctx, "v1", "loc-b")
	if len(entries) != 1 || entries[0].Originator != core.OriginatorSupplier {
		t.Errorf("receipt ledger = %+v, want one SUPPLIER entry", entries)
	}

	types := pub.types()
	if len(types) != 2 || types[1] != "stock.received" {
		t.Errorf("published events = %v, want [stock.transfer-created stock.received]", types)
	}

	// Receive on a sourced transfer is rejected.
	sourced, err := svc.Create(ctx, "loc-a", "loc-b", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := svc.Receive(ctx, sourced.ID, "loc-b", map[string]int64{"v1": 1}, nil); err == nil {
		t.Error("Receive accepted a location→location transfer")
	}
}

func TestTransferService_UpdateAndDelete(t *testing.T) {
	pub := &recordingPublisher{}
	store, svc, ctx := setupTransferTest(t, pub)

	tr, err := svc.Create(ctx, "loc-a", "loc-b", "draft")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := svc.Update(ctx, tr.ID, "approved"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	stored, _ := store.Transfer(ctx, tr.ID)
	if stored.Reference != "approved" {
		t.Errorf("reference = %s, want approved", stored.Reference)
	}

	if err := svc.Delete(ctx, tr.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Transfer(ctx, tr.ID); err == nil {
		t.Error("deleted transfer still readable")
	}

	// Executed transfers are history and must survive deletion attempts.
	executed, err := svc.Create(ctx, "loc-a", "loc-b", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := svc.Transfer(ctx, executed.ID, "loc-a", "loc-b", map[string]int64{"v1": 1}); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if err := svc.Delete(ctx, executed.ID); err == nil {
		t.Error("Delete removed an executed transfer")
	}

	types := pub.types()
	wantTail := []string{"stock.transfer-updated", "stock.transfer-deleted"}
	if len(types) < 4 || types[1] != wantTail[0] || types[2] != wantTail[1] {
		t.Errorf("published events = %v, want update and delete events after creation", types)
	}
}

func TestTransferService_PublishFailureDoesNotFailTransfer(t *testing.T) {
	store, svc, ctx := setupTransferTest(t, failingPublisher{})

	tr, err := svc.Create(ctx, "loc-a", "loc-b", "")
	if err != nil {
		t.Fatalf("Create failed despite broken publisher: %v", err)
	}
	if err := svc.Transfer(ctx, tr.ID, "loc-a", "loc-b", map[string]int64{"v1": 5}); err != nil {
		t.Fatalf("Transfer failed despite broken publisher: %v", err)
	}
	if got := onHandAt(t, store, ctx, "v1", "loc-b"); got != 5 {
		t.Errorf("destination on hand = %d, want 5", got)
	}
}
