// Package memory provides an in-memory StockRepository. It backs unit
// tests and single-process deployments; the Postgres store is the
// durable implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/core"
)

// Store keeps all stock state in process memory. Mutations of a
// (variant, location) pair are serialized through a per-pair mutex;
// different pairs proceed in parallel. Multi-pair transfers acquire
// their pair locks in sorted key order, so two transfers moving stock
// between the same locations in opposite directions cannot deadlock.
//
// Two locks guard the state: the pair mutex serializes the
// check-then-act of each mutation, and s.mu covers the actual field
// writes so readers holding s.mu.RLock (StockLevels, Variant) never
// observe a torn item.
type Store struct {
	mu            sync.RWMutex
	locations     map[string]*core.StockLocation
	locationOrder []string
	variants      map[string]*core.Variant
	transfers     map[string]*core.StockTransfer
	ledger        []core.StockLedgerEntry

	pairMu    sync.Mutex
	pairLocks map[string]*sync.Mutex

	transferSeq atomic.Int64
}

var _ core.StockRepository = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		locations: make(map[string]*core.StockLocation),
		variants:  make(map[string]*core.Variant),
		transfers: make(map[string]*core.StockTransfer),
		pairLocks: make(map[string]*sync.Mutex),
	}
}

// ── Seeding ───────────────────────────────────────────────────────────────────

// AddLocation registers a location. Insertion order is preserved by
// Locations.
func (s *Store) AddLocation(loc *core.StockLocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[loc.ID]; !ok {
		s.locationOrder = append(s.locationOrder, loc.ID)
	}
	s.locations[loc.ID] = loc
}

// AddVariant registers a variant read model and links its stock items
// to their owning locations.
func (s *Store) AddVariant(v *core.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = v
	for _, si := range v.StockItems {
		if loc, ok := s.locations[si.LocationID]; ok {
			loc.AddStockItem(si)
		}
	}
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *Store) Location(ctx context.Context, id string) (*core.StockLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[id]
	if !ok {
		return nil, core.NewNotFoundError("StockLocation", id)
	}
	return loc, nil
}

func (s *Store) Locations(ctx context.Context) ([]*core.StockLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.StockLocation, 0, len(s.locationOrder))
	for _, id := range s.locationOrder {
		out = append(out, s.locations[id])
	}
	return out, nil
}

// Variant returns a snapshot: the stock items are value copies, so
// callers can read quantities without racing concurrent mutations.
func (s *Store) Variant(ctx context.Context, id string) (*core.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variants[id]
	if !ok {
		return nil, core.NewNotFoundError("Variant", id)
	}
	cp := &core.Variant{ID: v.ID, SKU: v.SKU, StockItems: make([]*core.StockItem, len(v.StockItems))}
	for i, si := range v.StockItems {
		item := *si
		cp.StockItems[i] = &item
	}
	return cp, nil
}

func (s *Store) StockLevels(ctx context.Context) ([]core.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var levels []core.StockLevel
	for _, id := range s.locationOrder {
		loc := s.locations[id]
		items := loc.StockItems()
		sort.Slice(items, func(i, j int) bool { return items[i].VariantID < items[j].VariantID })
		for _, si := range items {
			levels = append(levels, core.StockLevel{
				VariantID:    si.VariantID,
				SKU:          si.SKU,
				LocationID:   loc.ID,
				LocationCode: loc.Code,
				OnHand:       si.OnHand,
				Reserved:     si.Reserved,
				Available:    si.Available(),
				UnitCost:     si.UnitCost,
			})
		}
	}
	return levels, nil
}

func (s *Store) LedgerEntries(ctx context.Context, variantID, locationID string) ([]core.StockLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.StockLedgerEntry
	for _, e := range s.ledger {
		if e.VariantID == variantID && e.LocationID == locationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ── Per-pair mutations ────────────────────────────────────────────────────────

func (s *Store) Reserve(ctx context.Context, variantID, locationID string, quantity int64, orderID string) error {
	unlock := s.lockPairs(pairKey(variantID, locationID))
	defer unlock()

	si, err := s.itemOrCreate(variantID, locationID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return si.Reserve(quantity, orderID)
}

func (s *Store) Release(ctx context.Context, variantID, locationID string, quantity int64, orderID string) error {
	unlock := s.lockPairs(pairKey(variantID, locationID))
	defer unlock()

	si, err := s.itemOrCreate(variantID, locationID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	si.Release(quantity, orderID)
	return nil
}

func (s *Store) Restock(ctx context.Context, variantID, locationID string, quantity int64, unitCost *decimal.Decimal, originator core.MovementOriginator, transferID string) (*core.StockLedgerEntry, error) {
	unlock := s.lockPairs(pairKey(variantID, locationID))
	defer unlock()

	si, err := s.itemOrCreate(variantID, locationID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var entry *core.StockLedgerEntry
	if unitCost != nil {
		entry, err = si.RestockAtCost(quantity, *unitCost, originator, transferID)
	} else {
		entry, err = si.Restock(quantity, originator, transferID)
	}
	if err != nil {
		return nil, err
	}
	s.ledger = append(s.ledger, *entry)
	return entry, nil
}

func (s *Store) Unstock(ctx context.Context, variantID, locationID string, quantity int64, originator core.MovementOriginator, transferID string) (*core.StockLedgerEntry, error) {
	unlock := s.lockPairs(pairKey(variantID, locationID))
	defer unlock()

	si, err := s.itemOrCreate(variantID, locationID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := si.Unstock(quantity, originator, transferID)
	if err != nil {
		return nil, err
	}
	s.ledger = append(s.ledger, *entry)
	return entry, nil
}

// ── Transfers ─────────────────────────────────────────────────────────────────

func (s *Store) NextTransferNumber(ctx context.Context) (string, error) {
	return fmt.Sprintf("T%d", s.transferSeq.Add(1)), nil
}

func (s *Store) CreateTransfer(ctx context.Context, t *core.StockTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.transfers[t.ID] = &cp
	return nil
}

func (s *Store) Transfer(ctx context.Context, id string) (*core.StockTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[id]
	if !ok {
		return nil, core.NewNotFoundError("StockTransfer", id)
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UpdateTransfer(ctx context.Context, t *core.StockTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[t.ID]; !ok {
		return core.NewNotFoundError("StockTransfer", t.ID)
	}
	cp := *t
	s.transfers[t.ID] = &cp
	return nil
}

func (s *Store) DeleteTransfer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[id]; !ok {
		return core.NewNotFoundError("StockTransfer", id)
	}
	delete(s.transfers, id)
	return nil
}

// ExecuteTransfer applies all lines all-or-nothing. Every touched pair
// lock is acquired up front in sorted key order; lines are re-validated
// under the locks before any quantity changes, so a failing line leaves
// the stock untouched.
func (s *Store) ExecuteTransfer(ctx context.Context, t *core.StockTransfer, lines []core.TransferLine, originator core.MovementOriginator) ([]core.StockLedgerEntry, error) {
	stored, err := s.Transfer(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if stored.Executed() {
		return nil, core.NewValidationError("transfer %s has already been executed", stored.Number)
	}

	keys := make([]string, 0, 2*len(lines))
	for _, line := range lines {
		if t.SourceLocationID != "" {
			keys = append(keys, pairKey(line.VariantID, t.SourceLocationID))
		}
		keys = append(keys, pairKey(line.VariantID, t.DestinationLocationID))
	}
	unlock := s.lockPairs(keys...)
	defer unlock()

	// Validate all lines under the locks.
	var errs core.ErrorList
	type resolved struct {
		line     core.TransferLine
		src, dst *core.StockItem
	}
	plan := make([]resolved, 0, len(lines))
	for _, line := range lines {
		var src *core.StockItem
		if t.SourceLocationID != "" {
			src, err = s.itemOrCreate(line.VariantID, t.SourceLocationID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !src.Backorderable && line.Quantity > src.OnHand {
				errs = append(errs, &core.InsufficientStockError{
					VariantID: line.VariantID,
					Available: src.OnHand,
					Requested: line.Quantity,
				})
				continue
			}
		}
		dst, err := s.itemOrCreate(line.VariantID, t.DestinationLocationID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		plan = append(plan, resolved{line: line, src: src, dst: dst})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	// Apply all lines under s.mu so concurrent readers never observe a
	// torn item. Validation held the pair locks, so nothing below can
	// fail on quantities.
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []core.StockLedgerEntry
	for _, r := range plan {
		if r.src != nil {
			entry, err := r.src.Unstock(r.line.Quantity, originator, t.ID)
			if err != nil {
				return nil, fmt.Errorf("unstock after validation: %w", err)
			}
			s.ledger = append(s.ledger, *entry)
			entries = append(entries, *entry)
		}
		var entry *core.StockLedgerEntry
		if r.line.UnitCost != nil {
			entry, err = r.dst.RestockAtCost(r.line.Quantity, *r.line.UnitCost, originator, t.ID)
		} else {
			entry, err = r.dst.Restock(r.line.Quantity, originator, t.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("restock after validation: %w", err)
		}
		s.ledger = append(s.ledger, *entry)
		entries = append(entries, *entry)
	}

	executedAt := time.Now()
	if cur, ok := s.transfers[t.ID]; ok {
		cur.ExecutedAt = executedAt
		cur.LedgerEntryIDs = make([]string, len(entries))
		for i, e := range entries {
			cur.LedgerEntryIDs[i] = e.ID
		}
	}
	t.ExecutedAt = executedAt
	return entries, nil
}

// ── Internals ─────────────────────────────────────────────────────────────────

func pairKey(variantID, locationID string) string {
	return locationID + "/" + variantID
}

// lockPairs acquires the mutexes for the given pair keys in sorted
// order, deduplicating, and returns a function releasing them in
// reverse order.
func (s *Store) lockPairs(keys ...string) func() {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	var locked []*sync.Mutex
	var last string
	for i, key := range sorted {
		if i > 0 && key == last {
			continue
		}
		last = key
		mu := s.pairLock(key)
		mu.Lock()
		locked = append(locked, mu)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

func (s *Store) pairLock(key string) *sync.Mutex {
	s.pairMu.Lock()
	defer s.pairMu.Unlock()
	mu, ok := s.pairLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.pairLocks[key] = mu
	}
	return mu
}

// itemOrCreate resolves the stock item for the pair, creating it lazily
// on the owning location and linking it into the variant read model.
// Callers must hold the pair lock.
func (s *Store) itemOrCreate(variantID, locationID string) (*core.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[locationID]
	if !ok {
		return nil, core.NewNotFoundError("StockLocation", locationID)
	}
	v, ok := s.variants[variantID]
	if !ok {
		return nil, core.NewNotFoundError("Variant", variantID)
	}
	if si := loc.StockItem(variantID); si != nil {
		return si, nil
	}
	si := loc.StockItemOrCreate(variantID, v.SKU)
	v.StockItems = append(v.StockItems, si)
	return si, nil
}
