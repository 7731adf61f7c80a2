// Package postgres implements StockRepository on PostgreSQL via pgx.
// Per-pair serialization uses SELECT ... FOR UPDATE row locks; transfers
// run in a single transaction, so partial application of a multi-variant
// transfer is never observable.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/core"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ core.StockRepository = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *Store) Location(ctx context.Context, id string) (*core.StockLocation, error) {
	loc, err := scanLocation(s.pool.QueryRow(ctx, `
		SELECT id, name, code, active, latitude, longitude, public_metadata, private_metadata
		FROM stock_locations
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.NewNotFoundError("StockLocation", id)
		}
		return nil, fmt.Errorf("failed to fetch stock location: %w", err)
	}
	if err := s.loadItems(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

func (s *Store) Locations(ctx context.Context) ([]*core.StockLocation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, code, active, latitude, longitude, public_metadata, private_metadata
		FROM stock_locations
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock locations: %w", err)
	}
	defer rows.Close()

	var locations []*core.StockLocation
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock location: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock locations: %w", err)
	}
	for _, loc := range locations {
		if err := s.loadItems(ctx, loc); err != nil {
			return nil, err
		}
	}
	return locations, nil
}

func (s *Store) Variant(ctx context.Context, id string) (*core.Variant, error) {
	v := &core.Variant{ID: id}
	if err := s.pool.QueryRow(ctx, "SELECT sku FROM variants WHERE id = $1", id).Scan(&v.SKU); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.NewNotFoundError("Variant", id)
		}
		return nil, fmt.Errorf("failed to fetch variant: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, variant_id, stock_location_id, sku, qty_on_hand, qty_reserved, backorderable, unit_cost
		FROM stock_items
		WHERE variant_id = $1
		ORDER BY stock_location_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock items for variant %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		si, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock item: %w", err)
		}
		v.StockItems = append(v.StockItems, si)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock items: %w", err)
	}
	return v, nil
}

func (s *Store) StockLevels(ctx context.Context) ([]core.StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT si.variant_id, si.sku, si.stock_location_id, sl.code,
		       si.qty_on_hand, si.qty_reserved,
		       si.qty_on_hand - si.qty_reserved AS qty_available,
		       si.unit_cost
		FROM stock_items si
		JOIN stock_locations sl ON sl.id = si.stock_location_id
		ORDER BY si.sku, sl.code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []core.StockLevel
	for rows.Next() {
		var sl core.StockLevel
		if err := rows.Scan(
			&sl.VariantID, &sl.SKU, &sl.LocationID, &sl.LocationCode,
			&sl.OnHand, &sl.Reserved, &sl.Available, &sl.UnitCost,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		levels = append(levels, sl)
	}
	return levels, rows.Err()
}

func (s *Store) LedgerEntries(ctx context.Context, variantID, locationID string) ([]core.StockLedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, stock_item_id, variant_id, stock_location_id, delta, originator, COALESCE(transfer_id, ''), created_at
		FROM stock_ledger_entries
		WHERE variant_id = $1 AND stock_location_id = $2
		ORDER BY created_at, id
	`, variantID, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []core.StockLedgerEntry
	for rows.Next() {
		var e core.StockLedgerEntry
		if err := rows.Scan(&e.ID, &e.StockItemID, &e.VariantID, &e.LocationID, &e.Delta, &e.Originator, &e.TransferID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ── Per-pair mutations ────────────────────────────────────────────────────────

func (s *Store) Reserve(ctx context.Context, variantID, locationID string, quantity int64, orderID string) error {
	if quantity <= 0 {
		return core.NewValidationError("reserve quantity must be positive, got %d", quantity)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	item, err := s.itemForUpdate(ctx, tx, variantID, locationID)
	if err != nil {
		return err
	}
	if !item.backorderable && quantity > item.onHand-item.reserved {
		return &core.InsufficientStockError{
			VariantID: variantID,
			Available: item.onHand - item.reserved,
			Requested: quantity,
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE stock_items SET qty_reserved = qty_reserved + $1, updated_at = NOW()
		WHERE id = $2
	`, quantity, item.id)
	if err != nil {
		return fmt.Errorf("failed to reserve stock for variant %s: %w", variantID, err)
	}

	// Reservation audit row; reservations never touch the ledger.
	_, err = tx.Exec(ctx, `
		INSERT INTO stock_movements (id, stock_item_id, movement_type, quantity, order_id)
		VALUES ($1, $2, 'RESERVATION', $3, $4)
	`, uuid.NewString(), item.id, quantity, orderID)
	if err != nil {
		return fmt.Errorf("failed to record reservation for variant %s: %w", variantID, err)
	}

	return tx.Commit(ctx)
}

func (s *Store) Release(ctx context.Context, variantID, locationID string, quantity int64, orderID string) error {
	if quantity <= 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	item, err := s.itemForUpdate(ctx, tx, variantID, locationID)
	if err != nil {
		return err
	}
	released := min(quantity, item.reserved)
	if released > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE stock_items SET qty_reserved = qty_reserved - $1, updated_at = NOW()
			WHERE id = $2
		`, released, item.id)
		if err != nil {
			return fmt.Errorf("failed to release stock for variant %s: %w", variantID, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO stock_movements (id, stock_item_id, movement_type, quantity, order_id)
			VALUES ($1, $2, 'RESERVATION_RELEASE', $3, $4)
		`, uuid.NewString(), item.id, -released, orderID)
		if err != nil {
			return fmt.Errorf("failed to record release for variant %s: %w", variantID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Restock(ctx context.Context, variantID, locationID string, quantity int64, unitCost *decimal.Decimal, originator core.MovementOriginator, transferID string) (*core.StockLedgerEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := s.restockInTx(ctx, tx, variantID, locationID, quantity, unitCost, originator, transferID)
	if err != nil {
		return nil, err
	}
	return entry, tx.Commit(ctx)
}

func (s *Store) Unstock(ctx context.Context, variantID, locationID string, quantity int64, originator core.MovementOriginator, transferID string) (*core.StockLedgerEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := s.unstockInTx(ctx, tx, variantID, locationID, quantity, originator, transferID)
	if err != nil {
		return nil, err
	}
	return entry, tx.Commit(ctx)
}

// ── Transfers ─────────────────────────────────────────────────────────────────

func (s *Store) NextTransferNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, "SELECT nextval('stock_transfer_number_seq')").Scan(&seq); err != nil {
		return "", fmt.Errorf("failed to advance transfer number sequence: %w", err)
	}
	return fmt.Sprintf("T%d", seq), nil
}

func (s *Store) CreateTransfer(ctx context.Context, t *core.StockTransfer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stock_transfers (id, number, source_location_id, destination_location_id, reference, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
	`, t.ID, t.Number, t.SourceLocationID, t.DestinationLocationID, t.Reference, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert stock transfer %s: %w", t.Number, err)
	}
	return nil
}

func (s *Store) Transfer(ctx context.Context, id string) (*core.StockTransfer, error) {
	t := &core.StockTransfer{}
	var executedAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT id, number, COALESCE(source_location_id, ''), destination_location_id, COALESCE(reference, ''), created_at, executed_at
		FROM stock_transfers
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Number, &t.SourceLocationID, &t.DestinationLocationID, &t.Reference, &t.CreatedAt, &executedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.NewNotFoundError("StockTransfer", id)
		}
		return nil, fmt.Errorf("failed to fetch stock transfer: %w", err)
	}
	if executedAt != nil {
		t.ExecutedAt = *executedAt
	}
	return t, nil
}

func (s *Store) UpdateTransfer(ctx context.Context, t *core.StockTransfer) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stock_transfers SET reference = $1 WHERE id = $2
	`, t.Reference, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update stock transfer %s: %w", t.Number, err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("StockTransfer", t.ID)
	}
	return nil
}

func (s *Store) DeleteTransfer(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM stock_transfers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete stock transfer %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("StockTransfer", id)
	}
	return nil
}

// ExecuteTransfer applies all lines in one transaction. Rows are locked
// in (location id, variant id) order so opposing transfers between the
// same locations cannot deadlock; any validation failure rolls the
// whole transaction back.
func (s *Store) ExecuteTransfer(ctx context.Context, t *core.StockTransfer, lines []core.TransferLine, originator core.MovementOriginator) ([]core.StockLedgerEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var executedAt *time.Time
	err = tx.QueryRow(ctx, "SELECT executed_at FROM stock_transfers WHERE id = $1 FOR UPDATE", t.ID).Scan(&executedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.NewNotFoundError("StockTransfer", t.ID)
		}
		return nil, fmt.Errorf("failed to lock stock transfer: %w", err)
	}
	if executedAt != nil {
		return nil, core.NewValidationError("transfer %s has already been executed", t.Number)
	}

	// Lock every touched row in (location id, variant id) order, then
	// validate before moving anything. Locks hold until commit.
	type pair struct{ locationID, variantID string }
	pairs := make([]pair, 0, 2*len(lines))
	for _, line := range lines {
		if t.SourceLocationID != "" {
			pairs = append(pairs, pair{t.SourceLocationID, line.VariantID})
		}
		pairs = append(pairs, pair{t.DestinationLocationID, line.VariantID})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].locationID != pairs[j].locationID {
			return pairs[i].locationID < pairs[j].locationID
		}
		return pairs[i].variantID < pairs[j].variantID
	})
	locked := make(map[pair]*lockedItem, len(pairs))
	for _, p := range pairs {
		if _, ok := locked[p]; ok {
			continue
		}
		item, err := s.itemForUpdate(ctx, tx, p.variantID, p.locationID)
		if err != nil {
			return nil, err
		}
		locked[p] = item
	}

	var errs core.ErrorList
	for _, line := range lines {
		if t.SourceLocationID == "" {
			continue
		}
		item := locked[pair{t.SourceLocationID, line.VariantID}]
		if !item.backorderable && line.Quantity > item.onHand {
			errs = append(errs, &core.InsufficientStockError{
				VariantID: line.VariantID,
				Available: item.onHand,
				Requested: line.Quantity,
			})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	var entries []core.StockLedgerEntry
	for _, line := range lines {
		if t.SourceLocationID != "" {
			entry, err := s.unstockInTx(ctx, tx, line.VariantID, t.SourceLocationID, line.Quantity, originator, t.ID)
			if err != nil {
				return nil, err
			}
			entries = append(entries, *entry)
		}
		entry, err := s.restockInTx(ctx, tx, line.VariantID, t.DestinationLocationID, line.Quantity, line.UnitCost, originator, t.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, "UPDATE stock_transfers SET executed_at = $1 WHERE id = $2", now, t.ID); err != nil {
		return nil, fmt.Errorf("failed to mark transfer %s executed: %w", t.Number, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transfer %s: %w", t.Number, err)
	}
	t.ExecutedAt = now
	return entries, nil
}

// ── Internals ─────────────────────────────────────────────────────────────────

type lockedItem struct {
	id            string
	onHand        int64
	reserved      int64
	backorderable bool
	unitCost      decimal.Decimal
}

// itemForUpdate locks the stock item row for the pair, creating it
// lazily with the variant's SKU snapshot. The row lock serializes all
// mutations of the pair until the transaction ends.
func (s *Store) itemForUpdate(ctx context.Context, tx pgx.Tx, variantID, locationID string) (*lockedItem, error) {
	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM stock_locations WHERE id = $1)", locationID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check stock location: %w", err)
	}
	if !exists {
		return nil, core.NewNotFoundError("StockLocation", locationID)
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO stock_items (id, variant_id, stock_location_id, sku, qty_on_hand, qty_reserved, backorderable, unit_cost)
		SELECT $1, v.id, $2, v.sku, 0, 0, false, 0
		FROM variants v
		WHERE v.id = $3
		ON CONFLICT (variant_id, stock_location_id) DO NOTHING
	`, uuid.NewString(), locationID, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert stock item: %w", err)
	}

	item := &lockedItem{}
	err = tx.QueryRow(ctx, `
		SELECT id, qty_on_hand, qty_reserved, backorderable, unit_cost
		FROM stock_items
		WHERE variant_id = $1 AND stock_location_id = $2
		FOR UPDATE
	`, variantID, locationID).Scan(&item.id, &item.onHand, &item.reserved, &item.backorderable, &item.unitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The upsert inserted nothing and no row exists: unknown variant.
			return nil, core.NewNotFoundError("Variant", variantID)
		}
		return nil, fmt.Errorf("failed to lock stock item: %w", err)
	}
	return item, nil
}

func (s *Store) restockInTx(ctx context.Context, tx pgx.Tx, variantID, locationID string, quantity int64, unitCost *decimal.Decimal, originator core.MovementOriginator, transferID string) (*core.StockLedgerEntry, error) {
	if quantity <= 0 {
		return nil, core.NewValidationError("restock quantity must be positive, got %d", quantity)
	}
	item, err := s.itemForUpdate(ctx, tx, variantID, locationID)
	if err != nil {
		return nil, err
	}

	newCost := item.unitCost
	if unitCost != nil {
		if unitCost.IsNegative() {
			return nil, core.NewValidationError("unit cost cannot be negative, got %s", unitCost)
		}
		// Weighted average: (oldQty·oldCost + qty·unitCost) / (oldQty + qty)
		oldQty := decimal.NewFromInt(item.onHand)
		qty := decimal.NewFromInt(quantity)
		newQty := oldQty.Add(qty)
		if newQty.IsZero() {
			newCost = *unitCost
		} else {
			newCost = oldQty.Mul(item.unitCost).Add(qty.Mul(*unitCost)).Div(newQty)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE stock_items SET qty_on_hand = qty_on_hand + $1, unit_cost = $2, updated_at = NOW()
		WHERE id = $3
	`, quantity, newCost, item.id)
	if err != nil {
		return nil, fmt.Errorf("failed to restock variant %s: %w", variantID, err)
	}
	return s.insertLedgerEntry(ctx, tx, item.id, variantID, locationID, quantity, originator, transferID)
}

func (s *Store) unstockInTx(ctx context.Context, tx pgx.Tx, variantID, locationID string, quantity int64, originator core.MovementOriginator, transferID string) (*core.StockLedgerEntry, error) {
	if quantity <= 0 {
		return nil, core.NewValidationError("unstock quantity must be positive, got %d", quantity)
	}
	item, err := s.itemForUpdate(ctx, tx, variantID, locationID)
	if err != nil {
		return nil, err
	}
	if !item.backorderable && quantity > item.onHand {
		return nil, &core.InsufficientStockError{
			VariantID: variantID,
			Available: item.onHand,
			Requested: quantity,
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE stock_items SET qty_on_hand = qty_on_hand - $1, updated_at = NOW()
		WHERE id = $2
	`, quantity, item.id)
	if err != nil {
		return nil, fmt.Errorf("failed to unstock variant %s: %w", variantID, err)
	}
	return s.insertLedgerEntry(ctx, tx, item.id, variantID, locationID, -quantity, originator, transferID)
}

func (s *Store) insertLedgerEntry(ctx context.Context, tx pgx.Tx, itemID, variantID, locationID string, delta int64, originator core.MovementOriginator, transferID string) (*core.StockLedgerEntry, error) {
	entry := &core.StockLedgerEntry{
		ID:          uuid.NewString(),
		StockItemID: itemID,
		VariantID:   variantID,
		LocationID:  locationID,
		Delta:       delta,
		Originator:  originator,
		TransferID:  transferID,
		CreatedAt:   time.Now(),
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_ledger_entries (id, stock_item_id, variant_id, stock_location_id, delta, originator, transfer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`, entry.ID, entry.StockItemID, entry.VariantID, entry.LocationID, entry.Delta, entry.Originator, entry.TransferID, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return entry, nil
}

// loadItems hydrates the location aggregate with its stock items.
func (s *Store) loadItems(ctx context.Context, loc *core.StockLocation) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, variant_id, stock_location_id, sku, qty_on_hand, qty_reserved, backorderable, unit_cost
		FROM stock_items
		WHERE stock_location_id = $1
		ORDER BY sku
	`, loc.ID)
	if err != nil {
		return fmt.Errorf("failed to query stock items for location %s: %w", loc.Code, err)
	}
	defer rows.Close()

	for rows.Next() {
		si, err := scanItem(rows)
		if err != nil {
			return fmt.Errorf("failed to scan stock item: %w", err)
		}
		loc.AddStockItem(si)
	}
	return rows.Err()
}

func scanLocation(row pgx.Row) (*core.StockLocation, error) {
	loc := &core.StockLocation{}
	var lat, lon *float64
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Code, &loc.Active, &lat, &lon, &loc.PublicMetadata, &loc.PrivateMetadata); err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		loc.Position = &core.Coordinates{Latitude: *lat, Longitude: *lon}
	}
	return loc, nil
}

func scanItem(row pgx.Row) (*core.StockItem, error) {
	si := &core.StockItem{}
	if err := row.Scan(&si.ID, &si.VariantID, &si.LocationID, &si.SKU, &si.OnHand, &si.Reserved, &si.Backorderable, &si.UnitCost); err != nil {
		return nil, err
	}
	return si, nil
}
