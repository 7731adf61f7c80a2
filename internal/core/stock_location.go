package core

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// StockLocation is a physical or virtual place holding stock. It owns
// the stock items tracking each variant stored there; a stock item is
// never shared between locations.
type StockLocation struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Code            string       `json:"code"`
	Active          bool         `json:"active"`
	Position        *Coordinates `json:"position,omitempty"`
	PublicMetadata  Metadata     `json:"public_metadata,omitempty"`
	PrivateMetadata Metadata     `json:"private_metadata,omitempty"`

	items map[string]*StockItem // by variant id
}

// NewStockLocation creates an active location with no stock items.
func NewStockLocation(id, name, code string) *StockLocation {
	return &StockLocation{
		ID:     id,
		Name:   name,
		Code:   code,
		Active: true,
		items:  make(map[string]*StockItem),
	}
}

// HasPosition reports whether both coordinates are present. Distance
// based decisions degrade to documented fallbacks without them.
func (l *StockLocation) HasPosition() bool {
	return l.Position != nil
}

// DistanceTo returns the great-circle distance in kilometers from this
// location to the given point. ok is false when the location has no
// coordinates.
func (l *StockLocation) DistanceTo(point Coordinates) (km float64, ok bool) {
	if l.Position == nil {
		return 0, false
	}
	return l.Position.DistanceKm(point), true
}

// StockItem returns the item tracking the variant, or nil.
func (l *StockLocation) StockItem(variantID string) *StockItem {
	return l.items[variantID]
}

// StockItemOrCreate returns the item tracking the variant, creating an
// empty non-backorderable one on first use. Quantity-zero items are kept
// forever as history anchors.
func (l *StockLocation) StockItemOrCreate(variantID, sku string) *StockItem {
	if l.items == nil {
		l.items = make(map[string]*StockItem)
	}
	if si, ok := l.items[variantID]; ok {
		return si
	}
	si := NewStockItem(variantID, l.ID, sku)
	l.items[variantID] = si
	return si
}

// AddStockItem registers a loaded item with the location. Used by
// repositories when hydrating the aggregate.
func (l *StockLocation) AddStockItem(si *StockItem) {
	if l.items == nil {
		l.items = make(map[string]*StockItem)
	}
	l.items[si.VariantID] = si
}

// StockItems returns the items owned by this location.
func (l *StockLocation) StockItems() []*StockItem {
	out := make([]*StockItem, 0, len(l.items))
	for _, si := range l.items {
		out = append(out, si)
	}
	return out
}

// Restock increases on-hand stock of the variant, creating its stock
// item if absent.
func (l *StockLocation) Restock(variantID, sku string, quantity int64, originator MovementOriginator, transferID string) (*StockLedgerEntry, error) {
	return l.StockItemOrCreate(variantID, sku).Restock(quantity, originator, transferID)
}

// Unstock decreases on-hand stock of the variant, creating its stock
// item if absent.
func (l *StockLocation) Unstock(variantID, sku string, quantity int64, originator MovementOriginator, transferID string) (*StockLedgerEntry, error) {
	return l.StockItemOrCreate(variantID, sku).Unstock(quantity, originator, transferID)
}

// metaValue reads a named key from public metadata first, then private.
func (l *StockLocation) metaValue(key string) (any, bool) {
	if v, ok := l.PublicMetadata[key]; ok {
		return v, true
	}
	if v, ok := l.PrivateMetadata[key]; ok {
		return v, true
	}
	return nil, false
}

// MetaDecimal reads a numeric metadata key with a caller-supplied
// default. Accepts numeric and numeric-string values; anything else
// falls back to the default.
func (l *StockLocation) MetaDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := l.metaValue(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case float64:
		return decimal.NewFromFloat(n)
	case string:
		if d, err := decimal.NewFromString(n); err == nil {
			return d
		}
	}
	return def
}

// MetaInt reads an integer metadata key with a caller-supplied default.
func (l *StockLocation) MetaInt(key string, def int64) int64 {
	v, ok := l.metaValue(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return def
}
