package core

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MovementOriginator tags a ledger entry with the business event that
// caused the on-hand change.
type MovementOriginator string

const (
	OriginatorAdjustment    MovementOriginator = "ADJUSTMENT"
	OriginatorSupplier      MovementOriginator = "SUPPLIER"
	OriginatorStockTransfer MovementOriginator = "STOCK_TRANSFER"
	OriginatorSale          MovementOriginator = "SALE"
	OriginatorReturn        MovementOriginator = "RETURN"
)

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometers between two
// points using the Haversine formula.
func (c Coordinates) DistanceKm(other Coordinates) float64 {
	lat1 := c.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - c.Latitude) * math.Pi / 180
	dLon := (other.Longitude - c.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// Metadata is a free-form string→scalar map attached to a stock location.
// Values are read through typed accessors so strategies can pull tuning
// coefficients without schema changes.
type Metadata map[string]any

// StockLedgerEntry is an immutable audit row recorded for every on-hand
// quantity change. Reservations never produce ledger entries.
type StockLedgerEntry struct {
	ID          string             `json:"id"`
	StockItemID string             `json:"stock_item_id"`
	VariantID   string             `json:"variant_id"`
	LocationID  string             `json:"stock_location_id"`
	Delta       int64              `json:"delta"`
	Originator  MovementOriginator `json:"originator"`
	TransferID  string             `json:"transfer_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Variant is the read model of a purchasable product configuration,
// loaded together with its stock items. The catalog itself is an
// external collaborator.
type Variant struct {
	ID         string       `json:"id"`
	SKU        string       `json:"sku"`
	StockItems []*StockItem `json:"stock_items"`
}

// StockItemAt returns the variant's stock item at the given location,
// or nil when the location does not track this variant yet.
func (v *Variant) StockItemAt(locationID string) *StockItem {
	for _, si := range v.StockItems {
		if si.LocationID == locationID {
			return si
		}
	}
	return nil
}

// StockLevel is a read view of a stock item joined with variant and
// location info.
type StockLevel struct {
	VariantID    string          `json:"variant_id"`
	SKU          string          `json:"sku"`
	LocationID   string          `json:"stock_location_id"`
	LocationCode string          `json:"location_code"`
	OnHand       int64           `json:"on_hand"`
	Reserved     int64           `json:"reserved"`
	Available    int64           `json:"available"` // = OnHand - Reserved
	UnitCost     decimal.Decimal `json:"unit_cost"` // weighted average receipt cost
}

// StockTransfer records a movement of one or more variants between two
// locations, or a receipt from an external supplier when SourceLocationID
// is empty. Execution is terminal: a transfer is executed at most once.
type StockTransfer struct {
	ID                    string    `json:"id"`
	Number                string    `json:"number"`
	SourceLocationID      string    `json:"source_location_id,omitempty"`
	DestinationLocationID string    `json:"destination_location_id"`
	Reference             string    `json:"reference,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	ExecutedAt            time.Time `json:"executed_at,omitempty"`
	LedgerEntryIDs        []string  `json:"ledger_entry_ids,omitempty"`
}

// Executed reports whether the transfer's movement phase has run.
func (t *StockTransfer) Executed() bool {
	return !t.ExecutedAt.IsZero()
}

// TransferLine is one validated (variant, quantity) movement within a
// transfer. UnitCost is set on supplier receipts that carry a receipt
// cost; it folds into the destination item's weighted average.
type TransferLine struct {
	VariantID string           `json:"variant_id"`
	Quantity  int64            `json:"quantity"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
}
