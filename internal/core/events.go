package core

import (
	"context"
	"time"
)

// Event is a domain event emitted by the engine after a successful
// commit. Delivery is at-least-once; consumers must tolerate duplicates.
// Key partitions the event stream: events sharing a key are delivered
// in order relative to each other.
type Event interface {
	EventType() string
	OccurredAt() time.Time
	Key() string
}

// EventPublisher delivers domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// NopPublisher discards all events. Used when a caller runs the engine
// without an event pipeline.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, events ...Event) error { return nil }

type StockTransferCreated struct {
	TransferID            string    `json:"transfer_id"`
	Number                string    `json:"number"`
	SourceLocationID      string    `json:"source_location_id,omitempty"`
	DestinationLocationID string    `json:"destination_location_id"`
	CreatedAt             time.Time `json:"created_at"`
}

func (e StockTransferCreated) EventType() string     { return "stock.transfer-created" }
func (e StockTransferCreated) OccurredAt() time.Time { return e.CreatedAt }
func (e StockTransferCreated) Key() string           { return e.TransferID }

type StockTransferred struct {
	TransferID            string           `json:"transfer_id"`
	SourceLocationID      string           `json:"source_location_id"`
	DestinationLocationID string           `json:"destination_location_id"`
	VariantQuantities     map[string]int64 `json:"variant_quantities"`
	TransferredAt         time.Time        `json:"transferred_at"`
}

func (e StockTransferred) EventType() string     { return "stock.transferred" }
func (e StockTransferred) OccurredAt() time.Time { return e.TransferredAt }
func (e StockTransferred) Key() string           { return e.TransferID }

type StockReceived struct {
	TransferID            string           `json:"transfer_id"`
	DestinationLocationID string           `json:"destination_location_id"`
	VariantQuantities     map[string]int64 `json:"variant_quantities"`
	ReceivedAt            time.Time        `json:"received_at"`
}

func (e StockReceived) EventType() string     { return "stock.received" }
func (e StockReceived) OccurredAt() time.Time { return e.ReceivedAt }
func (e StockReceived) Key() string           { return e.TransferID }

type StockTransferUpdated struct {
	TransferID string    `json:"transfer_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (e StockTransferUpdated) EventType() string     { return "stock.transfer-updated" }
func (e StockTransferUpdated) OccurredAt() time.Time { return e.UpdatedAt }
func (e StockTransferUpdated) Key() string           { return e.TransferID }

type StockTransferDeleted struct {
	TransferID string    `json:"transfer_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}

func (e StockTransferDeleted) EventType() string     { return "stock.transfer-deleted" }
func (e StockTransferDeleted) OccurredAt() time.Time { return e.DeletedAt }
func (e StockTransferDeleted) Key() string           { return e.TransferID }
