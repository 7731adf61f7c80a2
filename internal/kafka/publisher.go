// Package kafka publishes stock domain events to a Kafka topic with
// at-least-once semantics. Consumers must deduplicate on event content.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/qinfa-dev/ReSys.Shop-sub008/internal/core"
)

// envelope wraps an event with its type tag for consumers.
type envelope struct {
	EventType  string     `json:"event_type"`
	OccurredAt string     `json:"occurred_at"`
	Payload    core.Event `json:"payload"`
}

type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

var _ core.EventPublisher = (*Publisher)(nil)

// NewPublisher builds a publisher writing to the given brokers and
// topic. logger may be nil.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		logger: logger,
	}
}

// Publish writes the events, keyed by the originating transfer id so
// consumers see each transfer's events in order.
func (p *Publisher) Publish(ctx context.Context, events ...core.Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(envelope{
			EventType:  event.EventType(),
			OccurredAt: event.OccurredAt().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Payload:    event,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", event.EventType(), err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(event.Key()),
			Value: value,
		})
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to write stock events: %w", err)
	}
	p.logger.Debug("published stock events", zap.Int("count", len(messages)))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
