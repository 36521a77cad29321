// Package eventbus publishes domain events to the message broker for other
// services to consume. Publication is fire-and-forget: a failed publish is
// logged and never rolls back the state change that produced the event.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/carelane/medassign/internal/shared/domain"
	"github.com/google/uuid"
)

// Publisher sends domain events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event domain.DomainEvent) error
	Close() error
}

// NoopPublisher discards events. Used in development when no broker is
// available and in tests.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that only logs.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	p.logger.Debug("event discarded",
		"routing_key", event.RoutingKey(),
		"aggregate_id", event.AggregateID(),
	)
	return nil
}

func (p *NoopPublisher) Close() error { return nil }

// envelope is the wire format of a published event. The typed event fields
// ride in Payload; the envelope carries identity and ordering metadata.
type envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

func marshalEvent(event domain.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		EventType:     event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Payload:       payload,
	})
}
