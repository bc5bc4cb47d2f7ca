// Package events is the in-process bus that carries scoring, transition and
// SLA notifications between modules. Event definitions live in
// internal/events.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is anything published on the bus.
type Event interface {
	// EventName is the subscription key, e.g. "sla.threshold_crossed".
	EventName() string
	OccurredAt() time.Time
}

// TenantScoped is implemented by events that belong to one organization.
// The bus tags handler failures with the tenant.
type TenantScoped interface {
	Tenant() uuid.UUID
}

// BaseEvent carries the identity and time shared by every event.
type BaseEvent struct {
	ID        uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// EventID identifies one publication; handlers that persist use it to
// ignore redelivery.
func (e BaseEvent) EventID() uuid.UUID { return e.ID }

// NewBaseEvent stamps a new event with a fresh id and the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{ID: uuid.New(), Timestamp: time.Now().UTC()}
}

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to the handlers subscribed to their name.
type Bus interface {
	// Publish hands the event to its handlers in the background. Failures
	// are logged, never returned.
	Publish(ctx context.Context, event Event)
	// PublishSync runs every handler before returning their joined errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
