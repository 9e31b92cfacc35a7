// Package events defines the bus contract modules publish domain events on.
// It carries no business logic; event types themselves live with the module
// that emits them (routing decisions, SLA breaches, approval resolutions).
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event put on the bus.
type Event interface {
	// EventName identifies the event type, e.g. "routing.lead.assigned".
	EventName() string
	// OccurredAt is when the event happened, not when it was published.
	OccurredAt() time.Time
}

// BaseEvent supplies the timestamp; embed it in concrete event types.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps an event with the current time. Replayed events (the
// outbox worker) set Timestamp explicitly instead.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events of one subscribed type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus is the publish/subscribe contract.
type Bus interface {
	// Publish fans the event out to subscribed handlers without waiting
	// for them.
	Publish(ctx context.Context, event Event)

	// PublishSync delivers the event and waits for every handler.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for one event name, matched against
	// Event.EventName().
	Subscribe(eventName string, handler Handler)
}
