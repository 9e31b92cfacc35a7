package events

import (
	"context"
	"sync"

	"leadrouter/platform/logger"
)

// InMemoryBus is a simple in-process event bus. Handlers registered for an
// event name receive every published event with that name. Publish runs
// handlers in a goroutine; PublishSync runs them inline and returns the
// first handler error.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for the given event name.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish delivers the event to all handlers asynchronously. Handler errors
// are logged, not returned.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	registered := make([]Handler, len(b.handlers[event.EventName()]))
	copy(registered, b.handlers[event.EventName()])
	b.mu.RUnlock()

	if len(registered) == 0 {
		return
	}

	go func() {
		for _, handler := range registered {
			if err := handler.Handle(context.WithoutCancel(ctx), event); err != nil && b.log != nil {
				b.log.Error("event handler failed", "event", event.EventName(), "error", err)
			}
		}
	}()
}

// PublishSync delivers the event to all handlers inline and stops at the
// first error.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	registered := make([]Handler, len(b.handlers[event.EventName()]))
	copy(registered, b.handlers[event.EventName()])
	b.mu.RUnlock()

	for _, handler := range registered {
		if err := handler.Handle(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Compile-time check that InMemoryBus implements Bus.
var _ Bus = (*InMemoryBus)(nil)
