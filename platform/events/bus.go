package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sales_pipeline_backend/platform/logger"
)

// InMemoryBus is a process-local Bus. Handlers for one event name run in
// registration order.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
	wg       sync.WaitGroup
}

var _ Bus = (*InMemoryBus)(nil)

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for eventName.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches the event on a background goroutine. The request context
// is detached so handlers outlive the request; handler errors are logged.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	handlers := b.snapshot(event.EventName())
	if len(handlers) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := dispatch(detached, handlers, event); err != nil && b.log != nil {
			attrs := []any{
				slog.String("event", event.EventName()),
				slog.String("error", err.Error()),
			}
			if scoped, ok := event.(TenantScoped); ok {
				attrs = append(attrs, slog.String("tenant_id", scoped.Tenant().String()))
			}
			b.log.WithContext(detached).Error("event handler failed", attrs...)
		}
	}()
}

// PublishSync runs every handler before returning and joins their errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	return dispatch(ctx, b.snapshot(event.EventName()), event)
}

// Wait blocks until asynchronously published events have been handled.
func (b *InMemoryBus) Wait() {
	b.wg.Wait()
}

func (b *InMemoryBus) snapshot(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Handler(nil), b.handlers[name]...)
}

func dispatch(ctx context.Context, handlers []Handler, event Event) error {
	var errs []error
	for _, h := range handlers {
		if herr := safeHandle(ctx, h, event); herr != nil {
			errs = append(errs, herr)
		}
	}
	return errors.Join(errs...)
}

func safeHandle(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic on %s: %v", event.EventName(), r)
		}
	}()
	return h.Handle(ctx, event)
}
