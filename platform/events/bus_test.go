package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"sales_pipeline_backend/platform/logger"
)

type pingEvent struct {
	BaseEvent
}

func (pingEvent) EventName() string { return "test.ping" }

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var calls int32
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("first")
	}))
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		panic("second")
	}))
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected every handler to run, got %d", calls)
	}
}

func TestPublishRunsAsync(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var calls int32
	bus.Subscribe("test.ping", HandlerFunc(func(context.Context, Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, pingEvent{BaseEvent: NewBaseEvent()})
	cancel()
	bus.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewInMemoryBus(nil)
	bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEvent()})
	if err := bus.PublishSync(context.Background(), pingEvent{BaseEvent: NewBaseEvent()}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

type tenantEvent struct {
	BaseEvent
	tenant uuid.UUID
}

func (tenantEvent) EventName() string   { return "test.tenant" }
func (e tenantEvent) Tenant() uuid.UUID { return e.tenant }

func TestPublishLogsFailureWithTenant(t *testing.T) {
	var buf bytes.Buffer
	bus := NewInMemoryBus(logger.NewWithWriter("production", &buf))
	bus.Subscribe("test.tenant", HandlerFunc(func(context.Context, Event) error {
		return errors.New("sink unavailable")
	}))

	tenant := uuid.New()
	bus.Publish(context.Background(), tenantEvent{BaseEvent: NewBaseEvent(), tenant: tenant})
	bus.Wait()

	out := buf.String()
	if !strings.Contains(out, "sink unavailable") || !strings.Contains(out, tenant.String()) {
		t.Fatalf("expected failure logged with tenant, got %s", out)
	}
}

func TestNewBaseEventIsUnique(t *testing.T) {
	a, b := NewBaseEvent(), NewBaseEvent()
	if a.EventID() == b.EventID() {
		t.Fatalf("expected distinct event ids")
	}
	if a.OccurredAt().Location().String() != "UTC" {
		t.Fatalf("expected UTC timestamp, got %s", a.OccurredAt().Location())
	}
}
