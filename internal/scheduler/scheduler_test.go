package scheduler

import (
	"context"
	"errors"
	"testing"

	sladomain "sales_pipeline_backend/internal/sla/domain"
	"sales_pipeline_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type fakeSweeper struct {
	tenant uuid.UUID
	et     sladomain.EntityType
	calls  int
	err    error
}

func (f *fakeSweeper) Sweep(_ context.Context, tenantID uuid.UUID, et sladomain.EntityType) (int, error) {
	f.calls++
	f.tenant = tenantID
	f.et = et
	return 2, f.err
}

func TestHandleSLASweep(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := &Worker{sweeper: sweeper, log: logger.Discard()}
	tenant := uuid.New()

	task, err := NewSLASweepTask(SLASweepPayload{TenantID: tenant.String(), EntityType: "deals"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := w.handleSLASweep(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if sweeper.tenant != tenant || sweeper.et != sladomain.EntityDeals {
		t.Fatalf("unexpected sweep target %s/%s", sweeper.tenant, sweeper.et)
	}

	sweeper.err = errors.New("redis down")
	if err := w.handleSLASweep(context.Background(), task); err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
}

func TestHandleSLASweepSkipsMalformedPayloads(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := &Worker{sweeper: sweeper, log: logger.Discard()}

	cases := []*asynq.Task{
		asynq.NewTask(TaskSLASweep, []byte("{")),
		asynq.NewTask(TaskSLASweep, []byte(`{"tenantId":"nope","entityType":"leads"}`)),
		asynq.NewTask(TaskSLASweep, []byte(`{"tenantId":"`+uuid.NewString()+`","entityType":"quotes"}`)),
	}
	for i, task := range cases {
		if err := w.handleSLASweep(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("case %d: expected SkipRetry, got %v", i, err)
		}
	}
	if sweeper.calls != 0 {
		t.Fatalf("malformed payloads must not reach the sweeper")
	}
}

type fakeTenants []uuid.UUID

func (f fakeTenants) ListTenants(context.Context) ([]uuid.UUID, error) { return f, nil }

type recordingQueue struct {
	payloads []SLASweepPayload
	failFor  string
}

func (q *recordingQueue) EnqueueSLASweep(_ context.Context, p SLASweepPayload) error {
	if p.TenantID == q.failFor {
		return errors.New("enqueue failed")
	}
	q.payloads = append(q.payloads, p)
	return nil
}

func TestDispatchQueuesEveryTenantAndEntityType(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	q := &recordingQueue{failFor: b.String()}
	d := NewSLASweepDispatcher(fakeTenants{a, b}, q, 0, logger.Discard())

	if n := d.dispatch(context.Background()); n != 2 {
		t.Fatalf("expected 2 sweeps queued, got %d", n)
	}
	if q.payloads[0].EntityType != "leads" || q.payloads[1].EntityType != "deals" {
		t.Fatalf("unexpected payloads %+v", q.payloads)
	}
	for _, p := range q.payloads {
		if p.TenantID != a.String() {
			t.Fatalf("unexpected tenant %s", p.TenantID)
		}
	}
}
