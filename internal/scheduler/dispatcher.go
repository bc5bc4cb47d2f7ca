package scheduler

import (
	"context"
	"time"

	sladomain "sales_pipeline_backend/internal/sla/domain"
	"sales_pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

// TenantLister enumerates the tenants that own pipelines.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]uuid.UUID, error)
}

type sweepEnqueuer interface {
	EnqueueSLASweep(ctx context.Context, payload SLASweepPayload) error
}

// SLASweepDispatcher periodically queues one sweep per tenant and entity type.
type SLASweepDispatcher struct {
	tenants  TenantLister
	queue    sweepEnqueuer
	interval time.Duration
	log      *logger.Logger
}

func NewSLASweepDispatcher(tenants TenantLister, queue sweepEnqueuer, interval time.Duration, log *logger.Logger) *SLASweepDispatcher {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SLASweepDispatcher{tenants: tenants, queue: queue, interval: interval, log: log}
}

func (d *SLASweepDispatcher) Run(ctx context.Context) {
	if d == nil || d.queue == nil || d.tenants == nil {
		return
	}

	d.dispatch(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

// dispatch returns the number of sweeps queued.
func (d *SLASweepDispatcher) dispatch(ctx context.Context) int {
	tenants, err := d.tenants.ListTenants(ctx)
	if err != nil {
		d.log.Warn("sla sweep tenant listing failed", "error", err)
		return 0
	}

	queued := 0
	for _, tenantID := range tenants {
		for _, et := range []sladomain.EntityType{sladomain.EntityLeads, sladomain.EntityDeals} {
			err := d.queue.EnqueueSLASweep(ctx, SLASweepPayload{
				TenantID:   tenantID.String(),
				EntityType: string(et),
			})
			if err != nil {
				d.log.Warn("sla sweep enqueue failed", "tenant_id", tenantID.String(), "entity_type", string(et), "error", err)
				continue
			}
			queued++
		}
	}
	return queued
}
