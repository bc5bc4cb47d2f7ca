package scheduler

import (
	"context"
	"fmt"

	sladomain "sales_pipeline_backend/internal/sla/domain"
	"sales_pipeline_backend/platform/config"
	"sales_pipeline_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Sweeper runs one SLA threshold sweep.
type Sweeper interface {
	Sweep(ctx context.Context, tenantID uuid.UUID, entityType sladomain.EntityType) (int, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sweeper Sweeper
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweeper Sweeper, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := &Worker{
		server:  server,
		mux:     asynq.NewServeMux(),
		sweeper: sweeper,
		log:     log,
	}
	w.mux.HandleFunc(TaskSLASweep, w.handleSLASweep)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// Malformed payloads are skipped rather than retried.
func (w *Worker) handleSLASweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSLASweepPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	entityType, err := sladomain.ParseEntityType(payload.EntityType)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	published, err := w.sweeper.Sweep(ctx, tenantID, entityType)
	if err != nil {
		return err
	}
	if published > 0 {
		w.log.Info("sla sweep published threshold events",
			"tenant_id", payload.TenantID,
			"entity_type", payload.EntityType,
			"published", published,
		)
	}
	return nil
}
