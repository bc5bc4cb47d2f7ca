package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales_pipeline_backend/internal/adapters"
	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/deals"
	"sales_pipeline_backend/internal/events"
	"sales_pipeline_backend/internal/leads"
	"sales_pipeline_backend/internal/pipelines"
	"sales_pipeline_backend/internal/scheduler"
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/internal/sla"
	sladomain "sales_pipeline_backend/internal/sla/domain"
	slaservice "sales_pipeline_backend/internal/sla/service"
	"sales_pipeline_backend/platform/config"
	"sales_pipeline_backend/platform/db"
	"sales_pipeline_backend/platform/logger"
	"sales_pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "sweepInterval", cfg.GetSLASweepInterval().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	redisClient, err := slaservice.NewRedisClient(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	weights, err := scoring.LoadConfig(cfg.GetScoringConfigPath())
	if err != nil {
		panic("failed to load scoring config: " + err.Error())
	}
	engine, err := scoring.New(weights)
	if err != nil {
		panic("failed to initialize scoring engine: " + err.Error())
	}

	val := validator.New()

	// Worker-side wiring: sweeps only read activity, so the deals gate runs
	// without a calculation collaborator.
	pipelinesModule := pipelines.NewModule(pool, val, log)
	slaModule := sla.NewModule(pool, slaservice.NewRedisDeduper(redisClient, 0), eventBus, val, log)
	slaModule.RegisterHandlers(eventBus)

	dealsModule := deals.NewModule(pool, adapters.NewStageReader(pipelinesModule.Service()), engine, blueprint.NewValidator(nil, cfg.GetCalculationTimeout()), eventBus, val, log)
	leadsModule := leads.NewModule(pool, engine, nil, eventBus, cfg, val, log)

	slaModule.Service().SetSource(sladomain.EntityLeads, adapters.NewLeadActivitySource(leadsModule.Service()))
	slaModule.Service().SetSource(sladomain.EntityDeals, adapters.NewDealActivitySource(dealsModule.Service()))

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	dispatcher := scheduler.NewSLASweepDispatcher(pipelinesModule.Service(), client, cfg.GetSLASweepInterval(), log)
	go dispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, slaModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
