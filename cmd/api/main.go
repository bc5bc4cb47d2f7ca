package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales_pipeline_backend/internal/adapters"
	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/calculation"
	"sales_pipeline_backend/internal/deals"
	"sales_pipeline_backend/internal/events"
	apphttp "sales_pipeline_backend/internal/http"
	"sales_pipeline_backend/internal/http/router"
	"sales_pipeline_backend/internal/leads"
	"sales_pipeline_backend/internal/pipelines"
	"sales_pipeline_backend/internal/scoring"
	scoringtransport "sales_pipeline_backend/internal/scoring/transport"
	"sales_pipeline_backend/internal/sla"
	sladomain "sales_pipeline_backend/internal/sla/domain"
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

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Scoring weights: embedded defaults unless SCORING_CONFIG_PATH is set
	engine, err := newScoringEngine(cfg)
	if err != nil {
		log.Error("failed to initialize scoring engine", "error", err)
		panic("failed to initialize scoring engine: " + err.Error())
	}
	log.Info("scoring engine initialized", "version", engine.Config().Version)

	// Shared validator instance for dependency injection
	val := validator.New()
	if err := scoringtransport.RegisterEnums(val, engine.Config()); err != nil {
		panic("failed to register scoring enums: " + err.Error())
	}

	gate := blueprint.NewValidator(newCalculationChecker(cfg, log), cfg.GetCalculationTimeout())

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	pipelinesModule := pipelines.NewModule(pool, val, log)
	slaModule := sla.NewModule(pool, nil, eventBus, val, log)

	// Anti-Corruption Layer: deals read stages through the pipelines service
	stageReader := adapters.NewStageReader(pipelinesModule.Service())
	dealsModule := deals.NewModule(pool, stageReader, engine, gate, eventBus, val, log)

	// Qualification opens deals without leads importing the deals packages
	qualifier := adapters.NewDealQualifier(dealsModule.Service())
	leadsModule := leads.NewModule(pool, engine, qualifier, eventBus, cfg, val, log)

	// Wire SLA sources and per-entity classifiers
	slaModule.Service().SetSource(sladomain.EntityLeads, adapters.NewLeadActivitySource(leadsModule.Service()))
	slaModule.Service().SetSource(sladomain.EntityDeals, adapters.NewDealActivitySource(dealsModule.Service()))
	leadsModule.Service().SetActivityClassifier(adapters.NewSLAClassifier(slaModule.Service(), sladomain.EntityLeads))
	dealsModule.Service().SetActivityClassifier(adapters.NewSLAClassifier(slaModule.Service(), sladomain.EntityDeals))

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			pipelinesModule,
			leadsModule,
			dealsModule,
			slaModule,
		},
	}

	engineHTTP := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engineHTTP.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, waiting for event handlers")
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func newScoringEngine(cfg config.ScoringConfig) (*scoring.Engine, error) {
	weights, err := scoring.LoadConfig(cfg.GetScoringConfigPath())
	if err != nil {
		return nil, err
	}
	return scoring.New(weights)
}

// newCalculationChecker returns nil when no calculation service is
// configured; calculation requirements then always fail.
func newCalculationChecker(cfg config.CalculationConfig, log *logger.Logger) blueprint.CalculationChecker {
	if !cfg.IsCalculationEnabled() {
		log.Warn("CALCULATION_API_URL not configured; calculation requirements cannot be met")
		return nil
	}
	return calculation.New(cfg, log.WithComponent("calculation"))
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
