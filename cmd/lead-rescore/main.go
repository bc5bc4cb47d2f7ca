package main

import (
	"context"
	"os"
	"strings"

	"sales_pipeline_backend/internal/adapters"
	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/calculation"
	"sales_pipeline_backend/internal/deals"
	"sales_pipeline_backend/internal/events"
	"sales_pipeline_backend/internal/leads"
	"sales_pipeline_backend/internal/pipelines"
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/platform/config"
	"sales_pipeline_backend/platform/db"
	"sales_pipeline_backend/platform/logger"
	"sales_pipeline_backend/platform/validator"

	"github.com/google/uuid"
)

// Recomputes score, tier and forecast for every open lead and deal after the
// scoring weights change. RESCORE_TENANT_ID limits the run to one tenant.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	weights, err := scoring.LoadConfig(cfg.GetScoringConfigPath())
	if err != nil {
		panic("failed to load scoring config: " + err.Error())
	}
	engine, err := scoring.New(weights)
	if err != nil {
		panic("failed to initialize scoring engine: " + err.Error())
	}
	log.Info("starting rescore", "scoringVersion", weights.Version)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	pipelinesModule := pipelines.NewModule(pool, val, log)
	// Rescoring re-evaluates compliance of the current stage; calculation
	// requirements need the live collaborator to stay satisfied.
	var calc blueprint.CalculationChecker
	if cfg.IsCalculationEnabled() {
		calc = calculation.New(cfg, log.WithComponent("calculation"))
	}
	gate := blueprint.NewValidator(calc, cfg.GetCalculationTimeout())
	dealsModule := deals.NewModule(pool, adapters.NewStageReader(pipelinesModule.Service()), engine, gate, eventBus, val, log)
	leadsModule := leads.NewModule(pool, engine, nil, eventBus, cfg, val, log)

	tenants, err := tenantsToRescore(ctx, pipelinesModule.Service())
	if err != nil {
		log.Error("failed to list tenants", "error", err)
		panic("failed to list tenants: " + err.Error())
	}

	var leadsDone, dealsDone, failed int
	for _, tenantID := range tenants {
		n, err := leadsModule.Service().Rescore(ctx, tenantID)
		leadsDone += n
		if err != nil {
			failed++
			log.Warn("lead rescore failed", "tenant_id", tenantID.String(), "error", err)
		}

		n, err = dealsModule.Service().Rescore(ctx, tenantID)
		dealsDone += n
		if err != nil {
			failed++
			log.Warn("deal rescore failed", "tenant_id", tenantID.String(), "error", err)
		}
	}

	eventBus.Wait()
	log.Info("rescore complete", "tenants", len(tenants), "leads", leadsDone, "deals", dealsDone, "failures", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

type tenantLister interface {
	ListTenants(ctx context.Context) ([]uuid.UUID, error)
}

func tenantsToRescore(ctx context.Context, lister tenantLister) ([]uuid.UUID, error) {
	if raw := strings.TrimSpace(os.Getenv("RESCORE_TENANT_ID")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		return []uuid.UUID{id}, nil
	}
	return lister.ListTenants(ctx)
}
