// Package deals provides the deals bounded context module.
package deals

import (
	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/deals/handler"
	"sales_pipeline_backend/internal/deals/ports"
	"sales_pipeline_backend/internal/deals/repository"
	"sales_pipeline_backend/internal/deals/service"
	"sales_pipeline_backend/internal/events"
	apphttp "sales_pipeline_backend/internal/http"
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/platform/logger"
	"sales_pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the deals bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the deals module.
func NewModule(pool *pgxpool.Pool, stages ports.StageReader, engine *scoring.Engine, gate *blueprint.Validator, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), stages, engine, gate, bus, log.WithComponent("deals"))
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "deals"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts deal routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/deals"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
