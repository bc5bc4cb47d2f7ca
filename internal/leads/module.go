// Package leads provides the leads bounded context module.
package leads

import (
	"sales_pipeline_backend/internal/events"
	apphttp "sales_pipeline_backend/internal/http"
	"sales_pipeline_backend/internal/leads/handler"
	"sales_pipeline_backend/internal/leads/ports"
	"sales_pipeline_backend/internal/leads/repository"
	"sales_pipeline_backend/internal/leads/service"
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/platform/config"
	"sales_pipeline_backend/platform/logger"
	"sales_pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the leads module.
func NewModule(pool *pgxpool.Pool, engine *scoring.Engine, qualifier ports.DealQualifier, bus events.Bus, cfg config.PhoneConfig, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), engine, qualifier, bus, cfg.GetDefaultPhoneRegion(), log.WithComponent("leads"))
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
