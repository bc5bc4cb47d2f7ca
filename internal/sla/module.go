// Package sla provides the SLA bounded context module.
package sla

import (
	"context"
	"log/slog"

	"sales_pipeline_backend/internal/events"
	apphttp "sales_pipeline_backend/internal/http"
	"sales_pipeline_backend/internal/sla/handler"
	"sales_pipeline_backend/internal/sla/repository"
	"sales_pipeline_backend/internal/sla/service"
	"sales_pipeline_backend/platform/logger"
	"sales_pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the SLA bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	log     *logger.Logger
}

// NewModule creates the SLA module. dedup may be nil for processes that only
// answer queries.
func NewModule(pool *pgxpool.Pool, dedup service.Deduper, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), dedup, bus, log.WithComponent("sla"))
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		log:     log.WithComponent("sla"),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "sla"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts SLA routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/sla/policies/:entityType", m.handler.GetPolicy)
	ctx.Protected.GET("/sla/:entityType/status", m.handler.GetStatus)
	ctx.Protected.POST("/sla/:entityType/status", m.handler.PostStatus)

	ctx.Admin.PUT("/sla/policies/:entityType", m.handler.PutPolicy)
}

// RegisterHandlers subscribes to threshold events. Delivery to users is
// handled elsewhere; crossings are recorded in the structured log.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.SLAThresholdCrossed{}.EventName(), m)
}

// Handle logs SLA threshold crossings.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.SLAThresholdCrossed)
	if !ok {
		return nil
	}
	m.log.WithContext(ctx).Warn("sla threshold crossed",
		slog.String("tenant_id", e.TenantID.String()),
		slog.String("entity_type", e.EntityType),
		slog.String("entity_id", e.EntityID.String()),
		slog.String("level", e.Level),
		slog.String("tier", e.Tier),
		slog.Float64("hours_since_activity", e.HoursSinceActivity),
	)
	return nil
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
