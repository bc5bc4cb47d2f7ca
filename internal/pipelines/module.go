// Package pipelines provides the pipeline configuration bounded context module.
package pipelines

import (
	apphttp "sales_pipeline_backend/internal/http"
	"sales_pipeline_backend/internal/pipelines/handler"
	"sales_pipeline_backend/internal/pipelines/repository"
	"sales_pipeline_backend/internal/pipelines/service"
	"sales_pipeline_backend/platform/logger"
	"sales_pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the pipelines bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the pipelines module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), log.WithComponent("pipelines"))
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "pipelines"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts pipeline routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/pipelines", m.handler.List)
	ctx.Protected.GET("/pipelines/:id", m.handler.Get)

	adminGroup := ctx.Admin.Group("/pipelines")
	adminGroup.POST("", m.handler.Create)
	adminGroup.PUT("/:id/stages/:stageId/requirements", m.handler.UpdateRequirements)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
