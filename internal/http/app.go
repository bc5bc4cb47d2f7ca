package http

import (
	"context"

	"sales_pipeline_backend/internal/events"
	"sales_pipeline_backend/platform/config"
	"sales_pipeline_backend/platform/logger"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs GET /api/health; in production it pings Postgres.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is what cmd/api hands to the router once every module is built.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	Health HealthChecker
	// EventBus carries LeadScored, LeadQualified, StageTransitionAttempted
	// and SLAThresholdCrossed between modules.
	EventBus events.Bus
	// Modules are mounted in slice order.
	Modules []Module
}
