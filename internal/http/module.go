// Package http wires the pipeline engine's bounded contexts (leads, deals,
// pipelines, sla) into one gin API under /api/v1.
package http

import (
	"sales_pipeline_backend/platform/config"

	"github.com/gin-gonic/gin"
)

// Module is a bounded context that mounts its own routes.
type Module interface {
	// Name is used in startup logs.
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext holds the route groups a module may mount on. Every group
// except V1 requires a valid bearer token carrying a tenant.
type RouterContext struct {
	Engine *gin.Engine
	// V1 is /api/v1 without authentication.
	V1 *gin.RouterGroup
	// Protected is /api/v1 behind the JWT middleware: rep-facing lead, deal,
	// pipeline and SLA routes.
	Protected *gin.RouterGroup
	// Admin is /api/v1/admin and additionally requires the admin role:
	// pipeline requirement edits and SLA policy changes.
	Admin *gin.RouterGroup
	// Config exposes only the JWT secret.
	Config         config.JWTConfig
	AuthMiddleware gin.HandlerFunc
}
