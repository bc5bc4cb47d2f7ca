// Package ports declares the capabilities the deals context needs from other
// bounded contexts. Implementations live in internal/adapters.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/scoring"
)

// Stage is a pipeline stage together with the pipeline that owns it.
type Stage struct {
	blueprint.Stage
	PipelineID uuid.UUID
}

// StageReader resolves pipeline stages for a tenant.
type StageReader interface {
	GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (Stage, error)
	// InitialStage returns the first stage of the tenant's default pipeline,
	// provisioning the pipeline when the tenant has none.
	InitialStage(ctx context.Context, tenantID uuid.UUID) (Stage, error)
}

// ActivityClassifier reports the SLA level of a single deal. An empty level
// means the deal has no recorded activity.
type ActivityClassifier interface {
	Level(ctx context.Context, tenantID, id uuid.UUID, tier scoring.Tier, lastActivityAt *time.Time) (string, error)
}
