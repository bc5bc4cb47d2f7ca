package repository

import (
	"context"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/pipelines/domain"
)

// Repository persists pipelines and their stages.
type Repository interface {
	ListPipelines(ctx context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error)
	GetPipeline(ctx context.Context, tenantID, pipelineID uuid.UUID) (domain.Pipeline, error)
	// GetDefaultPipeline returns found=false when the tenant has none.
	GetDefaultPipeline(ctx context.Context, tenantID uuid.UUID) (pipeline domain.Pipeline, found bool, err error)
	// CreatePipeline inserts the pipeline with its stages in one transaction.
	// A second default pipeline for the same tenant yields a conflict error.
	CreatePipeline(ctx context.Context, pipeline domain.Pipeline) (domain.Pipeline, error)
	GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (domain.Stage, error)
	UpdateStageRequirements(ctx context.Context, tenantID, pipelineID, stageID uuid.UUID, reqs []blueprint.Requirement) (domain.Stage, error)
	// ListTenants returns every organization that owns leads or pipelines.
	ListTenants(ctx context.Context) ([]uuid.UUID, error)
}
