package adapters

import (
	"context"

	"github.com/google/uuid"

	dealports "sales_pipeline_backend/internal/deals/ports"
	pipelinedomain "sales_pipeline_backend/internal/pipelines/domain"
	"sales_pipeline_backend/platform/apperr"
)

// pipelineReader is the slice of the pipelines service the deals context uses.
type pipelineReader interface {
	GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (pipelinedomain.Stage, error)
	Default(ctx context.Context, tenantID uuid.UUID) (pipelinedomain.Pipeline, error)
}

// StageReader adapts the pipelines service for the deals domain.
// It implements deals/ports.StageReader.
type StageReader struct {
	pipelines pipelineReader
}

// NewStageReader creates a stage reader over the pipelines service.
func NewStageReader(pipelines pipelineReader) *StageReader {
	return &StageReader{pipelines: pipelines}
}

// GetStage resolves a tenant's stage with its requirements.
func (a *StageReader) GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (dealports.Stage, error) {
	stage, err := a.pipelines.GetStage(ctx, tenantID, stageID)
	if err != nil {
		return dealports.Stage{}, err
	}
	return toDealStage(stage), nil
}

// InitialStage returns the first stage of the tenant's default pipeline,
// provisioning the pipeline from the template when the tenant has none.
func (a *StageReader) InitialStage(ctx context.Context, tenantID uuid.UUID) (dealports.Stage, error) {
	p, err := a.pipelines.Default(ctx, tenantID)
	if err != nil {
		return dealports.Stage{}, err
	}
	first, ok := p.FirstStage()
	if !ok {
		return dealports.Stage{}, apperr.Conflict("default pipeline has no stages")
	}
	return toDealStage(first), nil
}

func toDealStage(s pipelinedomain.Stage) dealports.Stage {
	return dealports.Stage{Stage: s.Blueprint(), PipelineID: s.PipelineID}
}

var _ dealports.StageReader = (*StageReader)(nil)
