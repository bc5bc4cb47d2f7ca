// Package service implements pipeline configuration use cases.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/pipelines/domain"
	"sales_pipeline_backend/internal/pipelines/repository"
	"sales_pipeline_backend/platform/apperr"
	"sales_pipeline_backend/platform/logger"
)

// CreateParams describes a new pipeline.
type CreateParams struct {
	Name      string
	IsDefault bool
	Stages    []domain.Stage
}

// Service manages pipelines.
type Service struct {
	repo repository.Repository
	log  *logger.Logger
}

// New creates a new pipelines service.
func New(repo repository.Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// List returns the tenant's pipelines, provisioning the default one first
// when the tenant has none.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error) {
	pipelines, err := s.repo.ListPipelines(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(pipelines) > 0 {
		return pipelines, nil
	}
	p, err := s.Default(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return []domain.Pipeline{p}, nil
}

// Get returns one pipeline with its stages sorted.
func (s *Service) Get(ctx context.Context, tenantID, pipelineID uuid.UUID) (domain.Pipeline, error) {
	return s.repo.GetPipeline(ctx, tenantID, pipelineID)
}

// GetStage returns one stage owned by the tenant.
func (s *Service) GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (domain.Stage, error) {
	return s.repo.GetStage(ctx, tenantID, stageID)
}

// Default returns the tenant's default pipeline, creating it from the
// embedded template on first use.
func (s *Service) Default(ctx context.Context, tenantID uuid.UUID) (domain.Pipeline, error) {
	p, found, err := s.repo.GetDefaultPipeline(ctx, tenantID)
	if err != nil || found {
		return p, err
	}

	name, stages, err := DefaultTemplate()
	if err != nil {
		return domain.Pipeline{}, apperr.Internal(err.Error())
	}
	created, err := s.repo.CreatePipeline(ctx, domain.Pipeline{
		TenantID:  tenantID,
		Name:      name,
		IsDefault: true,
		Stages:    stages,
	})
	if apperr.Is(err, apperr.KindConflict) {
		// Another request provisioned it first.
		p, found, err := s.repo.GetDefaultPipeline(ctx, tenantID)
		if err == nil && !found {
			return domain.Pipeline{}, apperr.Conflict("default pipeline could not be provisioned")
		}
		return p, err
	}
	if err != nil {
		return domain.Pipeline{}, err
	}

	s.log.WithContext(ctx).Info("default pipeline provisioned",
		slog.String("tenant_id", tenantID.String()),
		slog.String("pipeline_id", created.ID.String()),
	)
	return created, nil
}

// Create validates and stores a pipeline.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, params CreateParams) (domain.Pipeline, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return domain.Pipeline{}, apperr.Validation("pipeline name is required")
	}
	stages := append([]domain.Stage(nil), params.Stages...)
	for i := range stages {
		stages[i].Name = strings.TrimSpace(stages[i].Name)
		if stages[i].Kind == "" {
			stages[i].Kind = blueprint.StageOpen
		}
	}
	if err := domain.ValidateStages(stages); err != nil {
		return domain.Pipeline{}, apperr.Validation(err.Error())
	}

	return s.repo.CreatePipeline(ctx, domain.Pipeline{
		TenantID:  tenantID,
		Name:      name,
		IsDefault: params.IsDefault,
		Stages:    stages,
	})
}

// UpdateRequirements replaces the requirement predicates of one stage.
func (s *Service) UpdateRequirements(ctx context.Context, tenantID, pipelineID, stageID uuid.UUID, reqs []blueprint.Requirement) (domain.Stage, error) {
	for i := range reqs {
		reqs[i].Field = strings.TrimSpace(reqs[i].Field)
	}
	if err := domain.ValidateRequirements(reqs); err != nil {
		return domain.Stage{}, apperr.Validation(err.Error())
	}
	return s.repo.UpdateStageRequirements(ctx, tenantID, pipelineID, stageID, reqs)
}

// ListTenants returns every tenant known to the system.
func (s *Service) ListTenants(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListTenants(ctx)
}
