package transport

import (
	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/pipelines/domain"
)

// RequirementDTO is a requirement predicate on the wire.
type RequirementDTO struct {
	Kind  string `json:"kind" validate:"required,oneof=spiced_complete calculation_complete custom_field"`
	Field string `json:"field,omitempty" validate:"required_if=Kind custom_field,max=100"`
	Label string `json:"label,omitempty" validate:"max=200"`
}

// StageRequest describes one stage of a new pipeline.
type StageRequest struct {
	Name         string           `json:"name" validate:"required,max=100"`
	OrderIndex   int              `json:"orderIndex" validate:"min=0"`
	Probability  int              `json:"probability" validate:"min=0,max=100"`
	Color        string           `json:"color" validate:"omitempty,max=20"`
	Kind         string           `json:"kind" validate:"omitempty,oneof=open won lost"`
	Requirements []RequirementDTO `json:"requirements" validate:"omitempty,dive"`
}

// CreatePipelineRequest is the body of POST /admin/pipelines.
type CreatePipelineRequest struct {
	Name      string         `json:"name" validate:"required,max=100"`
	IsDefault bool           `json:"isDefault"`
	Stages    []StageRequest `json:"stages" validate:"required,min=1,dive"`
}

// UpdateRequirementsRequest replaces a stage's requirements.
type UpdateRequirementsRequest struct {
	Requirements []RequirementDTO `json:"requirements" validate:"dive"`
}

// StageResponse renders a stage.
type StageResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	OrderIndex   int              `json:"orderIndex"`
	Probability  int              `json:"probability"`
	Color        string           `json:"color"`
	Kind         string           `json:"kind"`
	Requirements []RequirementDTO `json:"requirements"`
}

// PipelineResponse renders a pipeline with stages in order.
type PipelineResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	IsDefault bool            `json:"isDefault"`
	Stages    []StageResponse `json:"stages"`
}

// ToRequirements converts wire predicates.
func ToRequirements(in []RequirementDTO) []blueprint.Requirement {
	out := make([]blueprint.Requirement, 0, len(in))
	for _, r := range in {
		out = append(out, blueprint.Requirement{
			Kind:  blueprint.RequirementKind(r.Kind),
			Field: r.Field,
			Label: r.Label,
		})
	}
	return out
}

// ToStages converts the stage list of a create request.
func (r CreatePipelineRequest) ToStages() []domain.Stage {
	out := make([]domain.Stage, 0, len(r.Stages))
	for _, s := range r.Stages {
		out = append(out, domain.Stage{
			Name:         s.Name,
			OrderIndex:   s.OrderIndex,
			Probability:  s.Probability,
			Color:        s.Color,
			Kind:         blueprint.StageKind(s.Kind),
			Requirements: ToRequirements(s.Requirements),
		})
	}
	return out
}

// NewStageResponse maps a domain stage.
func NewStageResponse(s domain.Stage) StageResponse {
	reqs := make([]RequirementDTO, 0, len(s.Requirements))
	for _, r := range s.Requirements {
		reqs = append(reqs, RequirementDTO{Kind: string(r.Kind), Field: r.Field, Label: r.Label})
	}
	return StageResponse{
		ID:           s.ID.String(),
		Name:         s.Name,
		OrderIndex:   s.OrderIndex,
		Probability:  s.Probability,
		Color:        s.Color,
		Kind:         string(s.Kind),
		Requirements: reqs,
	}
}

// NewPipelineResponse maps a domain pipeline.
func NewPipelineResponse(p domain.Pipeline) PipelineResponse {
	stages := make([]StageResponse, 0, len(p.Stages))
	for _, s := range p.Stages {
		stages = append(stages, NewStageResponse(s))
	}
	return PipelineResponse{
		ID:        p.ID.String(),
		Name:      p.Name,
		IsDefault: p.IsDefault,
		Stages:    stages,
	}
}
