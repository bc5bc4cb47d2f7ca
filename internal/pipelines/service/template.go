package service

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/pipelines/domain"
)

//go:embed default_pipeline.yaml
var defaultPipelineYAML []byte

type templateStage struct {
	Name         string                  `yaml:"name"`
	Probability  int                     `yaml:"probability"`
	Color        string                  `yaml:"color"`
	Kind         blueprint.StageKind     `yaml:"kind"`
	Requirements []blueprint.Requirement `yaml:"requirements"`
}

type template struct {
	Name   string          `yaml:"name"`
	Stages []templateStage `yaml:"stages"`
}

// DefaultTemplate returns the stages provisioned for a tenant without a
// pipeline. Order indices follow the file order.
func DefaultTemplate() (string, []domain.Stage, error) {
	var t template
	if err := yaml.Unmarshal(defaultPipelineYAML, &t); err != nil {
		return "", nil, fmt.Errorf("parse default pipeline: %w", err)
	}

	stages := make([]domain.Stage, 0, len(t.Stages))
	for i, s := range t.Stages {
		kind := s.Kind
		if kind == "" {
			kind = blueprint.StageOpen
		}
		stages = append(stages, domain.Stage{
			Name:         s.Name,
			OrderIndex:   i,
			Probability:  s.Probability,
			Color:        s.Color,
			Kind:         kind,
			Requirements: s.Requirements,
		})
	}
	if err := domain.ValidateStages(stages); err != nil {
		return "", nil, fmt.Errorf("default pipeline: %w", err)
	}
	return t.Name, stages, nil
}
