// Package domain defines pipelines and their ordered stages.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sales_pipeline_backend/internal/blueprint"

	"github.com/google/uuid"
)

// Pipeline is an ordered list of stages owned by one tenant.
type Pipeline struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	IsDefault bool
	Stages    []Stage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stage is one step of a pipeline.
type Stage struct {
	ID           uuid.UUID
	PipelineID   uuid.UUID
	Name         string
	OrderIndex   int
	Probability  int
	Color        string
	Kind         blueprint.StageKind
	Requirements []blueprint.Requirement
}

// Blueprint converts the stage into the validator's view.
func (s Stage) Blueprint() blueprint.Stage {
	return blueprint.Stage{
		ID:           s.ID,
		Name:         s.Name,
		OrderIndex:   s.OrderIndex,
		Probability:  s.Probability,
		Kind:         s.Kind,
		Requirements: s.Requirements,
	}
}

// SortStages orders stages by order index.
func SortStages(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].OrderIndex < stages[j].OrderIndex
	})
}

// FirstStage returns the stage with the lowest order index.
func (p Pipeline) FirstStage() (Stage, bool) {
	if len(p.Stages) == 0 {
		return Stage{}, false
	}
	first := p.Stages[0]
	for _, s := range p.Stages[1:] {
		if s.OrderIndex < first.OrderIndex {
			first = s
		}
	}
	return first, true
}

// StageByID looks up a stage of this pipeline.
func (p Pipeline) StageByID(id uuid.UUID) (Stage, bool) {
	for _, s := range p.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// ValidateStages enforces a non-empty stage list with unique order indices,
// unique names, probabilities within 0..100 and well-formed requirements.
func ValidateStages(stages []Stage) error {
	if len(stages) == 0 {
		return errors.New("a pipeline needs at least one stage")
	}

	orders := make(map[int]string, len(stages))
	names := make(map[string]struct{}, len(stages))
	for _, s := range stages {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return errors.New("stage name is required")
		}
		key := strings.ToLower(name)
		if _, dup := names[key]; dup {
			return fmt.Errorf("duplicate stage name %q", name)
		}
		names[key] = struct{}{}

		if other, dup := orders[s.OrderIndex]; dup {
			return fmt.Errorf("stages %q and %q share order index %d", other, name, s.OrderIndex)
		}
		orders[s.OrderIndex] = name

		if s.Probability < 0 || s.Probability > 100 {
			return fmt.Errorf("stage %q: probability must be between 0 and 100", name)
		}
		if !s.Kind.Valid() {
			return fmt.Errorf("stage %q: unknown kind %q", name, s.Kind)
		}
		if err := ValidateRequirements(s.Requirements); err != nil {
			return fmt.Errorf("stage %q: %w", name, err)
		}
	}
	return nil
}

// ValidateRequirements checks every predicate and rejects duplicates.
func ValidateRequirements(reqs []blueprint.Requirement) error {
	seen := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seen[r.Key()]; dup {
			return fmt.Errorf("duplicate requirement %s", r.Key())
		}
		seen[r.Key()] = struct{}{}
	}
	return nil
}
