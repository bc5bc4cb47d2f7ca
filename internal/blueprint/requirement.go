// Package blueprint decides whether a deal may enter a pipeline stage.
// Stages carry requirement predicates; a transition attempt evaluates the
// predicates of the target stage and yields allowed, denied or overridden
// together with the audit record describing the attempt.
package blueprint

import (
	"fmt"
	"strings"
)

// RequirementKind identifies a requirement predicate.
type RequirementKind string

const (
	KindSpicedComplete      RequirementKind = "spiced_complete"
	KindCalculationComplete RequirementKind = "calculation_complete"
	KindCustomField         RequirementKind = "custom_field"
)

// FieldAmount is the custom field name satisfied by a positive deal amount.
const FieldAmount = "amount"

// Requirement is one predicate attached to a stage.
type Requirement struct {
	Kind  RequirementKind `json:"kind" yaml:"kind"`
	Field string          `json:"field,omitempty" yaml:"field,omitempty"`
	Label string          `json:"label,omitempty" yaml:"label,omitempty"`
}

// Validate checks the predicate is well formed.
func (r Requirement) Validate() error {
	switch r.Kind {
	case KindSpicedComplete, KindCalculationComplete:
		if r.Field != "" {
			return fmt.Errorf("requirement %s does not take a field", r.Kind)
		}
		return nil
	case KindCustomField:
		if strings.TrimSpace(r.Field) == "" {
			return fmt.Errorf("requirement %s needs a field", r.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown requirement kind %q", r.Kind)
	}
}

// Key is the stable identifier recorded in missing requirement lists.
func (r Requirement) Key() string {
	if r.Kind == KindCustomField {
		return string(r.Kind) + ":" + r.Field
	}
	return string(r.Kind)
}

// DisplayName is the label shown to users.
func (r Requirement) DisplayName() string {
	if r.Label != "" {
		return r.Label
	}
	switch r.Kind {
	case KindSpicedComplete:
		return "SPICED discovery"
	case KindCalculationComplete:
		return "Calculation"
	default:
		return r.Field
	}
}

// StageKind distinguishes open stages from the terminal closed stages.
type StageKind string

const (
	StageOpen StageKind = "open"
	StageWon  StageKind = "won"
	StageLost StageKind = "lost"
)

// Valid reports whether k is a known stage kind.
func (k StageKind) Valid() bool {
	return k == StageOpen || k == StageWon || k == StageLost
}

// Terminal reports whether a deal in a stage of this kind is locked.
func (k StageKind) Terminal() bool {
	return k == StageWon || k == StageLost
}
