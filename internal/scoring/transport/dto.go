// Package transport holds the wire shapes of scoring inputs and results that
// the leads and deals APIs share.
package transport

import (
	"fmt"

	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/platform/validator"
)

// Validation tags for the configurable enumerations.
const (
	TagLeadSource   = "lead_source"
	TagMotivation   = "motivation"
	TagDecisionRole = "decision_role"
)

// RegisterEnums registers the enumeration tags with the values accepted by
// the active scoring configuration.
func RegisterEnums(val *validator.Validator, cfg scoring.Config) error {
	enums := []struct {
		tag    string
		values []string
	}{
		{TagLeadSource, cfg.Sources()},
		{TagMotivation, cfg.Motivations()},
		{TagDecisionRole, cfg.DecisionRoles()},
	}
	for _, e := range enums {
		if err := val.RegisterEnum(e.tag, e.values...); err != nil {
			return fmt.Errorf("register %s: %w", e.tag, err)
		}
	}
	return nil
}

// Inputs carries the optional scoring attributes of a lead or deal.
type Inputs struct {
	Source                 *string `json:"source" validate:"omitnil,lead_source"`
	EconomicUnits          *int    `json:"economicUnits" validate:"omitnil,min=0"`
	UsageVolume            *int    `json:"usageVolume" validate:"omitnil,min=0"`
	Urgency                *int    `json:"urgency" validate:"omitnil,min=1,max=5"`
	TriggerEvent           *string `json:"triggerEvent" validate:"omitnil,max=500"`
	PrimaryMotivation      *string `json:"primaryMotivation" validate:"omitnil,motivation"`
	DecisionRole           *string `json:"decisionRole" validate:"omitnil,decision_role"`
	DecisionProcessClarity *int    `json:"decisionProcessClarity" validate:"omitnil,min=1,max=5"`
}

// ToInputs converts the wire shape.
func (in Inputs) ToInputs() scoring.Inputs {
	return scoring.Inputs{
		Source:                 in.Source,
		EconomicUnits:          in.EconomicUnits,
		UsageVolume:            in.UsageVolume,
		Urgency:                in.Urgency,
		TriggerEvent:           in.TriggerEvent,
		PrimaryMotivation:      in.PrimaryMotivation,
		DecisionRole:           in.DecisionRole,
		DecisionProcessClarity: in.DecisionProcessClarity,
	}
}

// NewInputs renders stored inputs.
func NewInputs(in scoring.Inputs) Inputs {
	return Inputs{
		Source:                 in.Source,
		EconomicUnits:          in.EconomicUnits,
		UsageVolume:            in.UsageVolume,
		Urgency:                in.Urgency,
		TriggerEvent:           in.TriggerEvent,
		PrimaryMotivation:      in.PrimaryMotivation,
		DecisionRole:           in.DecisionRole,
		DecisionProcessClarity: in.DecisionProcessClarity,
	}
}

// ScoreResponse renders a scoring result.
type ScoreResponse struct {
	Score          int                      `json:"score"`
	Tier           scoring.Tier             `json:"tier"`
	CategoryScores map[scoring.Category]int `json:"categoryScores"`
	ForecastRange  scoring.ForecastRange    `json:"forecastRange"`
	ConfigVersion  string                   `json:"configVersion,omitempty"`
}

// NewScoreResponse maps an engine result.
func NewScoreResponse(r scoring.Result) ScoreResponse {
	return ScoreResponse{
		Score:          r.Total,
		Tier:           r.Tier,
		CategoryScores: r.CategoryScores,
		ForecastRange:  r.Tier.Forecast(),
		ConfigVersion:  r.Version,
	}
}
