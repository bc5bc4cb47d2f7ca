// Package scoring computes lead and deal scores and tiers.
// The engine is a pure function of its inputs: missing inputs score zero and
// identical inputs always yield the identical result.
package scoring

import (
	"math"
	"strings"
)

// Category names one of the five weighted scoring categories.
type Category string

const (
	CategorySize       Category = "size_economic_impact"
	CategoryUrgency    Category = "urgency_willingness"
	CategorySource     Category = "lead_source_quality"
	CategoryMotivation Category = "strategic_motivation"
	CategoryDecision   Category = "decision_readiness"
)

// Categories in presentation order.
var Categories = []Category{
	CategorySize,
	CategoryUrgency,
	CategorySource,
	CategoryMotivation,
	CategoryDecision,
}

// categoryWeights are fixed and sum to 100.
var categoryWeights = map[Category]float64{
	CategorySize:       30,
	CategoryUrgency:    20,
	CategorySource:     15,
	CategoryMotivation: 20,
	CategoryDecision:   15,
}

// Weight returns the maximum points a category can contribute.
func (c Category) Weight() int {
	return int(categoryWeights[c])
}

// Inputs are the raw scoring attributes shared by leads and deals.
// Every field is optional.
type Inputs struct {
	Source                 *string
	EconomicUnits          *int
	UsageVolume            *int
	Urgency                *int
	TriggerEvent           *string
	PrimaryMotivation      *string
	DecisionRole           *string
	DecisionProcessClarity *int
}

// Merge returns in with every field set in patch replacing the current value.
func (in Inputs) Merge(patch Inputs) Inputs {
	if patch.Source != nil {
		in.Source = patch.Source
	}
	if patch.EconomicUnits != nil {
		in.EconomicUnits = patch.EconomicUnits
	}
	if patch.UsageVolume != nil {
		in.UsageVolume = patch.UsageVolume
	}
	if patch.Urgency != nil {
		in.Urgency = patch.Urgency
	}
	if patch.TriggerEvent != nil {
		in.TriggerEvent = patch.TriggerEvent
	}
	if patch.PrimaryMotivation != nil {
		in.PrimaryMotivation = patch.PrimaryMotivation
	}
	if patch.DecisionRole != nil {
		in.DecisionRole = patch.DecisionRole
	}
	if patch.DecisionProcessClarity != nil {
		in.DecisionProcessClarity = patch.DecisionProcessClarity
	}
	return in
}

// Result is the output of a scoring run.
type Result struct {
	CategoryScores map[Category]int
	Total          int
	Tier           Tier
	Version        string
}

// Engine scores inputs against a validated configuration.
type Engine struct {
	cfg Config
}

// New creates an engine after validating cfg.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// NewDefault creates an engine with the embedded configuration.
func NewDefault() *Engine {
	return &Engine{cfg: DefaultConfig()}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Score computes category scores, the clamped total and the tier.
func (e *Engine) Score(in Inputs) Result {
	combined := map[Category]float64{
		CategorySize:       e.size(in),
		CategoryUrgency:    e.urgency(in),
		CategorySource:     lookup(e.cfg.Source, in.Source),
		CategoryMotivation: lookup(e.cfg.Motivation, in.PrimaryMotivation),
		CategoryDecision:   e.decision(in),
	}

	scores := make(map[Category]int, len(Categories))
	total := 0
	for _, cat := range Categories {
		points := int(math.Round(categoryWeights[cat] * clamp01(combined[cat])))
		scores[cat] = points
		total += points
	}
	total = clampInt(total, 0, 100)

	return Result{
		CategoryScores: scores,
		Total:          total,
		Tier:           TierFor(total),
		Version:        e.cfg.Version,
	}
}

func (e *Engine) size(in Inputs) float64 {
	s := e.cfg.Size
	return s.EconomicUnits.Weight*linear(in.EconomicUnits, s.EconomicUnits.Cap) +
		s.UsageVolume.Weight*linear(in.UsageVolume, s.UsageVolume.Cap)
}

func (e *Engine) urgency(in Inputs) float64 {
	u := e.cfg.Urgency
	value := u.Urgency.Weight * linear(in.Urgency, u.Urgency.Cap)
	if in.TriggerEvent != nil && strings.TrimSpace(*in.TriggerEvent) != "" {
		value += u.TriggerEvent.Weight
	}
	return value
}

func (e *Engine) decision(in Inputs) float64 {
	d := e.cfg.Decision
	return d.Role.Weight*lookup(d.Role.Values, in.DecisionRole) +
		d.Clarity.Weight*linear(in.DecisionProcessClarity, d.Clarity.Cap)
}

func linear(v *int, capValue float64) float64 {
	if v == nil || *v <= 0 {
		return 0
	}
	return clamp01(float64(*v) / capValue)
}

func lookup(t Table, v *string) float64 {
	if v == nil {
		return 0
	}
	return t[strings.ToLower(strings.TrimSpace(*v))]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
