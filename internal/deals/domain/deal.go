// Package domain defines deals and the forecast rule.
package domain

import (
	"time"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/scoring"

	"github.com/google/uuid"
)

// Deal is a qualified opportunity moving through a pipeline.
type Deal struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	LeadID              uuid.UUID
	Title               string
	PipelineID          uuid.UUID
	StageID             uuid.UUID
	AmountCents         *int64
	Currency            string
	Inputs              scoring.Inputs
	Score               int
	Tier                scoring.Tier
	CategoryScores      map[scoring.Category]int
	ForecastProbability float64
	Spiced              blueprint.Spiced
	CustomFields        map[string]string
	Compliance          blueprint.Compliance
	LastActivityAt      *time.Time
	Version             int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Snapshot returns the data the stage validator reads.
func (d Deal) Snapshot() blueprint.DealSnapshot {
	return blueprint.DealSnapshot{
		ID:           d.ID,
		TenantID:     d.TenantID,
		AmountCents:  d.AmountCents,
		Spiced:       d.Spiced,
		CustomFields: d.CustomFields,
	}
}

// ApplyScore stores a scoring result on the deal.
func (d *Deal) ApplyScore(r scoring.Result) {
	d.Score = r.Total
	d.Tier = r.Tier
	d.CategoryScores = r.CategoryScores
}

// Forecast is the win probability of a deal of the given tier sitting in
// stage. Closed stages are certain; open stages use the stage probability
// clamped into the tier's forecast range.
func Forecast(stage blueprint.Stage, tier scoring.Tier) float64 {
	switch stage.Kind {
	case blueprint.StageWon:
		return 1
	case blueprint.StageLost:
		return 0
	}
	return tier.Forecast().Clamp(float64(stage.Probability) / 100)
}

// Activity is the SLA view of an open deal.
type Activity struct {
	ID             uuid.UUID
	Title          string
	Tier           scoring.Tier
	LastActivityAt *time.Time
}

// SpicedPatch updates individual SPICED slots. Nil fields are left alone.
type SpicedPatch struct {
	Situation     *string
	Pain          *string
	Impact        *string
	CriticalEvent *string
	Economic      *string
	Decision      *string
}

// Apply returns s with the patch applied.
func (p SpicedPatch) Apply(s blueprint.Spiced) blueprint.Spiced {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&s.Situation, p.Situation)
	set(&s.Pain, p.Pain)
	set(&s.Impact, p.Impact)
	set(&s.CriticalEvent, p.CriticalEvent)
	set(&s.Economic, p.Economic)
	set(&s.Decision, p.Decision)
	return s
}

// MergeCustomFields returns a copy of current with patch applied. Blank
// values remove the field.
func MergeCustomFields(current, patch map[string]string) map[string]string {
	out := make(map[string]string, len(current)+len(patch))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range patch {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
