package transport

import (
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/internal/sla/domain"
)

// ThresholdsRequest carries thresholds in hours.
type ThresholdsRequest struct {
	WarningThresholdHours float64 `json:"warningThresholdHours" validate:"required,gt=0"`
	BreachThresholdHours  float64 `json:"breachThresholdHours" validate:"required,gtefield=WarningThresholdHours"`
}

// PolicyRequest is the body of a policy update or an explicit status query.
type PolicyRequest struct {
	ThresholdsRequest
	TierOverrides map[string]ThresholdsRequest `json:"tierOverrides" validate:"omitempty,dive,keys,oneof=A B C D,endkeys"`
}

// ToPolicy converts the request into a domain policy.
func (r PolicyRequest) ToPolicy(entityType domain.EntityType) domain.Policy {
	p := domain.Policy{
		EntityType: entityType,
		Thresholds: domain.Thresholds{
			WarningHours: r.WarningThresholdHours,
			BreachHours:  r.BreachThresholdHours,
		},
	}
	if len(r.TierOverrides) > 0 {
		p.TierOverrides = make(map[scoring.Tier]domain.Thresholds, len(r.TierOverrides))
		for tier, t := range r.TierOverrides {
			p.TierOverrides[scoring.Tier(tier)] = domain.Thresholds{
				WarningHours: t.WarningThresholdHours,
				BreachHours:  t.BreachThresholdHours,
			}
		}
	}
	return p
}

// PolicyResponse renders a policy.
type PolicyResponse struct {
	EntityType            domain.EntityType                  `json:"entityType"`
	WarningThresholdHours float64                            `json:"warningThresholdHours"`
	BreachThresholdHours  float64                            `json:"breachThresholdHours"`
	TierOverrides         map[scoring.Tier]domain.Thresholds `json:"tierOverrides,omitempty"`
}

// NewPolicyResponse maps a domain policy.
func NewPolicyResponse(p domain.Policy) PolicyResponse {
	return PolicyResponse{
		EntityType:            p.EntityType,
		WarningThresholdHours: p.WarningHours,
		BreachThresholdHours:  p.BreachHours,
		TierOverrides:         p.TierOverrides,
	}
}
