// Package domain holds the SLA classification rules. Everything here is pure:
// classification reads an entity's last activity timestamp and never mutates
// persisted state.
package domain

import (
	"fmt"

	"sales_pipeline_backend/internal/scoring"
)

// EntityType is the kind of record an SLA policy applies to.
type EntityType string

const (
	EntityLeads EntityType = "leads"
	EntityDeals EntityType = "deals"
)

// ParseEntityType validates a path or payload value.
func ParseEntityType(raw string) (EntityType, error) {
	switch EntityType(raw) {
	case EntityLeads, EntityDeals:
		return EntityType(raw), nil
	default:
		return "", fmt.Errorf("unknown entity type %q", raw)
	}
}

// Thresholds are measured in hours since last activity.
type Thresholds struct {
	WarningHours float64 `json:"warningThresholdHours"`
	BreachHours  float64 `json:"breachThresholdHours"`
}

// Validate requires 0 < warning <= breach.
func (t Thresholds) Validate() error {
	if t.WarningHours <= 0 {
		return fmt.Errorf("warning threshold must be positive")
	}
	if t.BreachHours < t.WarningHours {
		return fmt.Errorf("breach threshold must not be below the warning threshold")
	}
	return nil
}

// Policy is the SLA configuration for one entity type. Tier overrides
// tighten (or relax) thresholds for specific tiers.
type Policy struct {
	EntityType    EntityType                  `json:"entityType"`
	Thresholds                                `json:"thresholds"`
	TierOverrides map[scoring.Tier]Thresholds `json:"tierOverrides,omitempty"`
}

// For resolves the thresholds that apply to tier.
func (p Policy) For(tier scoring.Tier) Thresholds {
	if t, ok := p.TierOverrides[tier]; ok {
		return t
	}
	return p.Thresholds
}

// Validate checks the base thresholds and every override.
func (p Policy) Validate() error {
	if _, err := ParseEntityType(string(p.EntityType)); err != nil {
		return err
	}
	if err := p.Thresholds.Validate(); err != nil {
		return err
	}
	for tier, t := range p.TierOverrides {
		if !tier.Valid() {
			return fmt.Errorf("unknown tier %q in overrides", tier)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tier %s: %w", tier, err)
		}
	}
	return nil
}

// DefaultPolicy is used when a tenant has not stored a policy.
func DefaultPolicy(entityType EntityType) Policy {
	switch entityType {
	case EntityDeals:
		return Policy{
			EntityType: EntityDeals,
			Thresholds: Thresholds{WarningHours: 72, BreachHours: 168},
			TierOverrides: map[scoring.Tier]Thresholds{
				scoring.TierA: {WarningHours: 24, BreachHours: 72},
			},
		}
	default:
		return Policy{
			EntityType: EntityLeads,
			Thresholds: Thresholds{WarningHours: 24, BreachHours: 48},
			TierOverrides: map[scoring.Tier]Thresholds{
				scoring.TierA: {WarningHours: 4, BreachHours: 8},
			},
		}
	}
}
