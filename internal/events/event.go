// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"sales_pipeline_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event        = events.Event
	Bus          = events.Bus
	Handler      = events.Handler
	HandlerFunc  = events.HandlerFunc
	BaseEvent    = events.BaseEvent
	TenantScoped = events.TenantScoped
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadScored is published whenever a lead's score is recomputed.
type LeadScored struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	Score    int       `json:"score"`
	Tier     string    `json:"tier"`
}

func (e LeadScored) EventName() string { return "leads.lead.scored" }
func (e LeadScored) Tenant() uuid.UUID { return e.TenantID }

// LeadQualified is published after a lead has been converted into a deal.
type LeadQualified struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	DealID   uuid.UUID `json:"dealId"`
	TenantID uuid.UUID `json:"tenantId"`
	StageID  uuid.UUID `json:"stageId"`
	ActorID  uuid.UUID `json:"actorId"`
}

func (e LeadQualified) EventName() string { return "leads.lead.qualified" }
func (e LeadQualified) Tenant() uuid.UUID { return e.TenantID }

// =============================================================================
// Deal Domain Events
// =============================================================================

// StageTransitionAttempted is published after a transition attempt has been
// committed, whatever its outcome.
type StageTransitionAttempted struct {
	BaseEvent
	RecordID    uuid.UUID `json:"recordId"`
	DealID      uuid.UUID `json:"dealId"`
	TenantID    uuid.UUID `json:"tenantId"`
	FromStageID uuid.UUID `json:"fromStageId"`
	ToStageID   uuid.UUID `json:"toStageId"`
	Outcome     string    `json:"outcome"`
	ActorID     uuid.UUID `json:"actorId"`
}

func (e StageTransitionAttempted) EventName() string { return "deals.stage.transition_attempted" }
func (e StageTransitionAttempted) Tenant() uuid.UUID { return e.TenantID }

// =============================================================================
// SLA Domain Events
// =============================================================================

// SLAThresholdCrossed is published once per entity, level and activity
// timestamp when a sweep finds the entity at risk or in breach.
type SLAThresholdCrossed struct {
	BaseEvent
	TenantID           uuid.UUID `json:"tenantId"`
	EntityType         string    `json:"entityType"`
	EntityID           uuid.UUID `json:"entityId"`
	EntityName         string    `json:"entityName"`
	Level              string    `json:"level"`
	Tier               string    `json:"tier"`
	LastActivityAt     time.Time `json:"lastActivityAt"`
	HoursSinceActivity float64   `json:"hoursSinceActivity"`
}

func (e SLAThresholdCrossed) EventName() string { return "sla.threshold_crossed" }
func (e SLAThresholdCrossed) Tenant() uuid.UUID { return e.TenantID }
