// Package ports declares the capabilities the leads context needs from other
// bounded contexts. Implementations live in internal/adapters.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/scoring"
)

// QualifyParams describes the lead being converted into a deal.
type QualifyParams struct {
	TenantID    uuid.UUID
	LeadID      uuid.UUID
	LeadVersion int
	Title       string
	Inputs      scoring.Inputs
}

// QualifiedDeal identifies the deal opened for a qualified lead.
type QualifiedDeal struct {
	DealID    uuid.UUID
	StageID   uuid.UUID
	StageName string
}

// DealQualifier opens a deal for a lead and marks the lead qualified in the
// same transaction. It returns db.ErrStaleVersion when the lead changed
// after it was read.
type DealQualifier interface {
	CreateDeal(ctx context.Context, params QualifyParams) (QualifiedDeal, error)
}

// ActivityClassifier reports the SLA level of a single lead. An empty level
// means the lead has no recorded activity.
type ActivityClassifier interface {
	Level(ctx context.Context, tenantID, id uuid.UUID, tier scoring.Tier, lastActivityAt *time.Time) (string, error)
}
