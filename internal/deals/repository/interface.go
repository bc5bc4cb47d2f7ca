package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/deals/domain"
	"sales_pipeline_backend/internal/scoring"
)

// ListParams filters and pages a deal listing.
type ListParams struct {
	TenantID   uuid.UUID
	PipelineID *uuid.UUID
	StageID    *uuid.UUID
	Tier       *scoring.Tier
	Offset     int
	Limit      int
}

// Repository persists deals and their append-only transition log.
//
// Writes that take an expected version fail with db.ErrStaleVersion when the
// stored row has moved on.
type Repository interface {
	Get(ctx context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error)
	List(ctx context.Context, params ListParams) ([]domain.Deal, int, error)
	Update(ctx context.Context, deal domain.Deal, expectedVersion int) (domain.Deal, error)
	// CommitTransition appends rec and, when moved is true, stores deal, all
	// under a row lock that checks expectedVersion.
	CommitTransition(ctx context.Context, deal domain.Deal, expectedVersion int, rec blueprint.Record, moved bool) (domain.Deal, error)
	ListTransitions(ctx context.Context, tenantID, dealID uuid.UUID) ([]blueprint.Record, error)
	TouchActivity(ctx context.Context, tenantID, dealID uuid.UUID, at time.Time) (domain.Deal, error)
	// ListActivity returns every deal of the tenant sitting in an open stage.
	ListActivity(ctx context.Context, tenantID uuid.UUID) ([]domain.Activity, error)
	// CreateFromLead inserts deal and marks its lead qualified in one
	// transaction. The lead row is locked; a lead that is already qualified or
	// disqualified yields a conflict.
	CreateFromLead(ctx context.Context, deal domain.Deal, leadVersion int) (domain.Deal, error)
}
