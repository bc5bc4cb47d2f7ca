package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/leads/domain"
	"sales_pipeline_backend/internal/scoring"
)

// ListParams filters and pages a lead listing.
type ListParams struct {
	TenantID uuid.UUID
	Status   *domain.Status
	Tier     *scoring.Tier
	Search   string
	Offset   int
	Limit    int
}

// Repository persists leads. Update fails with db.ErrStaleVersion when the
// stored version differs from expectedVersion.
type Repository interface {
	Create(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Get(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error)
	List(ctx context.Context, params ListParams) ([]domain.Lead, int, error)
	Update(ctx context.Context, lead domain.Lead, expectedVersion int) (domain.Lead, error)
	TouchActivity(ctx context.Context, tenantID, leadID uuid.UUID, at time.Time) (domain.Lead, error)
	// ListActivity returns every lead of the tenant that is not yet qualified
	// or disqualified.
	ListActivity(ctx context.Context, tenantID uuid.UUID) ([]domain.Activity, error)
}
