package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/internal/sla/domain"
)

// PolicyStore persists per-tenant SLA policies.
type PolicyStore interface {
	// GetPolicy returns the stored policy; found is false when the tenant has
	// not configured one.
	GetPolicy(ctx context.Context, tenantID uuid.UUID, entityType domain.EntityType) (policy domain.Policy, found bool, err error)
	UpsertPolicy(ctx context.Context, tenantID uuid.UUID, policy domain.Policy) error
}

// Repo implements PolicyStore on PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new SLA repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ PolicyStore = (*Repo)(nil)

func (r *Repo) GetPolicy(ctx context.Context, tenantID uuid.UUID, entityType domain.EntityType) (domain.Policy, bool, error) {
	query := `
		SELECT warning_threshold_hours, breach_threshold_hours, tier_overrides
		FROM sla_policies
		WHERE organization_id = $1 AND entity_type = $2`

	policy := domain.Policy{EntityType: entityType}
	var overrides []byte
	if err := r.pool.QueryRow(ctx, query, tenantID, string(entityType)).Scan(
		&policy.WarningHours, &policy.BreachHours, &overrides,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Policy{}, false, nil
		}
		return domain.Policy{}, false, fmt.Errorf("get sla policy: %w", err)
	}

	if len(overrides) > 0 {
		var tiers map[scoring.Tier]domain.Thresholds
		if err := json.Unmarshal(overrides, &tiers); err != nil {
			return domain.Policy{}, false, fmt.Errorf("decode sla tier overrides: %w", err)
		}
		if len(tiers) > 0 {
			policy.TierOverrides = tiers
		}
	}
	return policy, true, nil
}

func (r *Repo) UpsertPolicy(ctx context.Context, tenantID uuid.UUID, policy domain.Policy) error {
	overrides := policy.TierOverrides
	if overrides == nil {
		overrides = map[scoring.Tier]domain.Thresholds{}
	}
	raw, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("encode sla tier overrides: %w", err)
	}

	query := `
		INSERT INTO sla_policies (organization_id, entity_type, warning_threshold_hours, breach_threshold_hours, tier_overrides)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id, entity_type) DO UPDATE
		SET warning_threshold_hours = EXCLUDED.warning_threshold_hours,
			breach_threshold_hours = EXCLUDED.breach_threshold_hours,
			tier_overrides = EXCLUDED.tier_overrides,
			updated_at = now()`

	if _, err := r.pool.Exec(ctx, query, tenantID, string(policy.EntityType), policy.WarningHours, policy.BreachHours, raw); err != nil {
		return fmt.Errorf("upsert sla policy: %w", err)
	}
	return nil
}
