package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sales_pipeline_backend/internal/leads/domain"
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/platform/apperr"
	"sales_pipeline_backend/platform/db"
)

const leadNotFoundMessage = "lead not found"

// Repo implements Repository on PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new leads repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const leadColumns = `id, organization_id, first_name, last_name, email, phone, company,
	source, economic_units, usage_volume, urgency, trigger_event, primary_motivation, decision_role,
	decision_process_clarity, score, tier, category_scores, status, qualified_deal_id,
	last_activity_at, version, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, l domain.Lead) (domain.Lead, error) {
	categoryScores, err := json.Marshal(l.CategoryScores)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("encode category scores: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		INSERT INTO leads (
			organization_id, first_name, last_name, email, phone, company,
			source, economic_units, usage_volume, urgency, trigger_event, primary_motivation, decision_role,
			decision_process_clarity, score, tier, category_scores, status, last_activity_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING `+leadColumns,
		l.TenantID, l.FirstName, l.LastName, l.Email, l.Phone, l.Company,
		l.Inputs.Source, l.Inputs.EconomicUnits, l.Inputs.UsageVolume, l.Inputs.Urgency, l.Inputs.TriggerEvent,
		l.Inputs.PrimaryMotivation, l.Inputs.DecisionRole, l.Inputs.DecisionProcessClarity,
		l.Score, string(l.Tier), categoryScores, string(l.Status), l.LastActivityAt,
	)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	created, err := pgx.CollectExactlyOneRow(rows, scanLead)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return created, nil
}

func (r *Repo) Get(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1 AND organization_id = $2`, leadID, tenantID)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, apperr.NotFound(leadNotFoundMessage)
		}
		return domain.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

func (r *Repo) List(ctx context.Context, params ListParams) ([]domain.Lead, int, error) {
	where := []string{"organization_id = $1"}
	args := []any{params.TenantID}
	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, strings.ReplaceAll(cond, "$?", fmt.Sprintf("$%d", len(args))))
	}
	if params.Status != nil {
		add("status = $?", string(*params.Status))
	}
	if params.Tier != nil {
		add("tier = $?", string(*params.Tier))
	}
	if search := strings.TrimSpace(params.Search); search != "" {
		add("(first_name ILIKE $? OR last_name ILIKE $? OR email ILIKE $? OR company ILIKE $?)", "%"+search+"%")
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM leads WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM leads
		WHERE %s
		ORDER BY score DESC, created_at DESC, id
		LIMIT $%d OFFSET $%d`, leadColumns, clause, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, params.Limit, params.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	leads, err := pgx.CollectRows(rows, scanLead)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	return leads, total, nil
}

func (r *Repo) Update(ctx context.Context, l domain.Lead, expectedVersion int) (domain.Lead, error) {
	categoryScores, err := json.Marshal(l.CategoryScores)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("encode category scores: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		UPDATE leads SET
			first_name = $3, last_name = $4, email = $5, phone = $6, company = $7,
			source = $8, economic_units = $9, usage_volume = $10, urgency = $11, trigger_event = $12,
			primary_motivation = $13, decision_role = $14, decision_process_clarity = $15,
			score = $16, tier = $17, category_scores = $18, status = $19, last_activity_at = $20,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND version = $21
		RETURNING `+leadColumns,
		l.ID, l.TenantID, l.FirstName, l.LastName, l.Email, l.Phone, l.Company,
		l.Inputs.Source, l.Inputs.EconomicUnits, l.Inputs.UsageVolume, l.Inputs.Urgency, l.Inputs.TriggerEvent,
		l.Inputs.PrimaryMotivation, l.Inputs.DecisionRole, l.Inputs.DecisionProcessClarity,
		l.Score, string(l.Tier), categoryScores, string(l.Status), l.LastActivityAt, expectedVersion,
	)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("update lead: %w", err)
	}
	saved, err := pgx.CollectExactlyOneRow(rows, scanLead)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, fmt.Errorf("update lead: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1 AND organization_id = $2)`,
		l.ID, l.TenantID).Scan(&exists); err != nil {
		return domain.Lead{}, fmt.Errorf("update lead: %w", err)
	}
	if !exists {
		return domain.Lead{}, apperr.NotFound(leadNotFoundMessage)
	}
	return domain.Lead{}, db.ErrStaleVersion
}

func (r *Repo) TouchActivity(ctx context.Context, tenantID, leadID uuid.UUID, at time.Time) (domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE leads
		SET last_activity_at = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2
		RETURNING `+leadColumns, leadID, tenantID, at)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("touch lead activity: %w", err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, apperr.NotFound(leadNotFoundMessage)
		}
		return domain.Lead{}, fmt.Errorf("touch lead activity: %w", err)
	}
	return l, nil
}

func (r *Repo) ListActivity(ctx context.Context, tenantID uuid.UUID) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE organization_id = $1 AND status NOT IN ($2, $3)`,
		tenantID, string(domain.StatusQualified), string(domain.StatusDisqualified))
	if err != nil {
		return nil, fmt.Errorf("list lead activity: %w", err)
	}
	leads, err := pgx.CollectRows(rows, scanLead)
	if err != nil {
		return nil, fmt.Errorf("list lead activity: %w", err)
	}

	out := make([]domain.Activity, 0, len(leads))
	for _, l := range leads {
		out = append(out, domain.Activity{
			ID:             l.ID,
			Name:           l.DisplayName(),
			Tier:           l.Tier,
			LastActivityAt: l.LastActivityAt,
		})
	}
	return out, nil
}

func scanLead(row pgx.CollectableRow) (domain.Lead, error) {
	var (
		l              domain.Lead
		tier, status   string
		categoryScores []byte
	)
	if err := row.Scan(
		&l.ID, &l.TenantID, &l.FirstName, &l.LastName, &l.Email, &l.Phone, &l.Company,
		&l.Inputs.Source, &l.Inputs.EconomicUnits, &l.Inputs.UsageVolume, &l.Inputs.Urgency, &l.Inputs.TriggerEvent,
		&l.Inputs.PrimaryMotivation, &l.Inputs.DecisionRole, &l.Inputs.DecisionProcessClarity,
		&l.Score, &tier, &categoryScores, &status, &l.QualifiedDealID,
		&l.LastActivityAt, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return domain.Lead{}, err
	}
	l.Tier = scoring.Tier(tier)
	l.Status = domain.Status(status)
	l.CategoryScores = map[scoring.Category]int{}
	if len(categoryScores) > 0 {
		if err := json.Unmarshal(categoryScores, &l.CategoryScores); err != nil {
			return domain.Lead{}, fmt.Errorf("decode category scores: %w", err)
		}
	}
	return l, nil
}
