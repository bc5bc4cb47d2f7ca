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
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/deals/domain"
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/platform/apperr"
	"sales_pipeline_backend/platform/db"
)

const (
	dealNotFoundMessage = "deal not found"
	leadNotFoundMessage = "lead not found"

	leadStatusQualified    = "qualified"
	leadStatusDisqualified = "disqualified"
)

// Repo implements Repository on PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new deals repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const dealColumns = `id, organization_id, lead_id, title, pipeline_id, stage_id, amount_cents, currency,
	source, economic_units, usage_volume, urgency, trigger_event, primary_motivation, decision_role,
	decision_process_clarity, score, tier, category_scores, forecast_probability::float8,
	spiced_situation, spiced_pain, spiced_impact, spiced_critical_event, spiced_economic, spiced_decision,
	custom_fields, blueprint_compliance, last_activity_at, version, created_at, updated_at`

const transitionColumns = `id, organization_id, deal_id, from_stage_id, to_stage_id, from_stage_name,
	to_stage_name, outcome, override_reason, missing_requirements, actor_id, actor_name, created_at`

func (r *Repo) Get(ctx context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE id = $1 AND organization_id = $2`, dealID, tenantID)
	if err != nil {
		return domain.Deal{}, fmt.Errorf("get deal: %w", err)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanDeal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, apperr.NotFound(dealNotFoundMessage)
		}
		return domain.Deal{}, fmt.Errorf("get deal: %w", err)
	}
	return d, nil
}

func (r *Repo) List(ctx context.Context, params ListParams) ([]domain.Deal, int, error) {
	where := []string{"organization_id = $1"}
	args := []any{params.TenantID}
	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if params.PipelineID != nil {
		add("pipeline_id = $%d", *params.PipelineID)
	}
	if params.StageID != nil {
		add("stage_id = $%d", *params.StageID)
	}
	if params.Tier != nil {
		add("tier = $%d", string(*params.Tier))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM deals WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deals: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM deals
		WHERE %s
		ORDER BY updated_at DESC, id
		LIMIT $%d OFFSET $%d`, dealColumns, clause, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, params.Limit, params.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list deals: %w", err)
	}
	deals, err := pgx.CollectRows(rows, scanDeal)
	if err != nil {
		return nil, 0, fmt.Errorf("list deals: %w", err)
	}
	return deals, total, nil
}

func (r *Repo) Update(ctx context.Context, d domain.Deal, expectedVersion int) (domain.Deal, error) {
	saved, err := writeDeal(ctx, r.pool, d, expectedVersion)
	if !errors.Is(err, pgx.ErrNoRows) {
		return saved, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM deals WHERE id = $1 AND organization_id = $2)`,
		d.ID, d.TenantID).Scan(&exists); err != nil {
		return domain.Deal{}, fmt.Errorf("update deal: %w", err)
	}
	if !exists {
		return domain.Deal{}, apperr.NotFound(dealNotFoundMessage)
	}
	return domain.Deal{}, db.ErrStaleVersion
}

func (r *Repo) CommitTransition(ctx context.Context, d domain.Deal, expectedVersion int, rec blueprint.Record, moved bool) (domain.Deal, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Deal{}, fmt.Errorf("begin commit transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var version int
	err = tx.QueryRow(ctx, `
		SELECT version FROM deals WHERE id = $1 AND organization_id = $2 FOR UPDATE`,
		d.ID, d.TenantID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, apperr.NotFound(dealNotFoundMessage)
		}
		return domain.Deal{}, fmt.Errorf("lock deal: %w", err)
	}
	if version != expectedVersion {
		return domain.Deal{}, db.ErrStaleVersion
	}

	saved := d
	if moved {
		if saved, err = writeDeal(ctx, tx, d, expectedVersion); err != nil {
			return domain.Deal{}, fmt.Errorf("move deal: %w", err)
		}
	}
	if err := insertTransition(ctx, tx, rec); err != nil {
		return domain.Deal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Deal{}, fmt.Errorf("commit transition: %w", err)
	}
	return saved, nil
}

func (r *Repo) ListTransitions(ctx context.Context, tenantID, dealID uuid.UUID) ([]blueprint.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transitionColumns+`
		FROM stage_transitions
		WHERE organization_id = $1 AND deal_id = $2
		ORDER BY created_at, id`, tenantID, dealID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return records, nil
}

func (r *Repo) TouchActivity(ctx context.Context, tenantID, dealID uuid.UUID, at time.Time) (domain.Deal, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE deals
		SET last_activity_at = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2
		RETURNING `+dealColumns, dealID, tenantID, at)
	if err != nil {
		return domain.Deal{}, fmt.Errorf("touch deal activity: %w", err)
	}
	d, err := pgx.CollectExactlyOneRow(rows, scanDeal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, apperr.NotFound(dealNotFoundMessage)
		}
		return domain.Deal{}, fmt.Errorf("touch deal activity: %w", err)
	}
	return d, nil
}

func (r *Repo) ListActivity(ctx context.Context, tenantID uuid.UUID) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.title, d.tier, d.last_activity_at
		FROM deals d
		JOIN pipeline_stages s ON s.id = d.stage_id
		WHERE d.organization_id = $1 AND s.kind = 'open'`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list deal activity: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Activity, error) {
		var a domain.Activity
		var tier string
		if err := row.Scan(&a.ID, &a.Title, &tier, &a.LastActivityAt); err != nil {
			return domain.Activity{}, err
		}
		a.Tier = scoring.Tier(tier)
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list deal activity: %w", err)
	}
	return items, nil
}

func (r *Repo) CreateFromLead(ctx context.Context, d domain.Deal, leadVersion int) (domain.Deal, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Deal{}, fmt.Errorf("begin create deal: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status  string
		version int
	)
	err = tx.QueryRow(ctx, `
		SELECT status, version FROM leads WHERE id = $1 AND organization_id = $2 FOR UPDATE`,
		d.LeadID, d.TenantID).Scan(&status, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, apperr.NotFound(leadNotFoundMessage)
		}
		return domain.Deal{}, fmt.Errorf("lock lead: %w", err)
	}
	switch {
	case status == leadStatusQualified:
		return domain.Deal{}, apperr.Conflict("lead is already qualified")
	case status == leadStatusDisqualified:
		return domain.Deal{}, apperr.Conflict("a disqualified lead cannot be qualified")
	case version != leadVersion:
		return domain.Deal{}, db.ErrStaleVersion
	}

	categoryScores, err := json.Marshal(d.CategoryScores)
	if err != nil {
		return domain.Deal{}, fmt.Errorf("encode category scores: %w", err)
	}
	customFields, err := encodeCustomFields(d.CustomFields)
	if err != nil {
		return domain.Deal{}, err
	}

	rows, err := tx.Query(ctx, `
		INSERT INTO deals (
			id, organization_id, lead_id, title, pipeline_id, stage_id, amount_cents, currency,
			source, economic_units, usage_volume, urgency, trigger_event, primary_motivation, decision_role,
			decision_process_clarity, score, tier, category_scores, forecast_probability,
			custom_fields, blueprint_compliance, last_activity_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING `+dealColumns,
		d.ID, d.TenantID, d.LeadID, d.Title, d.PipelineID, d.StageID, d.AmountCents, d.Currency,
		d.Inputs.Source, d.Inputs.EconomicUnits, d.Inputs.UsageVolume, d.Inputs.Urgency, d.Inputs.TriggerEvent,
		d.Inputs.PrimaryMotivation, d.Inputs.DecisionRole, d.Inputs.DecisionProcessClarity,
		d.Score, string(d.Tier), categoryScores, d.ForecastProbability,
		customFields, string(d.Compliance), d.LastActivityAt,
	)
	if err != nil {
		return domain.Deal{}, insertDealError(err)
	}
	created, err := pgx.CollectExactlyOneRow(rows, scanDeal)
	if err != nil {
		return domain.Deal{}, insertDealError(err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE leads
		SET status = $3, qualified_deal_id = $4, last_activity_at = $5, version = version + 1, updated_at = now()
		WHERE id = $1 AND organization_id = $2`,
		d.LeadID, d.TenantID, leadStatusQualified, created.ID, d.LastActivityAt); err != nil {
		return domain.Deal{}, fmt.Errorf("mark lead qualified: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Deal{}, fmt.Errorf("commit create deal: %w", err)
	}
	return created, nil
}

func insertDealError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == db.UniqueViolation {
		return apperr.Conflict("lead is already qualified")
	}
	return fmt.Errorf("insert deal: %w", err)
}

func writeDeal(ctx context.Context, q querier, d domain.Deal, expectedVersion int) (domain.Deal, error) {
	categoryScores, err := json.Marshal(d.CategoryScores)
	if err != nil {
		return domain.Deal{}, fmt.Errorf("encode category scores: %w", err)
	}
	customFields, err := encodeCustomFields(d.CustomFields)
	if err != nil {
		return domain.Deal{}, err
	}

	rows, err := q.Query(ctx, `
		UPDATE deals SET
			title = $3, stage_id = $4, amount_cents = $5, currency = $6,
			source = $7, economic_units = $8, usage_volume = $9, urgency = $10, trigger_event = $11,
			primary_motivation = $12, decision_role = $13, decision_process_clarity = $14,
			score = $15, tier = $16, category_scores = $17, forecast_probability = $18,
			spiced_situation = $19, spiced_pain = $20, spiced_impact = $21, spiced_critical_event = $22,
			spiced_economic = $23, spiced_decision = $24, custom_fields = $25, blueprint_compliance = $26,
			last_activity_at = $27, version = version + 1, updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND version = $28
		RETURNING `+dealColumns,
		d.ID, d.TenantID, d.Title, d.StageID, d.AmountCents, d.Currency,
		d.Inputs.Source, d.Inputs.EconomicUnits, d.Inputs.UsageVolume, d.Inputs.Urgency, d.Inputs.TriggerEvent,
		d.Inputs.PrimaryMotivation, d.Inputs.DecisionRole, d.Inputs.DecisionProcessClarity,
		d.Score, string(d.Tier), categoryScores, d.ForecastProbability,
		d.Spiced.Situation, d.Spiced.Pain, d.Spiced.Impact, d.Spiced.CriticalEvent,
		d.Spiced.Economic, d.Spiced.Decision, customFields, string(d.Compliance),
		d.LastActivityAt, expectedVersion,
	)
	if err != nil {
		return domain.Deal{}, fmt.Errorf("update deal: %w", err)
	}
	return pgx.CollectExactlyOneRow(rows, scanDeal)
}

func insertTransition(ctx context.Context, q querier, rec blueprint.Record) error {
	missing := rec.MissingRequirements
	if missing == nil {
		missing = []string{}
	}
	raw, err := json.Marshal(missing)
	if err != nil {
		return fmt.Errorf("encode missing requirements: %w", err)
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO stage_transitions (
			id, organization_id, deal_id, from_stage_id, to_stage_id, from_stage_name, to_stage_name,
			outcome, override_reason, missing_requirements, actor_id, actor_name, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.TenantID, rec.DealID, rec.FromStageID, rec.ToStageID, rec.FromStageName, rec.ToStageName,
		string(rec.Outcome), rec.OverrideReason, raw, rec.ActorID, rec.ActorName, rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func encodeCustomFields(fields map[string]string) ([]byte, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode custom fields: %w", err)
	}
	return raw, nil
}

func scanDeal(row pgx.CollectableRow) (domain.Deal, error) {
	var (
		d                            domain.Deal
		tier, compliance             string
		categoryScores, customFields []byte
	)
	if err := row.Scan(
		&d.ID, &d.TenantID, &d.LeadID, &d.Title, &d.PipelineID, &d.StageID, &d.AmountCents, &d.Currency,
		&d.Inputs.Source, &d.Inputs.EconomicUnits, &d.Inputs.UsageVolume, &d.Inputs.Urgency, &d.Inputs.TriggerEvent,
		&d.Inputs.PrimaryMotivation, &d.Inputs.DecisionRole, &d.Inputs.DecisionProcessClarity,
		&d.Score, &tier, &categoryScores, &d.ForecastProbability,
		&d.Spiced.Situation, &d.Spiced.Pain, &d.Spiced.Impact, &d.Spiced.CriticalEvent,
		&d.Spiced.Economic, &d.Spiced.Decision, &customFields, &compliance,
		&d.LastActivityAt, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return domain.Deal{}, err
	}
	d.Tier = scoring.Tier(tier)
	d.Compliance = blueprint.Compliance(compliance)

	d.CategoryScores = map[scoring.Category]int{}
	if len(categoryScores) > 0 {
		if err := json.Unmarshal(categoryScores, &d.CategoryScores); err != nil {
			return domain.Deal{}, fmt.Errorf("decode category scores: %w", err)
		}
	}
	d.CustomFields = map[string]string{}
	if len(customFields) > 0 {
		if err := json.Unmarshal(customFields, &d.CustomFields); err != nil {
			return domain.Deal{}, fmt.Errorf("decode custom fields: %w", err)
		}
	}
	return d, nil
}

func scanRecord(row pgx.CollectableRow) (blueprint.Record, error) {
	var (
		rec     blueprint.Record
		outcome string
		missing []byte
	)
	if err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.DealID, &rec.FromStageID, &rec.ToStageID, &rec.FromStageName,
		&rec.ToStageName, &outcome, &rec.OverrideReason, &missing, &rec.ActorID, &rec.ActorName, &rec.CreatedAt,
	); err != nil {
		return blueprint.Record{}, err
	}
	rec.Outcome = blueprint.Outcome(outcome)
	rec.MissingRequirements = []string{}
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &rec.MissingRequirements); err != nil {
			return blueprint.Record{}, fmt.Errorf("decode missing requirements: %w", err)
		}
	}
	return rec, nil
}
