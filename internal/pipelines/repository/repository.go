package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/pipelines/domain"
	"sales_pipeline_backend/platform/apperr"
	"sales_pipeline_backend/platform/db"
)

const (
	pipelineNotFoundMessage = "pipeline not found"
	stageNotFoundMessage    = "stage not found"
)

// Repo implements Repository on PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new pipelines repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const pipelineColumns = `id, organization_id, name, is_default, created_at, updated_at`

const stageColumns = `id, pipeline_id, name, order_index, probability, color, kind, requirements`

func (r *Repo) ListPipelines(ctx context.Context, tenantID uuid.UUID) ([]domain.Pipeline, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pipelineColumns+`
		FROM pipelines
		WHERE organization_id = $1
		ORDER BY is_default DESC, name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	pipelines, err := pgx.CollectRows(rows, scanPipeline)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}

	for i := range pipelines {
		stages, err := r.listStages(ctx, pipelines[i].ID)
		if err != nil {
			return nil, err
		}
		pipelines[i].Stages = stages
	}
	return pipelines, nil
}

func (r *Repo) GetPipeline(ctx context.Context, tenantID, pipelineID uuid.UUID) (domain.Pipeline, error) {
	row, err := r.pool.Query(ctx, `
		SELECT `+pipelineColumns+`
		FROM pipelines
		WHERE id = $1 AND organization_id = $2`, pipelineID, tenantID)
	if err != nil {
		return domain.Pipeline{}, fmt.Errorf("get pipeline: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(row, scanPipeline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pipeline{}, apperr.NotFound(pipelineNotFoundMessage)
		}
		return domain.Pipeline{}, fmt.Errorf("get pipeline: %w", err)
	}

	if p.Stages, err = r.listStages(ctx, p.ID); err != nil {
		return domain.Pipeline{}, err
	}
	return p, nil
}

func (r *Repo) GetDefaultPipeline(ctx context.Context, tenantID uuid.UUID) (domain.Pipeline, bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT id FROM pipelines WHERE organization_id = $1 AND is_default`, tenantID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pipeline{}, false, nil
		}
		return domain.Pipeline{}, false, fmt.Errorf("get default pipeline: %w", err)
	}
	p, err := r.GetPipeline(ctx, tenantID, id)
	if err != nil {
		return domain.Pipeline{}, false, err
	}
	return p, true, nil
}

func (r *Repo) CreatePipeline(ctx context.Context, p domain.Pipeline) (domain.Pipeline, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Pipeline{}, fmt.Errorf("begin create pipeline: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, `
		INSERT INTO pipelines (organization_id, name, is_default)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		p.TenantID, p.Name, p.IsDefault,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == db.UniqueViolation {
			return domain.Pipeline{}, apperr.Conflict("a pipeline with this name or default flag already exists")
		}
		return domain.Pipeline{}, fmt.Errorf("insert pipeline: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range p.Stages {
		reqs, err := encodeRequirements(p.Stages[i].Requirements)
		if err != nil {
			return domain.Pipeline{}, err
		}
		p.Stages[i].PipelineID = p.ID
		batch.Queue(`
			INSERT INTO pipeline_stages (pipeline_id, name, order_index, probability, color, kind, requirements)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			p.ID, p.Stages[i].Name, p.Stages[i].OrderIndex, p.Stages[i].Probability,
			p.Stages[i].Color, string(p.Stages[i].Kind), reqs,
		)
	}
	results := tx.SendBatch(ctx, batch)
	for i := range p.Stages {
		if err := results.QueryRow().Scan(&p.Stages[i].ID); err != nil {
			_ = results.Close()
			return domain.Pipeline{}, fmt.Errorf("insert stage %q: %w", p.Stages[i].Name, err)
		}
	}
	if err := results.Close(); err != nil {
		return domain.Pipeline{}, fmt.Errorf("insert stages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Pipeline{}, fmt.Errorf("commit create pipeline: %w", err)
	}
	domain.SortStages(p.Stages)
	return p, nil
}

func (r *Repo) GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (domain.Stage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.pipeline_id, s.name, s.order_index, s.probability, s.color, s.kind, s.requirements
		FROM pipeline_stages s
		JOIN pipelines p ON p.id = s.pipeline_id
		WHERE s.id = $1 AND p.organization_id = $2`, stageID, tenantID)
	if err != nil {
		return domain.Stage{}, fmt.Errorf("get stage: %w", err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanStage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stage{}, apperr.NotFound(stageNotFoundMessage)
		}
		return domain.Stage{}, fmt.Errorf("get stage: %w", err)
	}
	return s, nil
}

func (r *Repo) UpdateStageRequirements(ctx context.Context, tenantID, pipelineID, stageID uuid.UUID, reqs []blueprint.Requirement) (domain.Stage, error) {
	raw, err := encodeRequirements(reqs)
	if err != nil {
		return domain.Stage{}, err
	}

	rows, err := r.pool.Query(ctx, `
		UPDATE pipeline_stages s
		SET requirements = $4
		FROM pipelines p
		WHERE s.id = $1 AND s.pipeline_id = $2 AND p.id = s.pipeline_id AND p.organization_id = $3
		RETURNING s.id, s.pipeline_id, s.name, s.order_index, s.probability, s.color, s.kind, s.requirements`,
		stageID, pipelineID, tenantID, raw)
	if err != nil {
		return domain.Stage{}, fmt.Errorf("update stage requirements: %w", err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanStage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stage{}, apperr.NotFound(stageNotFoundMessage)
		}
		return domain.Stage{}, fmt.Errorf("update stage requirements: %w", err)
	}
	return s, nil
}

func (r *Repo) ListTenants(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT organization_id FROM pipelines
		UNION
		SELECT organization_id FROM leads
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	tenants, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

func (r *Repo) listStages(ctx context.Context, pipelineID uuid.UUID) ([]domain.Stage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+stageColumns+`
		FROM pipeline_stages
		WHERE pipeline_id = $1
		ORDER BY order_index`, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	stages, err := pgx.CollectRows(rows, scanStage)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	return stages, nil
}

func scanPipeline(row pgx.CollectableRow) (domain.Pipeline, error) {
	var p domain.Pipeline
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanStage(row pgx.CollectableRow) (domain.Stage, error) {
	var (
		s    domain.Stage
		kind string
		reqs []byte
	)
	if err := row.Scan(&s.ID, &s.PipelineID, &s.Name, &s.OrderIndex, &s.Probability, &s.Color, &kind, &reqs); err != nil {
		return domain.Stage{}, err
	}
	s.Kind = blueprint.StageKind(kind)
	if len(reqs) > 0 {
		if err := json.Unmarshal(reqs, &s.Requirements); err != nil {
			return domain.Stage{}, fmt.Errorf("decode stage requirements: %w", err)
		}
	}
	return s, nil
}

func encodeRequirements(reqs []blueprint.Requirement) ([]byte, error) {
	if reqs == nil {
		reqs = []blueprint.Requirement{}
	}
	raw, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("encode stage requirements: %w", err)
	}
	return raw, nil
}
