// Package service implements deal use cases: stage moves gated by the
// blueprint validator, edits that keep score, forecast and compliance in
// step with the deal's data, and the audit trail.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/deals/domain"
	"sales_pipeline_backend/internal/deals/ports"
	"sales_pipeline_backend/internal/deals/repository"
	"sales_pipeline_backend/internal/events"
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/platform/apperr"
	"sales_pipeline_backend/platform/db"
	"sales_pipeline_backend/platform/logger"
	"sales_pipeline_backend/platform/sanitize"
)

const (
	maxWriteAttempts = 3
	defaultCurrency  = "USD"
	defaultPageSize  = 20
	maxPageSize      = 100
)

var errConcurrentUpdate = apperr.Conflict("deal was modified concurrently, please retry")

// MoveParams describes a stage move request.
type MoveParams struct {
	TargetStageID uuid.UUID
	Override      *blueprint.Override
	Actor         blueprint.Actor
}

// MoveResult is the committed outcome of a stage move. Deal is the stored
// state after the attempt; it is unchanged for denied moves.
type MoveResult struct {
	Deal     domain.Deal
	Decision blueprint.Decision
}

// UpdateParams carries a partial deal edit. Nil fields are left unchanged;
// CustomFields entries with blank values are removed.
type UpdateParams struct {
	Title        *string
	AmountCents  *int64
	Currency     *string
	Spiced       domain.SpicedPatch
	CustomFields map[string]string
	Inputs       scoring.Inputs
}

// ListParams filters and pages a deal listing.
type ListParams struct {
	PipelineID *uuid.UUID
	StageID    *uuid.UUID
	Tier       *scoring.Tier
	Page       int
	PageSize   int
}

// ListResult is one page of deals.
type ListResult struct {
	Items      []domain.Deal
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// NewDealParams describes the deal created when a lead is qualified.
type NewDealParams struct {
	TenantID    uuid.UUID
	LeadID      uuid.UUID
	LeadVersion int
	Title       string
	Inputs      scoring.Inputs
}

// Service orchestrates deal reads and writes.
type Service struct {
	repo      repository.Repository
	stages    ports.StageReader
	engine    *scoring.Engine
	validator *blueprint.Validator
	bus       events.Bus
	sla       ports.ActivityClassifier
	log       *logger.Logger
	now       func() time.Time
}

// New creates a new deals service.
func New(repo repository.Repository, stages ports.StageReader, engine *scoring.Engine, validator *blueprint.Validator, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		stages:    stages,
		engine:    engine,
		validator: validator,
		bus:       bus,
		log:       log,
		now:       time.Now,
	}
}

// SetActivityClassifier wires the SLA classifier used by detail responses.
func (s *Service) SetActivityClassifier(c ports.ActivityClassifier) {
	s.sla = c
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Get returns one deal.
func (s *Service) Get(ctx context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error) {
	return s.repo.Get(ctx, tenantID, dealID)
}

// SLALevel classifies the deal against the tenant's SLA policy. Classifier
// failures are logged and yield an empty level.
func (s *Service) SLALevel(ctx context.Context, d domain.Deal) string {
	if s.sla == nil {
		return ""
	}
	level, err := s.sla.Level(ctx, d.TenantID, d.ID, d.Tier, d.LastActivityAt)
	if err != nil {
		s.log.WithContext(ctx).Warn("sla classification failed",
			slog.String("deal_id", d.ID.String()),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return level
}

// List returns one page of the tenant's deals.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, params ListParams) (ListResult, error) {
	page := max(params.Page, 1)
	size := params.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	items, total, err := s.repo.List(ctx, repository.ListParams{
		TenantID:   tenantID,
		PipelineID: params.PipelineID,
		StageID:    params.StageID,
		Tier:       params.Tier,
		Offset:     (page - 1) * size,
		Limit:      size,
	})
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// MoveStage attempts to move a deal into another stage of its pipeline.
// Every attempt other than a same-stage no-op is committed to the audit
// trail, denied ones included. A concurrent write between read and commit
// causes the attempt to be re-read and re-validated.
func (s *Service) MoveStage(ctx context.Context, tenantID, dealID uuid.UUID, params MoveParams) (MoveResult, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		deal, err := s.repo.Get(ctx, tenantID, dealID)
		if err != nil {
			return MoveResult{}, err
		}
		from, err := s.stages.GetStage(ctx, tenantID, deal.StageID)
		if err != nil {
			return MoveResult{}, err
		}
		to, err := s.stages.GetStage(ctx, tenantID, params.TargetStageID)
		if err != nil {
			return MoveResult{}, err
		}
		if to.PipelineID != deal.PipelineID {
			return MoveResult{}, apperr.Validation("target stage belongs to a different pipeline")
		}

		decision := s.validator.Attempt(ctx, blueprint.Transition{
			Deal:     deal.Snapshot(),
			From:     from.Stage,
			To:       to.Stage,
			Override: params.Override,
			Actor:    params.Actor,
		})
		if decision.NoOp {
			return MoveResult{Deal: deal, Decision: decision}, nil
		}

		moved := decision.Outcome != blueprint.OutcomeDenied
		next := deal
		if moved {
			now := s.now().UTC()
			next.StageID = to.ID
			next.Compliance = decision.Compliance
			next.ForecastProbability = domain.Forecast(to.Stage, deal.Tier)
			next.LastActivityAt = &now
		}

		saved, err := s.repo.CommitTransition(ctx, next, deal.Version, *decision.Record, moved)
		if errors.Is(err, db.ErrStaleVersion) {
			s.log.WithContext(ctx).Debug("stale deal on stage move, retrying",
				slog.String("deal_id", dealID.String()),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return MoveResult{}, err
		}

		s.log.WithContext(ctx).TransitionAttempt(dealID.String(), from.Name, to.Name, string(decision.Outcome), len(decision.Failures))
		s.bus.Publish(ctx, events.StageTransitionAttempted{
			BaseEvent:   events.NewBaseEvent(),
			RecordID:    decision.Record.ID,
			DealID:      dealID,
			TenantID:    tenantID,
			FromStageID: from.ID,
			ToStageID:   to.ID,
			Outcome:     string(decision.Outcome),
			ActorID:     params.Actor.ID,
		})
		return MoveResult{Deal: saved, Decision: decision}, nil
	}
	return MoveResult{}, errConcurrentUpdate
}

// Update applies an edit, recomputes score and forecast, and re-evaluates
// the current stage's requirements. An overridden deal stays overridden
// until its requirements are met.
func (s *Service) Update(ctx context.Context, tenantID, dealID uuid.UUID, params UpdateParams) (domain.Deal, error) {
	return s.update(ctx, tenantID, dealID, normalizeUpdate(params), true)
}

// update is the read-modify-write behind Update and Rescore. touch resets
// the activity clock.
func (s *Service) update(ctx context.Context, tenantID, dealID uuid.UUID, params UpdateParams, touch bool) (domain.Deal, error) {
	if params.AmountCents != nil && *params.AmountCents < 0 {
		return domain.Deal{}, apperr.Validation("amount cannot be negative")
	}

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		deal, err := s.repo.Get(ctx, tenantID, dealID)
		if err != nil {
			return domain.Deal{}, err
		}
		stage, err := s.stages.GetStage(ctx, tenantID, deal.StageID)
		if err != nil {
			return domain.Deal{}, err
		}

		next := deal
		if params.Title != nil {
			if *params.Title == "" {
				return domain.Deal{}, apperr.Validation("title cannot be blank")
			}
			next.Title = *params.Title
		}
		if params.AmountCents != nil {
			next.AmountCents = params.AmountCents
		}
		if params.Currency != nil {
			next.Currency = *params.Currency
		}
		next.Spiced = params.Spiced.Apply(deal.Spiced)
		next.CustomFields = domain.MergeCustomFields(deal.CustomFields, params.CustomFields)
		next.Inputs = deal.Inputs.Merge(params.Inputs)

		next.ApplyScore(s.engine.Score(next.Inputs))
		next.ForecastProbability = domain.Forecast(stage.Stage, next.Tier)
		next.Compliance = blueprint.ComplianceFor(deal.Compliance, s.validator.Evaluate(ctx, next.Snapshot(), stage.Stage))
		if touch {
			now := s.now().UTC()
			next.LastActivityAt = &now
		}

		saved, err := s.repo.Update(ctx, next, deal.Version)
		if errors.Is(err, db.ErrStaleVersion) {
			continue
		}
		return saved, err
	}
	return domain.Deal{}, errConcurrentUpdate
}

// Rescore recomputes score, forecast and compliance of every deal in an open
// stage after the scoring configuration changes, without touching the
// activity clock. It returns the number of deals written; deals that fail
// are logged and skipped, and the returned error counts them.
func (s *Service) Rescore(ctx context.Context, tenantID uuid.UUID) (int, error) {
	open, err := s.repo.ListActivity(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	n, failed := 0, 0
	for _, a := range open {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := s.update(ctx, tenantID, a.ID, UpdateParams{}, false); err != nil {
			failed++
			s.log.WithContext(ctx).Warn("deal rescore failed",
				slog.String("deal_id", a.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n++
	}
	if failed > 0 {
		return n, fmt.Errorf("rescore deals: %d of %d failed", failed, len(open))
	}
	return n, nil
}

// CheckCalculation reports the calculation collaborator's view of the deal.
func (s *Service) CheckCalculation(ctx context.Context, tenantID, dealID uuid.UUID) (blueprint.CalculationResult, error) {
	deal, err := s.repo.Get(ctx, tenantID, dealID)
	if err != nil {
		return blueprint.CalculationResult{}, err
	}
	return s.validator.CheckCalculation(ctx, deal.Snapshot()), nil
}

// ListTransitions returns the deal's audit trail, oldest first.
func (s *Service) ListTransitions(ctx context.Context, tenantID, dealID uuid.UUID) ([]blueprint.Record, error) {
	if _, err := s.repo.Get(ctx, tenantID, dealID); err != nil {
		return nil, err
	}
	return s.repo.ListTransitions(ctx, tenantID, dealID)
}

// RecordActivity marks a touch on the deal, resetting its SLA clock.
func (s *Service) RecordActivity(ctx context.Context, tenantID, dealID uuid.UUID) (domain.Deal, error) {
	return s.repo.TouchActivity(ctx, tenantID, dealID, s.now().UTC())
}

// ListActivity returns the open deals of a tenant for SLA classification.
func (s *Service) ListActivity(ctx context.Context, tenantID uuid.UUID) ([]domain.Activity, error) {
	return s.repo.ListActivity(ctx, tenantID)
}

// CreateFromLead opens a deal for a qualified lead in the first stage of the
// tenant's default pipeline. It returns db.ErrStaleVersion when the lead
// changed since params were read.
func (s *Service) CreateFromLead(ctx context.Context, params NewDealParams) (domain.Deal, ports.Stage, error) {
	stage, err := s.stages.InitialStage(ctx, params.TenantID)
	if err != nil {
		return domain.Deal{}, ports.Stage{}, err
	}

	now := s.now().UTC()
	d := domain.Deal{
		ID:             uuid.New(),
		TenantID:       params.TenantID,
		LeadID:         params.LeadID,
		Title:          params.Title,
		PipelineID:     stage.PipelineID,
		StageID:        stage.ID,
		Currency:       defaultCurrency,
		Inputs:         params.Inputs,
		CustomFields:   map[string]string{},
		LastActivityAt: &now,
	}
	d.ApplyScore(s.engine.Score(d.Inputs))
	d.ForecastProbability = domain.Forecast(stage.Stage, d.Tier)
	d.Compliance = blueprint.ComplianceFor(blueprint.ComplianceCompliant, s.validator.Evaluate(ctx, d.Snapshot(), stage.Stage))

	created, err := s.repo.CreateFromLead(ctx, d, params.LeadVersion)
	if err != nil {
		return domain.Deal{}, ports.Stage{}, err
	}
	s.log.WithContext(ctx).Info("deal created from lead",
		slog.String("deal_id", created.ID.String()),
		slog.String("lead_id", params.LeadID.String()),
		slog.String("stage", stage.Name),
		slog.String("tier", string(created.Tier)),
	)
	return created, stage, nil
}

func normalizeUpdate(p UpdateParams) UpdateParams {
	p.Title = sanitize.TextPtr(p.Title)
	if p.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*p.Currency))
		p.Currency = &c
	}
	p.Spiced = domain.SpicedPatch{
		Situation:     sanitize.TextPtr(p.Spiced.Situation),
		Pain:          sanitize.TextPtr(p.Spiced.Pain),
		Impact:        sanitize.TextPtr(p.Spiced.Impact),
		CriticalEvent: sanitize.TextPtr(p.Spiced.CriticalEvent),
		Economic:      sanitize.TextPtr(p.Spiced.Economic),
		Decision:      sanitize.TextPtr(p.Spiced.Decision),
	}
	if len(p.CustomFields) > 0 {
		fields := make(map[string]string, len(p.CustomFields))
		for k, v := range p.CustomFields {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			fields[key] = sanitize.Text(v)
		}
		p.CustomFields = fields
	}
	p.Inputs.TriggerEvent = sanitize.TextPtr(p.Inputs.TriggerEvent)
	return p
}
