// Package service implements lead use cases: scoring, the status lifecycle
// and qualification into a deal.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/events"
	"sales_pipeline_backend/internal/leads/domain"
	"sales_pipeline_backend/internal/leads/ports"
	"sales_pipeline_backend/internal/leads/repository"
	"sales_pipeline_backend/internal/scoring"
	"sales_pipeline_backend/platform/apperr"
	"sales_pipeline_backend/platform/db"
	"sales_pipeline_backend/platform/logger"
	"sales_pipeline_backend/platform/phone"
	"sales_pipeline_backend/platform/sanitize"
)

const (
	maxWriteAttempts = 3
	defaultPageSize  = 20
	maxPageSize      = 100
)

var (
	errConcurrentUpdate = apperr.Conflict("lead was modified concurrently, please retry")
	errReadOnly         = apperr.Conflict("a qualified lead is read-only")
	errNoIdentity       = apperr.Validation("lead needs a name, company or email")
)

// CreateParams describes a new lead.
type CreateParams struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Company   string
	Inputs    scoring.Inputs
}

// UpdateParams carries a partial lead edit. Nil fields are left unchanged.
type UpdateParams struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	Company   *string
	Inputs    scoring.Inputs
}

// ListParams filters and pages a lead listing.
type ListParams struct {
	Status   *domain.Status
	Tier     *scoring.Tier
	Search   string
	Page     int
	PageSize int
}

// ListResult is one page of leads.
type ListResult struct {
	Items      []domain.Lead
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// Service orchestrates lead reads and writes.
type Service struct {
	repo        repository.Repository
	engine      *scoring.Engine
	qualifier   ports.DealQualifier
	bus         events.Bus
	sla         ports.ActivityClassifier
	phoneRegion string
	log         *logger.Logger
	now         func() time.Time
}

// New creates a new leads service. phoneRegion is the region assumed for
// phone numbers entered without a country prefix.
func New(repo repository.Repository, engine *scoring.Engine, qualifier ports.DealQualifier, bus events.Bus, phoneRegion string, log *logger.Logger) *Service {
	return &Service{
		repo:        repo,
		engine:      engine,
		qualifier:   qualifier,
		bus:         bus,
		phoneRegion: phoneRegion,
		log:         log,
		now:         time.Now,
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

// ScoreLead scores inputs without persisting anything.
func (s *Service) ScoreLead(in scoring.Inputs) scoring.Result {
	return s.engine.Score(in)
}

// Create stores a new lead in status new with a freshly computed score.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, params CreateParams) (domain.Lead, error) {
	now := s.now().UTC()
	l := domain.Lead{
		TenantID:       tenantID,
		FirstName:      sanitize.Text(params.FirstName),
		LastName:       sanitize.Text(params.LastName),
		Email:          normalizeEmail(params.Email),
		Phone:          s.normalizePhone(params.Phone),
		Company:        sanitize.Text(params.Company),
		Inputs:         sanitizeInputs(params.Inputs),
		Status:         domain.StatusNew,
		LastActivityAt: &now,
	}
	if !hasIdentity(l) {
		return domain.Lead{}, errNoIdentity
	}
	l.ApplyScore(s.engine.Score(l.Inputs))

	created, err := s.repo.Create(ctx, l)
	if err != nil {
		return domain.Lead{}, err
	}
	s.publishScored(ctx, created)
	return created, nil
}

// Get returns one lead.
func (s *Service) Get(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error) {
	return s.repo.Get(ctx, tenantID, leadID)
}

// SLALevel classifies the lead against the tenant's SLA policy. Terminal
// leads are not tracked and yield an empty level, as do classifier failures.
func (s *Service) SLALevel(ctx context.Context, l domain.Lead) string {
	if s.sla == nil || l.Status.Terminal() {
		return ""
	}
	level, err := s.sla.Level(ctx, l.TenantID, l.ID, l.Tier, l.LastActivityAt)
	if err != nil {
		s.log.WithContext(ctx).Warn("sla classification failed",
			slog.String("lead_id", l.ID.String()),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return level
}

// List returns one page of the tenant's leads, highest score first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, params ListParams) (ListResult, error) {
	page := max(params.Page, 1)
	size := params.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	items, total, err := s.repo.List(ctx, repository.ListParams{
		TenantID: tenantID,
		Status:   params.Status,
		Tier:     params.Tier,
		Search:   sanitize.Text(params.Search),
		Offset:   (page - 1) * size,
		Limit:    size,
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

// Update applies an edit and recomputes the score from the merged inputs.
func (s *Service) Update(ctx context.Context, tenantID, leadID uuid.UUID, params UpdateParams) (domain.Lead, error) {
	params = s.normalizeUpdate(params)
	return s.mutate(ctx, tenantID, leadID, true, func(l *domain.Lead) error {
		if l.Status == domain.StatusQualified {
			return errReadOnly
		}
		assign(&l.FirstName, params.FirstName)
		assign(&l.LastName, params.LastName)
		assign(&l.Email, params.Email)
		assign(&l.Phone, params.Phone)
		assign(&l.Company, params.Company)
		if !hasIdentity(*l) {
			return errNoIdentity
		}
		l.Inputs = l.Inputs.Merge(params.Inputs)
		return nil
	})
}

// ChangeStatus moves the lead through its lifecycle. Qualification has its
// own operation because it opens a deal. Setting the current status again
// is a no-op.
func (s *Service) ChangeStatus(ctx context.Context, tenantID, leadID uuid.UUID, to domain.Status) (domain.Lead, error) {
	if to == domain.StatusQualified {
		return domain.Lead{}, apperr.Validation("use the qualify operation to qualify a lead")
	}
	if !to.Valid() {
		return domain.Lead{}, apperr.Validation("unknown lead status")
	}

	current, err := s.repo.Get(ctx, tenantID, leadID)
	if err != nil {
		return domain.Lead{}, err
	}
	if current.Status == to {
		return current, nil
	}

	return s.mutate(ctx, tenantID, leadID, true, func(l *domain.Lead) error {
		if err := l.Status.CanTransition(to); err != nil {
			if l.Status.Terminal() {
				return apperr.Conflict(err.Error())
			}
			return apperr.Validation(err.Error())
		}
		l.Status = to
		return nil
	})
}

// RecordActivity marks a touch on the lead, resetting its SLA clock.
func (s *Service) RecordActivity(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error) {
	return s.repo.TouchActivity(ctx, tenantID, leadID, s.now().UTC())
}

// ListActivity returns the open leads of a tenant for SLA classification.
func (s *Service) ListActivity(ctx context.Context, tenantID uuid.UUID) ([]domain.Activity, error) {
	return s.repo.ListActivity(ctx, tenantID)
}

// Rescore recomputes the score of every open lead. It is used after the
// scoring configuration changes and returns the number of leads written.
// It leaves the activity clock untouched. Leads that fail are logged and
// skipped, and the returned error counts them.
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
		_, err := s.mutate(ctx, tenantID, a.ID, false, func(l *domain.Lead) error {
			if l.Status == domain.StatusQualified {
				return errReadOnly
			}
			return nil
		})
		if err != nil {
			failed++
			s.log.WithContext(ctx).Warn("lead rescore failed",
				slog.String("lead_id", a.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n++
	}
	if failed > 0 {
		return n, fmt.Errorf("rescore leads: %d of %d failed", failed, len(open))
	}
	return n, nil
}

// Qualify converts the lead into a deal in the first stage of the tenant's
// default pipeline. The deal insert and the lead status change commit
// together; a lead that is already qualified or disqualified is a conflict.
func (s *Service) Qualify(ctx context.Context, tenantID, leadID, actorID uuid.UUID) (ports.QualifiedDeal, error) {
	if s.qualifier == nil {
		return ports.QualifiedDeal{}, apperr.Unavailable("deal creation is not configured")
	}

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		l, err := s.repo.Get(ctx, tenantID, leadID)
		if err != nil {
			return ports.QualifiedDeal{}, err
		}
		switch l.Status {
		case domain.StatusQualified:
			return ports.QualifiedDeal{}, apperr.Conflict("lead is already qualified")
		case domain.StatusDisqualified:
			return ports.QualifiedDeal{}, apperr.Conflict("a disqualified lead cannot be qualified")
		}

		deal, err := s.qualifier.CreateDeal(ctx, ports.QualifyParams{
			TenantID:    tenantID,
			LeadID:      leadID,
			LeadVersion: l.Version,
			Title:       l.DisplayName(),
			Inputs:      l.Inputs,
		})
		if errors.Is(err, db.ErrStaleVersion) {
			continue
		}
		if err != nil {
			return ports.QualifiedDeal{}, err
		}

		s.log.WithContext(ctx).Info("lead qualified",
			slog.String("lead_id", leadID.String()),
			slog.String("deal_id", deal.DealID.String()),
			slog.String("stage", deal.StageName),
		)
		s.bus.Publish(ctx, events.LeadQualified{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			DealID:    deal.DealID,
			TenantID:  tenantID,
			StageID:   deal.StageID,
			ActorID:   actorID,
		})
		return deal, nil
	}
	return ports.QualifiedDeal{}, errConcurrentUpdate
}

// mutate runs a read-modify-write under the lead's version, rescoring before
// every write. touch resets the activity clock; user edits touch, a rescore
// does not.
func (s *Service) mutate(ctx context.Context, tenantID, leadID uuid.UUID, touch bool, apply func(*domain.Lead) error) (domain.Lead, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		current, err := s.repo.Get(ctx, tenantID, leadID)
		if err != nil {
			return domain.Lead{}, err
		}

		next := current
		if err := apply(&next); err != nil {
			return domain.Lead{}, err
		}
		next.ApplyScore(s.engine.Score(next.Inputs))
		if touch {
			now := s.now().UTC()
			next.LastActivityAt = &now
		}

		saved, err := s.repo.Update(ctx, next, current.Version)
		if errors.Is(err, db.ErrStaleVersion) {
			s.log.WithContext(ctx).Debug("stale lead, retrying",
				slog.String("lead_id", leadID.String()),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return domain.Lead{}, err
		}
		if saved.Score != current.Score || saved.Tier != current.Tier {
			s.publishScored(ctx, saved)
		}
		return saved, nil
	}
	return domain.Lead{}, errConcurrentUpdate
}

func (s *Service) publishScored(ctx context.Context, l domain.Lead) {
	s.bus.Publish(ctx, events.LeadScored{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    l.ID,
		TenantID:  l.TenantID,
		Score:     l.Score,
		Tier:      string(l.Tier),
	})
}

func (s *Service) normalizeUpdate(p UpdateParams) UpdateParams {
	p.FirstName = sanitize.TextPtr(p.FirstName)
	p.LastName = sanitize.TextPtr(p.LastName)
	p.Company = sanitize.TextPtr(p.Company)
	if p.Email != nil {
		e := normalizeEmail(*p.Email)
		p.Email = &e
	}
	if p.Phone != nil {
		n := s.normalizePhone(*p.Phone)
		p.Phone = &n
	}
	p.Inputs = sanitizeInputs(p.Inputs)
	return p
}

// normalizePhone keeps unparseable numbers as typed rather than rejecting them.
func (s *Service) normalizePhone(raw string) string {
	n, _ := phone.NormalizeE164(raw, s.phoneRegion)
	return n
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func sanitizeInputs(in scoring.Inputs) scoring.Inputs {
	in.TriggerEvent = sanitize.TextPtr(in.TriggerEvent)
	return in
}

func hasIdentity(l domain.Lead) bool {
	return l.FirstName != "" || l.LastName != "" || l.Company != "" || l.Email != ""
}

func assign(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
