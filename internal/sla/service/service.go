package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/events"
	"sales_pipeline_backend/internal/sla/domain"
	"sales_pipeline_backend/internal/sla/repository"
	"sales_pipeline_backend/platform/apperr"
	"sales_pipeline_backend/platform/logger"
)

// ActivitySource lists the open entities of one type for a tenant together
// with their last activity timestamps.
type ActivitySource interface {
	ListActivity(ctx context.Context, tenantID uuid.UUID) ([]domain.Entity, error)
}

// Service answers SLA queries and runs threshold sweeps.
type Service struct {
	policies repository.PolicyStore
	sources  map[domain.EntityType]ActivitySource
	dedup    Deduper
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// New creates the SLA service. dedup and bus may be nil when sweeps are not
// run by this process.
func New(policies repository.PolicyStore, dedup Deduper, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		policies: policies,
		sources:  make(map[domain.EntityType]ActivitySource),
		dedup:    dedup,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// SetSource registers the activity source for an entity type.
func (s *Service) SetSource(entityType domain.EntityType, src ActivitySource) {
	s.sources[entityType] = src
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Policy returns the tenant's stored policy or the built-in default.
func (s *Service) Policy(ctx context.Context, tenantID uuid.UUID, entityType domain.EntityType) (domain.Policy, error) {
	policy, found, err := s.policies.GetPolicy(ctx, tenantID, entityType)
	if err != nil {
		return domain.Policy{}, err
	}
	if !found {
		return domain.DefaultPolicy(entityType), nil
	}
	return policy, nil
}

// UpdatePolicy validates and stores a tenant policy.
func (s *Service) UpdatePolicy(ctx context.Context, tenantID uuid.UUID, policy domain.Policy) (domain.Policy, error) {
	if err := policy.Validate(); err != nil {
		return domain.Policy{}, apperr.Validation(err.Error())
	}
	if err := s.policies.UpsertPolicy(ctx, tenantID, policy); err != nil {
		return domain.Policy{}, err
	}
	s.log.WithContext(ctx).Info("sla policy updated",
		slog.String("entity_type", string(policy.EntityType)),
		slog.Float64("warning_hours", policy.WarningHours),
		slog.Float64("breach_hours", policy.BreachHours),
	)
	return policy, nil
}

// Status classifies every open entity of a type. When explicit is nil the
// tenant's policy applies.
func (s *Service) Status(ctx context.Context, tenantID uuid.UUID, entityType domain.EntityType, explicit *domain.Policy) (domain.Report, error) {
	policy, err := s.resolvePolicy(ctx, tenantID, entityType, explicit)
	if err != nil {
		return domain.Report{}, err
	}

	src, ok := s.sources[entityType]
	if !ok {
		return domain.Report{}, apperr.Internal(fmt.Sprintf("no activity source for %s", entityType))
	}
	entities, err := src.ListActivity(ctx, tenantID)
	if err != nil {
		return domain.Report{}, err
	}

	return domain.Status(ctx, entities, policy, s.now().UTC())
}

// Classify returns the level of a single entity under the tenant's policy.
// ok is false when the entity has no recorded activity.
func (s *Service) Classify(ctx context.Context, tenantID uuid.UUID, entityType domain.EntityType, entity domain.Entity) (domain.Level, bool, error) {
	policy, err := s.Policy(ctx, tenantID, entityType)
	if err != nil {
		return "", false, err
	}
	level, ok := domain.Classify(entity, policy, s.now().UTC())
	return level, ok, nil
}

// Sweep publishes a threshold event for every at-risk or breached entity not
// yet announced for its current activity timestamp. It returns the number of
// events published.
func (s *Service) Sweep(ctx context.Context, tenantID uuid.UUID, entityType domain.EntityType) (int, error) {
	if s.dedup == nil || s.bus == nil {
		return 0, apperr.Unavailable("sla sweep is not configured")
	}

	report, err := s.Status(ctx, tenantID, entityType, nil)
	if err != nil {
		return 0, err
	}

	published := 0
	announce := func(level domain.Level, items []domain.Item) error {
		for _, item := range items {
			first, err := s.dedup.MarkNotified(ctx, DedupKey{
				TenantID:       tenantID,
				EntityType:     entityType,
				EntityID:       item.ID,
				Level:          level,
				LastActivityAt: item.LastActivityAt,
			})
			if err != nil {
				return err
			}
			if !first {
				continue
			}
			s.bus.Publish(ctx, events.SLAThresholdCrossed{
				BaseEvent:          events.NewBaseEvent(),
				TenantID:           tenantID,
				EntityType:         string(entityType),
				EntityID:           item.ID,
				EntityName:         item.Name,
				Level:              string(level),
				Tier:               string(item.Tier),
				LastActivityAt:     item.LastActivityAt,
				HoursSinceActivity: item.HoursSinceActivity,
			})
			published++
		}
		return nil
	}

	if err := announce(domain.LevelBreached, report.BreachedItems); err != nil {
		return published, err
	}
	if err := announce(domain.LevelAtRisk, report.AtRiskItems); err != nil {
		return published, err
	}
	return published, nil
}

func (s *Service) resolvePolicy(ctx context.Context, tenantID uuid.UUID, entityType domain.EntityType, explicit *domain.Policy) (domain.Policy, error) {
	if explicit == nil {
		return s.Policy(ctx, tenantID, entityType)
	}
	p := *explicit
	p.EntityType = entityType
	if err := p.Validate(); err != nil {
		return domain.Policy{}, apperr.Validation(err.Error())
	}
	return p, nil
}
