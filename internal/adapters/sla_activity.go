package adapters

import (
	"context"
	"time"

	"github.com/google/uuid"

	dealdomain "sales_pipeline_backend/internal/deals/domain"
	dealports "sales_pipeline_backend/internal/deals/ports"
	leaddomain "sales_pipeline_backend/internal/leads/domain"
	leadports "sales_pipeline_backend/internal/leads/ports"
	"sales_pipeline_backend/internal/scoring"
	sladomain "sales_pipeline_backend/internal/sla/domain"
	slaservice "sales_pipeline_backend/internal/sla/service"
)

type leadActivityLister interface {
	ListActivity(ctx context.Context, tenantID uuid.UUID) ([]leaddomain.Activity, error)
}

type dealActivityLister interface {
	ListActivity(ctx context.Context, tenantID uuid.UUID) ([]dealdomain.Activity, error)
}

// LeadActivitySource feeds open leads to the SLA service.
type LeadActivitySource struct {
	leads leadActivityLister
}

// NewLeadActivitySource wraps the leads service.
func NewLeadActivitySource(leads leadActivityLister) *LeadActivitySource {
	return &LeadActivitySource{leads: leads}
}

// ListActivity implements sla/service.ActivitySource.
func (a *LeadActivitySource) ListActivity(ctx context.Context, tenantID uuid.UUID) ([]sladomain.Entity, error) {
	items, err := a.leads.ListActivity(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]sladomain.Entity, 0, len(items))
	for _, l := range items {
		out = append(out, sladomain.Entity{ID: l.ID, Name: l.Name, Tier: l.Tier, LastActivityAt: l.LastActivityAt})
	}
	return out, nil
}

// DealActivitySource feeds deals in open stages to the SLA service.
type DealActivitySource struct {
	deals dealActivityLister
}

// NewDealActivitySource wraps the deals service.
func NewDealActivitySource(deals dealActivityLister) *DealActivitySource {
	return &DealActivitySource{deals: deals}
}

// ListActivity implements sla/service.ActivitySource.
func (a *DealActivitySource) ListActivity(ctx context.Context, tenantID uuid.UUID) ([]sladomain.Entity, error) {
	items, err := a.deals.ListActivity(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]sladomain.Entity, 0, len(items))
	for _, d := range items {
		out = append(out, sladomain.Entity{ID: d.ID, Name: d.Title, Tier: d.Tier, LastActivityAt: d.LastActivityAt})
	}
	return out, nil
}

type entityClassifier interface {
	Classify(ctx context.Context, tenantID uuid.UUID, entityType sladomain.EntityType, entity sladomain.Entity) (sladomain.Level, bool, error)
}

// SLAClassifier answers single-entity SLA lookups for one entity type. It
// implements the ActivityClassifier port of both leads and deals.
type SLAClassifier struct {
	sla        entityClassifier
	entityType sladomain.EntityType
}

// NewSLAClassifier binds the SLA service to an entity type.
func NewSLAClassifier(sla entityClassifier, entityType sladomain.EntityType) *SLAClassifier {
	return &SLAClassifier{sla: sla, entityType: entityType}
}

// Level returns the entity's SLA level, or "" when it has no activity.
func (a *SLAClassifier) Level(ctx context.Context, tenantID, id uuid.UUID, tier scoring.Tier, lastActivityAt *time.Time) (string, error) {
	level, ok, err := a.sla.Classify(ctx, tenantID, a.entityType, sladomain.Entity{
		ID:             id,
		Tier:           tier,
		LastActivityAt: lastActivityAt,
	})
	if err != nil || !ok {
		return "", err
	}
	return string(level), nil
}

var (
	_ slaservice.ActivitySource    = (*LeadActivitySource)(nil)
	_ slaservice.ActivitySource    = (*DealActivitySource)(nil)
	_ leadports.ActivityClassifier = (*SLAClassifier)(nil)
	_ dealports.ActivityClassifier = (*SLAClassifier)(nil)
)
