package adapters

import (
	"context"

	dealdomain "sales_pipeline_backend/internal/deals/domain"
	dealports "sales_pipeline_backend/internal/deals/ports"
	dealservice "sales_pipeline_backend/internal/deals/service"
	leadports "sales_pipeline_backend/internal/leads/ports"
)

type dealCreator interface {
	CreateFromLead(ctx context.Context, params dealservice.NewDealParams) (dealdomain.Deal, dealports.Stage, error)
}

// DealQualifier lets the leads domain open deals without importing the
// deals packages. It implements leads/ports.DealQualifier.
type DealQualifier struct {
	deals dealCreator
}

// NewDealQualifier creates a qualifier backed by the deals service.
func NewDealQualifier(deals dealCreator) *DealQualifier {
	return &DealQualifier{deals: deals}
}

// CreateDeal opens the deal and marks the lead qualified in one transaction.
func (a *DealQualifier) CreateDeal(ctx context.Context, params leadports.QualifyParams) (leadports.QualifiedDeal, error) {
	deal, stage, err := a.deals.CreateFromLead(ctx, dealservice.NewDealParams{
		TenantID:    params.TenantID,
		LeadID:      params.LeadID,
		LeadVersion: params.LeadVersion,
		Title:       params.Title,
		Inputs:      params.Inputs,
	})
	if err != nil {
		return leadports.QualifiedDeal{}, err
	}
	return leadports.QualifiedDeal{
		DealID:    deal.ID,
		StageID:   stage.ID,
		StageName: stage.Name,
	}, nil
}

var _ leadports.DealQualifier = (*DealQualifier)(nil)
