package transport

import (
	"time"

	"sales_pipeline_backend/internal/leads/domain"
	"sales_pipeline_backend/internal/leads/ports"
	"sales_pipeline_backend/internal/leads/service"
	"sales_pipeline_backend/internal/scoring"
	scoringtransport "sales_pipeline_backend/internal/scoring/transport"

	"github.com/google/uuid"
)

// CreateLeadRequest is the body of POST /leads.
type CreateLeadRequest struct {
	FirstName string                  `json:"firstName" validate:"max=100"`
	LastName  string                  `json:"lastName" validate:"max=100"`
	Email     string                  `json:"email" validate:"omitempty,email,max=254"`
	Phone     string                  `json:"phone" validate:"max=50"`
	Company   string                  `json:"company" validate:"max=200"`
	Scoring   scoringtransport.Inputs `json:"scoring"`
}

// ToParams converts the request into service parameters.
func (r CreateLeadRequest) ToParams() service.CreateParams {
	return service.CreateParams{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
		Company:   r.Company,
		Inputs:    r.Scoring.ToInputs(),
	}
}

// UpdateLeadRequest is the body of PATCH /leads/:id.
type UpdateLeadRequest struct {
	FirstName *string                  `json:"firstName" validate:"omitnil,max=100"`
	LastName  *string                  `json:"lastName" validate:"omitnil,max=100"`
	Email     *string                  `json:"email" validate:"omitempty,email,max=254"`
	Phone     *string                  `json:"phone" validate:"omitnil,max=50"`
	Company   *string                  `json:"company" validate:"omitnil,max=200"`
	Scoring   *scoringtransport.Inputs `json:"scoring"`
}

// ToParams converts the request into service parameters.
func (r UpdateLeadRequest) ToParams() service.UpdateParams {
	p := service.UpdateParams{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
		Company:   r.Company,
	}
	if r.Scoring != nil {
		p.Inputs = r.Scoring.ToInputs()
	}
	return p
}

// ChangeStatusRequest is the body of POST /leads/:id/status.
type ChangeStatusRequest struct {
	Status domain.Status `json:"status" validate:"required,oneof=new working info_collected disqualified unresponsive"`
}

// ListLeadsRequest holds the query parameters of GET /leads.
type ListLeadsRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=new working info_collected qualified disqualified unresponsive"`
	Tier     string `form:"tier" validate:"omitempty,oneof=A B C D"`
	Search   string `form:"search" validate:"max=100"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// ToParams converts the query into service parameters.
func (r ListLeadsRequest) ToParams() service.ListParams {
	p := service.ListParams{Search: r.Search, Page: r.Page, PageSize: r.PageSize}
	if r.Status != "" {
		status := domain.Status(r.Status)
		p.Status = &status
	}
	if r.Tier != "" {
		tier := scoring.Tier(r.Tier)
		p.Tier = &tier
	}
	return p
}

// LeadResponse renders a lead.
type LeadResponse struct {
	ID              uuid.UUID                `json:"id"`
	FirstName       string                   `json:"firstName"`
	LastName        string                   `json:"lastName"`
	Email           string                   `json:"email"`
	Phone           string                   `json:"phone"`
	Company         string                   `json:"company"`
	Scoring         scoringtransport.Inputs  `json:"scoring"`
	Score           int                      `json:"score"`
	Tier            scoring.Tier             `json:"tier"`
	CategoryScores  map[scoring.Category]int `json:"categoryScores"`
	Status          domain.Status            `json:"status"`
	QualifiedDealID *uuid.UUID               `json:"qualifiedDealId"`
	SLALevel        string                   `json:"slaLevel,omitempty"`
	LastActivityAt  *time.Time               `json:"lastActivityAt"`
	Version         int                      `json:"version"`
	CreatedAt       time.Time                `json:"createdAt"`
	UpdatedAt       time.Time                `json:"updatedAt"`
}

// NewLeadResponse maps a domain lead.
func NewLeadResponse(l domain.Lead) LeadResponse {
	return LeadResponse{
		ID:              l.ID,
		FirstName:       l.FirstName,
		LastName:        l.LastName,
		Email:           l.Email,
		Phone:           l.Phone,
		Company:         l.Company,
		Scoring:         scoringtransport.NewInputs(l.Inputs),
		Score:           l.Score,
		Tier:            l.Tier,
		CategoryScores:  l.CategoryScores,
		Status:          l.Status,
		QualifiedDealID: l.QualifiedDealID,
		LastActivityAt:  l.LastActivityAt,
		Version:         l.Version,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

// LeadListResponse is one page of leads.
type LeadListResponse struct {
	Items      []LeadResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

// NewLeadListResponse maps a service page.
func NewLeadListResponse(r service.ListResult) LeadListResponse {
	items := make([]LeadResponse, 0, len(r.Items))
	for _, l := range r.Items {
		items = append(items, NewLeadResponse(l))
	}
	return LeadListResponse{
		Items:      items,
		Total:      r.Total,
		Page:       r.Page,
		PageSize:   r.PageSize,
		TotalPages: r.TotalPages,
	}
}

// QualifyResponse identifies the deal opened by POST /leads/:id/qualify.
type QualifyResponse struct {
	DealID    uuid.UUID `json:"dealId"`
	StageID   uuid.UUID `json:"stageId"`
	StageName string    `json:"stageName"`
}

// NewQualifyResponse maps a qualification result.
func NewQualifyResponse(d ports.QualifiedDeal) QualifyResponse {
	return QualifyResponse{DealID: d.DealID, StageID: d.StageID, StageName: d.StageName}
}
