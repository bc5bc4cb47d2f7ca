package transport

import (
	"time"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/deals/domain"
	"sales_pipeline_backend/internal/deals/service"
	"sales_pipeline_backend/internal/scoring"
	scoringtransport "sales_pipeline_backend/internal/scoring/transport"

	"github.com/google/uuid"
)

// OverrideRequest justifies bypassing unmet requirements.
type OverrideRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// MoveStageRequest is the body of POST /deals/:id/stage.
type MoveStageRequest struct {
	TargetStageID uuid.UUID        `json:"targetStageId" validate:"required"`
	Override      *OverrideRequest `json:"override"`
}

// SpicedRequest patches SPICED slots.
type SpicedRequest struct {
	Situation     *string `json:"situation" validate:"omitnil,max=2000"`
	Pain          *string `json:"pain" validate:"omitnil,max=2000"`
	Impact        *string `json:"impact" validate:"omitnil,max=2000"`
	CriticalEvent *string `json:"criticalEvent" validate:"omitnil,max=2000"`
	Economic      *string `json:"economic" validate:"omitnil,max=2000"`
	Decision      *string `json:"decision" validate:"omitnil,max=2000"`
}

// UpdateDealRequest is the body of PATCH /deals/:id.
type UpdateDealRequest struct {
	Title        *string                 `json:"title" validate:"omitnil,min=1,max=200"`
	AmountCents  *int64                  `json:"amountCents" validate:"omitnil,min=0"`
	Currency     *string                 `json:"currency" validate:"omitnil,len=3,alpha"`
	Spiced       *SpicedRequest          `json:"spiced"`
	CustomFields map[string]string       `json:"customFields" validate:"omitempty,max=50,dive,keys,min=1,max=100,endkeys,max=1000"`
	Scoring      *scoringtransport.Inputs `json:"scoring"`
}

// ToParams converts the request into service parameters.
func (r UpdateDealRequest) ToParams() service.UpdateParams {
	p := service.UpdateParams{
		Title:        r.Title,
		AmountCents:  r.AmountCents,
		Currency:     r.Currency,
		CustomFields: r.CustomFields,
	}
	if r.Spiced != nil {
		p.Spiced = domain.SpicedPatch{
			Situation:     r.Spiced.Situation,
			Pain:          r.Spiced.Pain,
			Impact:        r.Spiced.Impact,
			CriticalEvent: r.Spiced.CriticalEvent,
			Economic:      r.Spiced.Economic,
			Decision:      r.Spiced.Decision,
		}
	}
	if r.Scoring != nil {
		p.Inputs = r.Scoring.ToInputs()
	}
	return p
}

// ListDealsRequest holds the query parameters of GET /deals.
type ListDealsRequest struct {
	PipelineID string `form:"pipelineId" validate:"omitempty,uuid"`
	StageID    string `form:"stageId" validate:"omitempty,uuid"`
	Tier       string `form:"tier" validate:"omitempty,oneof=A B C D"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// ToParams converts the query into service parameters.
func (r ListDealsRequest) ToParams() service.ListParams {
	p := service.ListParams{Page: r.Page, PageSize: r.PageSize}
	if id, err := uuid.Parse(r.PipelineID); err == nil {
		p.PipelineID = &id
	}
	if id, err := uuid.Parse(r.StageID); err == nil {
		p.StageID = &id
	}
	if r.Tier != "" {
		tier := scoring.Tier(r.Tier)
		p.Tier = &tier
	}
	return p
}

// DealResponse renders a deal.
type DealResponse struct {
	ID                  uuid.UUID                `json:"id"`
	LeadID              uuid.UUID                `json:"leadId"`
	Title               string                   `json:"title"`
	PipelineID          uuid.UUID                `json:"pipelineId"`
	StageID             uuid.UUID                `json:"stageId"`
	AmountCents         *int64                   `json:"amountCents"`
	Currency            string                   `json:"currency"`
	Scoring             scoringtransport.Inputs  `json:"scoring"`
	Score               int                      `json:"score"`
	Tier                scoring.Tier             `json:"tier"`
	CategoryScores      map[scoring.Category]int `json:"categoryScores"`
	ForecastProbability float64                  `json:"forecastProbability"`
	Spiced              blueprint.Spiced         `json:"spiced"`
	CustomFields        map[string]string        `json:"customFields"`
	BlueprintCompliance blueprint.Compliance     `json:"blueprintCompliance"`
	SLALevel            string                   `json:"slaLevel,omitempty"`
	LastActivityAt      *time.Time               `json:"lastActivityAt"`
	Version             int                      `json:"version"`
	CreatedAt           time.Time                `json:"createdAt"`
	UpdatedAt           time.Time                `json:"updatedAt"`
}

// NewDealResponse maps a domain deal.
func NewDealResponse(d domain.Deal) DealResponse {
	return DealResponse{
		ID:                  d.ID,
		LeadID:              d.LeadID,
		Title:               d.Title,
		PipelineID:          d.PipelineID,
		StageID:             d.StageID,
		AmountCents:         d.AmountCents,
		Currency:            d.Currency,
		Scoring:             scoringtransport.NewInputs(d.Inputs),
		Score:               d.Score,
		Tier:                d.Tier,
		CategoryScores:      d.CategoryScores,
		ForecastProbability: d.ForecastProbability,
		Spiced:              d.Spiced,
		CustomFields:        d.CustomFields,
		BlueprintCompliance: d.Compliance,
		LastActivityAt:      d.LastActivityAt,
		Version:             d.Version,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

// DealListResponse is one page of deals.
type DealListResponse struct {
	Items      []DealResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

// NewDealListResponse maps a service page.
func NewDealListResponse(r service.ListResult) DealListResponse {
	items := make([]DealResponse, 0, len(r.Items))
	for _, d := range r.Items {
		items = append(items, NewDealResponse(d))
	}
	return DealListResponse{
		Items:      items,
		Total:      r.Total,
		Page:       r.Page,
		PageSize:   r.PageSize,
		TotalPages: r.TotalPages,
	}
}

// MoveStageResponse reports the outcome of a move. A denial is a normal
// response carrying the unmet requirements.
type MoveStageResponse struct {
	Outcome             blueprint.Outcome   `json:"outcome"`
	MissingRequirements []string            `json:"missingRequirements"`
	Details             []blueprint.Failure `json:"details"`
	Deal                DealResponse        `json:"deal"`
}

// NewMoveStageResponse maps a move result.
func NewMoveStageResponse(r service.MoveResult) MoveStageResponse {
	details := r.Decision.Failures
	if details == nil {
		details = []blueprint.Failure{}
	}
	return MoveStageResponse{
		Outcome:             r.Decision.Outcome,
		MissingRequirements: r.Decision.MissingRequirements(),
		Details:             details,
		Deal:                NewDealResponse(r.Deal),
	}
}
