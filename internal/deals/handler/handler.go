package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/internal/deals/service"
	"sales_pipeline_backend/internal/deals/transport"
	"sales_pipeline_backend/platform/httpkit"
	"sales_pipeline_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid deal id"
)

// Handler handles HTTP requests for deals.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new deals handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the deal routes on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id", h.Update)
	rg.POST("/:id/stage", h.MoveStage)
	rg.GET("/:id/transitions", h.ListTransitions)
	rg.GET("/:id/calculation", h.CheckCalculation)
	rg.POST("/:id/activity", h.RecordActivity)
}

// List returns a page of deals.
// GET /api/v1/deals
func (h *Handler) List(c *gin.Context) {
	var req transport.ListDealsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	result, err := h.svc.List(c.Request.Context(), tenantID, req.ToParams())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDealListResponse(result))
}

// Get returns a deal with its current SLA level.
// GET /api/v1/deals/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	deal, err := h.svc.Get(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	resp := transport.NewDealResponse(deal)
	resp.SLALevel = h.svc.SLALevel(c.Request.Context(), deal)
	httpkit.OK(c, resp)
}

// Update edits SPICED slots, amount, custom fields or scoring inputs.
// PATCH /api/v1/deals/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.UpdateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	deal, err := h.svc.Update(c.Request.Context(), tenantID, id, req.ToParams())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDealResponse(deal))
}

// MoveStage attempts a stage transition. Denials are returned with status
// 200 and the unmet requirements.
// POST /api/v1/deals/:id/stage
func (h *Handler) MoveStage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.MoveStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	identity, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	params := service.MoveParams{
		TargetStageID: req.TargetStageID,
		Actor: blueprint.Actor{
			ID:    identity.UserID(),
			Name:  identity.Name(),
			Admin: identity.HasRole(httpkit.RoleAdmin),
		},
	}
	if req.Override != nil {
		params.Override = &blueprint.Override{Reason: req.Override.Reason}
	}

	result, err := h.svc.MoveStage(c.Request.Context(), tenantID, id, params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewMoveStageResponse(result))
}

// ListTransitions returns the deal's audit trail.
// GET /api/v1/deals/:id/transitions
func (h *Handler) ListTransitions(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	records, err := h.svc.ListTransitions(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	if records == nil {
		records = []blueprint.Record{}
	}
	httpkit.OK(c, gin.H{"items": records})
}

// CheckCalculation reports whether the deal's calculation is complete.
// GET /api/v1/deals/:id/calculation
func (h *Handler) CheckCalculation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	result, err := h.svc.CheckCalculation(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RecordActivity logs a touch on the deal.
// POST /api/v1/deals/:id/activity
func (h *Handler) RecordActivity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	deal, err := h.svc.RecordActivity(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDealResponse(deal))
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}
