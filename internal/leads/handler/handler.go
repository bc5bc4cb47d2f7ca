package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sales_pipeline_backend/internal/leads/service"
	"sales_pipeline_backend/internal/leads/transport"
	scoringtransport "sales_pipeline_backend/internal/scoring/transport"
	"sales_pipeline_backend/platform/httpkit"
	"sales_pipeline_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid lead id"
)

// Handler handles HTTP requests for leads.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new leads handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the lead routes on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/score", h.Score)
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id", h.Update)
	rg.POST("/:id/status", h.ChangeStatus)
	rg.POST("/:id/activity", h.RecordActivity)
	rg.POST("/:id/qualify", h.Qualify)
}

// Score computes a score without storing anything.
// POST /api/v1/leads/score
func (h *Handler) Score(c *gin.Context) {
	var req scoringtransport.Inputs
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}

	httpkit.OK(c, scoringtransport.NewScoreResponse(h.svc.ScoreLead(req.ToInputs())))
}

// Create stores a new lead.
// POST /api/v1/leads
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateLeadRequest
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

	lead, err := h.svc.Create(c.Request.Context(), tenantID, req.ToParams())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.NewLeadResponse(lead))
}

// List returns a page of leads.
// GET /api/v1/leads
func (h *Handler) List(c *gin.Context) {
	var req transport.ListLeadsRequest
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
	httpkit.OK(c, transport.NewLeadListResponse(result))
}

// Get returns a lead with its current SLA level.
// GET /api/v1/leads/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	resp := transport.NewLeadResponse(lead)
	resp.SLALevel = h.svc.SLALevel(c.Request.Context(), lead)
	httpkit.OK(c, resp)
}

// Update edits identity fields or scoring inputs.
// PATCH /api/v1/leads/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.UpdateLeadRequest
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

	lead, err := h.svc.Update(c.Request.Context(), tenantID, id, req.ToParams())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewLeadResponse(lead))
}

// ChangeStatus moves the lead through its lifecycle.
// POST /api/v1/leads/:id/status
func (h *Handler) ChangeStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.ChangeStatusRequest
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

	lead, err := h.svc.ChangeStatus(c.Request.Context(), tenantID, id, req.Status)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewLeadResponse(lead))
}

// RecordActivity logs a touch on the lead.
// POST /api/v1/leads/:id/activity
func (h *Handler) RecordActivity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	lead, err := h.svc.RecordActivity(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewLeadResponse(lead))
}

// Qualify converts the lead into a deal.
// POST /api/v1/leads/:id/qualify
func (h *Handler) Qualify(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	identity, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	deal, err := h.svc.Qualify(c.Request.Context(), tenantID, id, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.NewQualifyResponse(deal))
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}
