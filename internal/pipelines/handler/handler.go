package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sales_pipeline_backend/internal/pipelines/service"
	"sales_pipeline_backend/internal/pipelines/transport"
	"sales_pipeline_backend/platform/httpkit"
	"sales_pipeline_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid pipeline id"
	msgInvalidStageID   = "invalid stage id"
)

// Handler handles HTTP requests for pipelines.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new pipelines handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// List returns the tenant's pipelines.
// GET /api/v1/pipelines
func (h *Handler) List(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	pipelines, err := h.svc.List(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]transport.PipelineResponse, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, transport.NewPipelineResponse(p))
	}
	httpkit.OK(c, gin.H{"items": out})
}

// Get returns one pipeline.
// GET /api/v1/pipelines/:id
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	p, err := h.svc.Get(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewPipelineResponse(p))
}

// Create stores a new pipeline.
// POST /api/v1/admin/pipelines
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreatePipelineRequest
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

	p, err := h.svc.Create(c.Request.Context(), tenantID, service.CreateParams{
		Name:      req.Name,
		IsDefault: req.IsDefault,
		Stages:    req.ToStages(),
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.NewPipelineResponse(p))
}

// UpdateRequirements replaces a stage's requirement predicates.
// PUT /api/v1/admin/pipelines/:id/stages/:stageId/requirements
func (h *Handler) UpdateRequirements(c *gin.Context) {
	pipelineID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	stageID, err := uuid.Parse(c.Param("stageId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidStageID, nil)
		return
	}
	var req transport.UpdateRequirementsRequest
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

	stage, err := h.svc.UpdateRequirements(c.Request.Context(), tenantID, pipelineID, stageID, transport.ToRequirements(req.Requirements))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewStageResponse(stage))
}
