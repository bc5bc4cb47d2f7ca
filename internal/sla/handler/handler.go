package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sales_pipeline_backend/internal/sla/domain"
	"sales_pipeline_backend/internal/sla/service"
	"sales_pipeline_backend/internal/sla/transport"
	"sales_pipeline_backend/platform/httpkit"
	"sales_pipeline_backend/platform/validator"
)

const (
	msgInvalidRequest    = "invalid request"
	msgValidationFailed  = "validation failed"
	msgInvalidEntityType = "entity type must be leads or deals"
)

// Handler handles HTTP requests for SLA status and policies.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new SLA handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// GetStatus classifies entities under the tenant's stored policy.
// GET /api/v1/sla/:entityType/status
func (h *Handler) GetStatus(c *gin.Context) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	report, err := h.svc.Status(c.Request.Context(), tenantID, entityType, nil)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// PostStatus classifies entities under a policy supplied in the body.
// POST /api/v1/sla/:entityType/status
func (h *Handler) PostStatus(c *gin.Context) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}
	var req transport.PolicyRequest
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

	policy := req.ToPolicy(entityType)
	report, err := h.svc.Status(c.Request.Context(), tenantID, entityType, &policy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// GetPolicy returns the effective policy for an entity type.
// GET /api/v1/sla/policies/:entityType
func (h *Handler) GetPolicy(c *gin.Context) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}
	_, tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	policy, err := h.svc.Policy(c.Request.Context(), tenantID, entityType)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewPolicyResponse(policy))
}

// PutPolicy stores the tenant's policy for an entity type.
// PUT /api/v1/admin/sla/policies/:entityType
func (h *Handler) PutPolicy(c *gin.Context) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}
	var req transport.PolicyRequest
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

	policy, err := h.svc.UpdatePolicy(c.Request.Context(), tenantID, req.ToPolicy(entityType))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewPolicyResponse(policy))
}

func parseEntityType(c *gin.Context) (domain.EntityType, bool) {
	entityType, err := domain.ParseEntityType(c.Param("entityType"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidEntityType, nil)
		return "", false
	}
	return entityType, true
}
