package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/passmint/wallet-service/internal/dto"
	"github.com/passmint/wallet-service/internal/service"
	"github.com/passmint/wallet-service/pkg/middleware"
	"github.com/passmint/wallet-service/pkg/response"
)

// TemplateHandler exposes template management endpoints
type TemplateHandler struct {
	templateService *service.TemplateService
}

// NewTemplateHandler creates a template handler
func NewTemplateHandler(templateService *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templateService: templateService}
}

// Create handles POST /api/v1/templates
func (h *TemplateHandler) Create(c *gin.Context) {
	var req dto.TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tpl, err := h.templateService.Create(c.Request.Context(), req.ToDomain(middleware.GetOrganizerID(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, dto.ToTemplateResponse(tpl))
}

// Get handles GET /api/v1/templates/:id
func (h *TemplateHandler) Get(c *gin.Context) {
	tpl, err := h.templateService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.ToTemplateResponse(tpl))
}

// List handles GET /api/v1/templates. The organizer comes from the identity
// claims; an explicit organizer_id query overrides for back-office tooling.
func (h *TemplateHandler) List(c *gin.Context) {
	organizerID := c.Query("organizer_id")
	if organizerID == "" {
		organizerID = middleware.GetOrganizerID(c)
	}
	if organizerID == "" {
		response.BadRequest(c, "organizer_id is required")
		return
	}

	templates, err := h.templateService.List(c.Request.Context(), organizerID)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]*dto.TemplateResponse, 0, len(templates))
	for _, tpl := range templates {
		items = append(items, dto.ToTemplateResponse(tpl))
	}
	response.SuccessWithMeta(c, items, gin.H{"total": len(items)})
}

// Update handles PUT /api/v1/templates/:id
func (h *TemplateHandler) Update(c *gin.Context) {
	var req dto.TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tpl := req.ToDomain(middleware.GetOrganizerID(c))
	tpl.ID = c.Param("id")
	updated, err := h.templateService.Update(c.Request.Context(), tpl)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.ToTemplateResponse(updated))
}

// Delete handles DELETE /api/v1/templates/:id
func (h *TemplateHandler) Delete(c *gin.Context) {
	if err := h.templateService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// Activate handles POST /api/v1/templates/:id/activate
func (h *TemplateHandler) Activate(c *gin.Context) {
	tpl, result, err := h.templateService.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		if result != nil {
			response.UnprocessableEntity(c, "Template validation failed", err.Error())
			return
		}
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"template": dto.ToTemplateResponse(tpl), "validation": result})
}

// Deactivate handles POST /api/v1/templates/:id/deactivate
func (h *TemplateHandler) Deactivate(c *gin.Context) {
	tpl, err := h.templateService.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.ToTemplateResponse(tpl))
}

// SetDefault handles POST /api/v1/templates/:id/default
func (h *TemplateHandler) SetDefault(c *gin.Context) {
	tpl, err := h.templateService.SetDefault(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.ToTemplateResponse(tpl))
}

// Validate handles POST /api/v1/templates/:id/validate
func (h *TemplateHandler) Validate(c *gin.Context) {
	result, err := h.templateService.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

// Preview handles POST /api/v1/templates/:id/preview
func (h *TemplateHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rendered, err := h.templateService.Preview(c.Request.Context(), c.Param("id"), req.Data)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, rendered)
}
