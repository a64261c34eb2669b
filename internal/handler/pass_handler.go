package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/dto"
	"github.com/passmint/wallet-service/internal/service"
	"github.com/passmint/wallet-service/pkg/response"
)

// PassHandler exposes the pass lifecycle endpoints
type PassHandler struct {
	passService *service.PassService
}

// NewPassHandler creates a pass handler
func NewPassHandler(passService *service.PassService) *PassHandler {
	return &PassHandler{passService: passService}
}

// Issue handles POST /api/v1/passes
func (h *PassHandler) Issue(c *gin.Context) {
	var req dto.IssuePassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.passService.IssuePass(c.Request.Context(), &service.IssueRequest{
		TicketID:    req.TicketID,
		EventID:     req.EventID,
		UserID:      req.UserID,
		OrganizerID: req.OrganizerID,
		TemplateID:  req.TemplateID,
		Platform:    domain.Platform(req.Platform),
		Data:        req.Data,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := dto.ToPassResponse(result.Pass)
	if result.Deliverable.SaveURL != "" {
		resp.SaveURL = result.Deliverable.SaveURL
	} else {
		resp.DownloadURL = "/api/v1/passes/" + result.Pass.ID + "/download"
	}
	response.Created(c, resp)
}

// Get handles GET /api/v1/passes/:id
func (h *PassHandler) Get(c *gin.Context) {
	pass, err := h.passService.GetPass(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.ToPassResponse(pass))
}

// Download handles GET /api/v1/passes/:id/download. Apple passes stream the
// signed archive; Google passes redirect to the save link.
func (h *PassHandler) Download(c *gin.Context) {
	pass, deliverable, err := h.passService.DownloadPass(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if deliverable.SaveURL != "" {
		c.Redirect(http.StatusFound, deliverable.SaveURL)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+deliverable.Filename)
	c.Header("Last-Modified", pass.UpdatedAt.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, deliverable.ContentType, deliverable.Data)
}

// Revoke handles POST /api/v1/passes/:id/revoke
func (h *PassHandler) Revoke(c *gin.Context) {
	var req dto.RevokePassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pass, err := h.passService.RevokePass(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.ToPassResponse(pass))
}

// RotatingQR handles GET /api/v1/passes/:id/qr
func (h *PassHandler) RotatingQR(c *gin.Context) {
	token, err := h.passService.RotatingQR(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"token": token})
}

// VerifyQR handles POST /api/v1/qr/verify
func (h *PassHandler) VerifyQR(c *gin.Context) {
	var req dto.VerifyQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	payload, err := h.passService.VerifyQR(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, &dto.VerifyQRResponse{
		Valid:    true,
		TicketID: payload.TicketID,
		EventID:  payload.EventID,
		UserID:   payload.UserID,
		PassID:   payload.PassID,
	})
}

// RecordEngagement handles POST /api/v1/passes/:id/events
func (h *PassHandler) RecordEngagement(c *gin.Context) {
	var req dto.EngagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	kind := domain.EventPassViewed
	if req.Kind == "opened" {
		kind = domain.EventPassOpened
	}
	if err := h.passService.RecordEngagement(c.Request.Context(), c.Param("id"), kind, req.DeviceID); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"recorded": true})
}
