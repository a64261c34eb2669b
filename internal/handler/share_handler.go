package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/passmint/wallet-service/internal/dto"
	"github.com/passmint/wallet-service/internal/sharing"
	"github.com/passmint/wallet-service/pkg/middleware"
	"github.com/passmint/wallet-service/pkg/response"
)

// ShareHandler exposes the pass sharing endpoints
type ShareHandler struct {
	shareService *sharing.Service
}

// NewShareHandler creates a share handler
func NewShareHandler(shareService *sharing.Service) *ShareHandler {
	return &ShareHandler{shareService: shareService}
}

// Share handles POST /api/v1/passes/:id/share
func (h *ShareHandler) Share(c *gin.Context) {
	var req dto.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ttl := time.Duration(req.TTLHours) * time.Hour
	grant, err := h.shareService.Share(c.Request.Context(), c.Param("id"), req.Recipients, req.Message, ttl, req.MaxShares)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, &dto.ShareResponse{
		ShareToken: grant.ShareToken,
		ShareURL:   grant.ShareURL,
		ExpiresAt:  grant.ExpiresAt,
	})
}

// Access handles GET /api/v1/shared/:token. The accessor is the
// authenticated caller; access is gated on the recipient list.
func (h *ShareHandler) Access(c *gin.Context) {
	pass, err := h.shareService.AccessShared(c.Request.Context(), c.Param("token"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.ToPassResponse(pass))
}

// Revoke handles POST /api/v1/passes/:id/share/revoke
func (h *ShareHandler) Revoke(c *gin.Context) {
	var req dto.RevokeShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.shareService.Revoke(c.Request.Context(), c.Param("id"), req.RevokeAll); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"revoked": true, "revoke_all": req.RevokeAll})
}
