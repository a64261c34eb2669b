package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/dto"
	"github.com/passmint/wallet-service/internal/orchestrator"
	"github.com/passmint/wallet-service/pkg/response"
)

// UpdateHandler exposes bulk update scheduling, batch tracking, and the
// ticketing platform webhook
type UpdateHandler struct {
	orchestrator *orchestrator.Orchestrator
}

// NewUpdateHandler creates an update handler
func NewUpdateHandler(orch *orchestrator.Orchestrator) *UpdateHandler {
	return &UpdateHandler{orchestrator: orch}
}

// ScheduleBulk handles POST /api/v1/updates/bulk
func (h *UpdateHandler) ScheduleBulk(c *gin.Context) {
	var req dto.BulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	priority := domain.JobPriority(req.Priority)
	if req.Priority == "" {
		priority = domain.PriorityNormal
	}
	var scheduledFor time.Time
	if req.ScheduledFor != nil {
		scheduledFor = *req.ScheduledFor
	}

	result, err := h.orchestrator.ScheduleBulkUpdate(
		c.Request.Context(),
		req.PassIDs,
		domain.UpdateKind(req.Kind),
		req.Delta,
		priority,
		scheduledFor,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Accepted(c, result)
}

// HandleBusinessEvent handles POST /api/v1/webhooks/events
func (h *UpdateHandler) HandleBusinessEvent(c *gin.Context) {
	var req dto.BusinessEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.orchestrator.HandleBusinessEvent(c.Request.Context(), &orchestrator.BusinessEvent{
		EventID: req.EventID,
		Type:    orchestrator.BusinessEventType(req.Type),
		Changes: req.Changes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Accepted(c, result)
}

// BatchStatus handles GET /api/v1/updates/batches/:batchId
func (h *UpdateHandler) BatchStatus(c *gin.Context) {
	summary, err := h.orchestrator.BatchStatus(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, summary)
}

// CancelBatch handles DELETE /api/v1/updates/batches/:batchId
func (h *UpdateHandler) CancelBatch(c *gin.Context) {
	cancelled, err := h.orchestrator.CancelBatch(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"cancelled": cancelled})
}

// GetJob handles GET /api/v1/updates/jobs/:jobId
func (h *UpdateHandler) GetJob(c *gin.Context) {
	job, err := h.orchestrator.GetJob(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.ToJobResponse(job))
}

// CancelJob handles DELETE /api/v1/updates/jobs/:jobId
func (h *UpdateHandler) CancelJob(c *gin.Context) {
	if err := h.orchestrator.CancelJob(c.Request.Context(), c.Param("jobId")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"cancelled": true})
}
