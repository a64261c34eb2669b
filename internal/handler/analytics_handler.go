package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/passmint/wallet-service/internal/analytics"
	"github.com/passmint/wallet-service/pkg/response"
)

// AnalyticsHandler exposes read-only engagement summaries
type AnalyticsHandler struct {
	analyticsService *analytics.Service
}

// NewAnalyticsHandler creates an analytics handler
func NewAnalyticsHandler(analyticsService *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

// window parses the optional since/until query bounds. Zero values mean
// unbounded on that side.
func window(c *gin.Context) (time.Time, time.Time, error) {
	var since, until time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return since, until, err
		}
		since = parsed
	}
	if raw := c.Query("until"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return since, until, err
		}
		until = parsed
	}
	return since, until, nil
}

// Overview handles GET /api/v1/analytics/overview
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	since, until, err := window(c)
	if err != nil {
		response.BadRequest(c, "since/until must be RFC3339 timestamps")
		return
	}

	overview, err := h.analyticsService.Overview(c.Request.Context(), since, until)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, overview)
}

// TemplateSummary handles GET /api/v1/analytics/templates/:id
func (h *AnalyticsHandler) TemplateSummary(c *gin.Context) {
	since, until, err := window(c)
	if err != nil {
		response.BadRequest(c, "since/until must be RFC3339 timestamps")
		return
	}

	summary, err := h.analyticsService.TemplateSummary(c.Request.Context(), c.Param("id"), since, until)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, summary)
}

// PassSummary handles GET /api/v1/analytics/passes/:id
func (h *AnalyticsHandler) PassSummary(c *gin.Context) {
	since, until, err := window(c)
	if err != nil {
		response.BadRequest(c, "since/until must be RFC3339 timestamps")
		return
	}

	summary, err := h.analyticsService.PassSummary(c.Request.Context(), c.Param("id"), since, until)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, summary)
}

// EventSummary handles GET /api/v1/analytics/events/:eventId
func (h *AnalyticsHandler) EventSummary(c *gin.Context) {
	since, until, err := window(c)
	if err != nil {
		response.BadRequest(c, "since/until must be RFC3339 timestamps")
		return
	}

	summary, err := h.analyticsService.EventSummary(c.Request.Context(), c.Param("eventId"), since, until)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, summary)
}

// ComparePeriods handles GET /api/v1/analytics/passes/:id/compare?window_hours=
func (h *AnalyticsHandler) ComparePeriods(c *gin.Context) {
	windowHours := 24
	if raw := c.Query("window_hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.BadRequest(c, "window_hours must be a positive integer")
			return
		}
		windowHours = parsed
	}

	comparison, err := h.analyticsService.ComparePeriods(
		c.Request.Context(),
		c.Param("id"),
		time.Now().UTC(),
		time.Duration(windowHours)*time.Hour,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, comparison)
}
