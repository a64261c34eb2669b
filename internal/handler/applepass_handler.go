package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/service"
)

// ApplePassHandler implements the Apple pass update web service. The routes
// and status codes follow Apple's protocol, so responses here bypass the
// standard API envelope.
type ApplePassHandler struct {
	deviceService *service.DeviceService
}

// NewApplePassHandler creates an Apple web service handler
func NewApplePassHandler(deviceService *service.DeviceService) *ApplePassHandler {
	return &ApplePassHandler{deviceService: deviceService}
}

// authToken extracts the pass token from an "ApplePass <token>" header
func authToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const scheme = "ApplePass "
	if !strings.HasPrefix(header, scheme) {
		return ""
	}
	return strings.TrimSpace(header[len(scheme):])
}

type registrationRequest struct {
	PushToken string `json:"pushToken"`
}

// Register handles POST /v1/devices/:deviceLibraryId/registrations/:passTypeId/:serialNumber
func (h *ApplePassHandler) Register(c *gin.Context) {
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	created, err := h.deviceService.Register(
		c.Request.Context(),
		c.Param("deviceLibraryId"),
		c.Param("passTypeId"),
		c.Param("serialNumber"),
		authToken(c),
		req.PushToken,
	)
	if err != nil {
		c.Status(appleStatus(err))
		return
	}
	if created {
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusOK)
}

// Unregister handles DELETE /v1/devices/:deviceLibraryId/registrations/:passTypeId/:serialNumber
func (h *ApplePassHandler) Unregister(c *gin.Context) {
	err := h.deviceService.Unregister(
		c.Request.Context(),
		c.Param("deviceLibraryId"),
		c.Param("passTypeId"),
		c.Param("serialNumber"),
		authToken(c),
	)
	if err != nil {
		c.Status(appleStatus(err))
		return
	}
	c.Status(http.StatusOK)
}

// ChangedSerials handles GET /v1/devices/:deviceLibraryId/registrations/:passTypeId?passesUpdatedSince=
func (h *ApplePassHandler) ChangedSerials(c *gin.Context) {
	var since time.Time
	if raw := c.Query("passesUpdatedSince"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		since = time.Unix(seconds, 0).UTC()
	}

	serials, lastUpdated, err := h.deviceService.ChangedSerials(
		c.Request.Context(),
		c.Param("deviceLibraryId"),
		c.Param("passTypeId"),
		since,
	)
	if err != nil {
		c.Status(appleStatus(err))
		return
	}
	if len(serials) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"serialNumbers": serials,
		"lastUpdated":   strconv.FormatInt(lastUpdated.Unix(), 10),
	})
}

// LatestPass handles GET /v1/passes/:passTypeId/:serialNumber. Honors
// If-Modified-Since with a 304 when the pass has not changed.
func (h *ApplePassHandler) LatestPass(c *gin.Context) {
	deliverable, modifiedAt, err := h.deviceService.LatestPass(
		c.Request.Context(),
		c.Param("passTypeId"),
		c.Param("serialNumber"),
		authToken(c),
	)
	if err != nil {
		c.Status(appleStatus(err))
		return
	}

	if raw := c.GetHeader("If-Modified-Since"); raw != "" {
		if since, perr := http.ParseTime(raw); perr == nil && !modifiedAt.Truncate(time.Second).After(since) {
			c.Status(http.StatusNotModified)
			return
		}
	}

	c.Header("Last-Modified", modifiedAt.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, deliverable.ContentType, deliverable.Data)
}

type logRequest struct {
	Logs []string `json:"logs"`
}

// Log handles POST /v1/log
func (h *ApplePassHandler) Log(c *gin.Context) {
	var req logRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	h.deviceService.LogMessages(req.Logs)
	c.Status(http.StatusOK)
}

// appleStatus maps domain errors to the web service's bare status codes
func appleStatus(err error) int {
	switch {
	case domain.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
