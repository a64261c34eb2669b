package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/passmint/wallet-service/internal/dto"
	"github.com/passmint/wallet-service/internal/trigger"
	"github.com/passmint/wallet-service/pkg/response"
)

// TriggerHandler receives device-reported proximity events
type TriggerHandler struct {
	engine *trigger.Engine
}

// NewTriggerHandler creates a trigger handler
func NewTriggerHandler(engine *trigger.Engine) *TriggerHandler {
	return &TriggerHandler{engine: engine}
}

// Location handles POST /api/v1/triggers/location
func (h *TriggerHandler) Location(c *gin.Context) {
	var req dto.LocationTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	results, err := h.engine.ProcessLocationTrigger(c.Request.Context(), &trigger.LocationEvent{
		UserID:    req.UserID,
		DeviceID:  req.DeviceID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMeta(c, results, gin.H{"matched": len(results)})
}

// Beacon handles POST /api/v1/triggers/beacon
func (h *TriggerHandler) Beacon(c *gin.Context) {
	var req dto.BeaconTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	results, err := h.engine.ProcessBeaconTrigger(c.Request.Context(), &trigger.BeaconEvent{
		UserID:        req.UserID,
		DeviceID:      req.DeviceID,
		ProximityUUID: req.ProximityUUID,
		Major:         req.Major,
		Minor:         req.Minor,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMeta(c, results, gin.H{"matched": len(results)})
}
