package dto

import (
	"time"

	"github.com/passmint/wallet-service/internal/domain"
)

// BulkUpdateRequest schedules one update job per pass id
type BulkUpdateRequest struct {
	PassIDs      []string               `json:"pass_ids" binding:"required,min=1,max=1000"`
	Kind         string                 `json:"kind" binding:"required"`
	Delta        map[string]interface{} `json:"delta"`
	Priority     string                 `json:"priority" binding:"omitempty,oneof=urgent high normal low"`
	ScheduledFor *time.Time             `json:"scheduled_for"`
}

// BusinessEventRequest is an inbound ticketing platform webhook
type BusinessEventRequest struct {
	EventID string                 `json:"event_id" binding:"required"`
	Type    string                 `json:"type" binding:"required"`
	Changes map[string]interface{} `json:"changes"`
}

// JobResponse is the outward representation of an update job
type JobResponse struct {
	ID           string     `json:"id"`
	BatchID      string     `json:"batch_id,omitempty"`
	PassID       string     `json:"pass_id"`
	Kind         string     `json:"kind"`
	Priority     string     `json:"priority"`
	Status       string     `json:"status"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	LastError    string     `json:"last_error,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ToJobResponse converts a domain update job
func ToJobResponse(job *domain.UpdateJob) *JobResponse {
	return &JobResponse{
		ID:           job.ID,
		BatchID:      job.BatchID,
		PassID:       job.PassID,
		Kind:         string(job.Kind),
		Priority:     string(job.Priority),
		Status:       string(job.Status),
		ScheduledFor: job.ScheduledFor,
		RetryCount:   job.RetryCount,
		MaxRetries:   job.MaxRetries,
		LastError:    job.LastError,
		CompletedAt:  job.CompletedAt,
		CreatedAt:    job.CreatedAt,
	}
}

// LocationTriggerRequest is a device-reported position fix
type LocationTriggerRequest struct {
	UserID    string  `json:"user_id" binding:"required"`
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude" binding:"required,gte=-90,lte=90"`
	Longitude float64 `json:"longitude" binding:"gte=-180,lte=180"`
}

// BeaconTriggerRequest is a device-reported beacon sighting
type BeaconTriggerRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	DeviceID      string `json:"device_id"`
	ProximityUUID string `json:"proximity_uuid" binding:"required"`
	Major         uint16 `json:"major"`
	Minor         uint16 `json:"minor"`
}
