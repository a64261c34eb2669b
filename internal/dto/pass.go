package dto

import (
	"time"

	"github.com/passmint/wallet-service/internal/domain"
)

// IssuePassRequest is the payload for issuing a new pass
type IssuePassRequest struct {
	TicketID    string            `json:"ticket_id" binding:"required"`
	EventID     string            `json:"event_id" binding:"required"`
	UserID      string            `json:"user_id" binding:"required"`
	OrganizerID string            `json:"organizer_id"`
	TemplateID  string            `json:"template_id"`
	Platform    string            `json:"platform" binding:"required,oneof=apple google"`
	Data        map[string]string `json:"data"`
	ExpiresAt   *time.Time        `json:"expires_at"`
}

// PassResponse is the outward representation of a pass
type PassResponse struct {
	ID             string     `json:"id"`
	TicketID       string     `json:"ticket_id"`
	EventID        string     `json:"event_id"`
	UserID         string     `json:"user_id"`
	TemplateID     string     `json:"template_id"`
	Platform       string     `json:"platform"`
	SerialNumber   string     `json:"serial_number"`
	Status         string     `json:"status"`
	StatusReason   string     `json:"status_reason,omitempty"`
	SaveURL        string     `json:"save_url,omitempty"`
	DownloadURL    string     `json:"download_url,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ContentVersion int64      `json:"content_version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ToPassResponse converts a domain pass
func ToPassResponse(pass *domain.Pass) *PassResponse {
	return &PassResponse{
		ID:             pass.ID,
		TicketID:       pass.TicketID,
		EventID:        pass.EventID,
		UserID:         pass.UserID,
		TemplateID:     pass.TemplateID,
		Platform:       string(pass.Platform),
		SerialNumber:   pass.SerialNumber,
		Status:         string(pass.Status),
		StatusReason:   pass.StatusReason,
		ExpiresAt:      pass.ExpiresAt,
		ContentVersion: pass.ContentVersion,
		CreatedAt:      pass.CreatedAt,
		UpdatedAt:      pass.UpdatedAt,
	}
}

// RevokePassRequest carries the revocation reason
type RevokePassRequest struct {
	Reason string `json:"reason"`
}

// VerifyQRRequest is a scanner-side verification call
type VerifyQRRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyQRResponse echoes the verified payload
type VerifyQRResponse struct {
	Valid    bool   `json:"valid"`
	TicketID string `json:"ticket_id,omitempty"`
	EventID  string `json:"event_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	PassID   string `json:"pass_id,omitempty"`
}

// EngagementRequest records a client-reported view/open
type EngagementRequest struct {
	Kind     string `json:"kind" binding:"required,oneof=viewed opened"`
	DeviceID string `json:"device_id"`
}
