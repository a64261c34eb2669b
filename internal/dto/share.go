package dto

import "time"

// ShareRequest issues a share grant for a pass
type ShareRequest struct {
	Recipients []string `json:"recipients" binding:"required,min=1"`
	Message    string   `json:"message"`
	// TTLHours overrides the default share validity
	TTLHours int `json:"ttl_hours"`
	// MaxShares overrides the pass's share ceiling for this request
	MaxShares int `json:"max_shares"`
}

// ShareResponse is the issued share grant
type ShareResponse struct {
	ShareToken string    `json:"share_token"`
	ShareURL   string    `json:"share_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// RevokeShareRequest disables sharing for a pass
type RevokeShareRequest struct {
	RevokeAll bool `json:"revoke_all"`
}
