package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the wallet platform a pass was issued for
type Platform string

const (
	PlatformApple  Platform = "apple"
	PlatformGoogle Platform = "google"
)

// Valid reports whether the platform value is known
func (p Platform) Valid() bool {
	return p == PlatformApple || p == PlatformGoogle
}

// PassStatus represents the lifecycle status of a pass (matches DB ENUM)
type PassStatus string

const (
	PassStatusCreated   PassStatus = "created"
	PassStatusGenerated PassStatus = "generated"
	PassStatusDelivered PassStatus = "delivered"
	PassStatusInstalled PassStatus = "installed"
	PassStatusActive    PassStatus = "active"
	PassStatusExpired   PassStatus = "expired"
	PassStatusRevoked   PassStatus = "revoked"
	PassStatusError     PassStatus = "error"
)

// passTransitions encodes the allowed lifecycle edges:
// created -> generated -> delivered -> installed -> active -> {expired|revoked|error},
// with error reachable from created/generated and expired/revoked terminal.
var passTransitions = map[PassStatus][]PassStatus{
	PassStatusCreated:   {PassStatusGenerated, PassStatusError},
	PassStatusGenerated: {PassStatusDelivered, PassStatusError, PassStatusExpired, PassStatusRevoked},
	PassStatusDelivered: {PassStatusInstalled, PassStatusActive, PassStatusExpired, PassStatusRevoked},
	PassStatusInstalled: {PassStatusActive, PassStatusExpired, PassStatusRevoked},
	PassStatusActive:    {PassStatusExpired, PassStatusRevoked, PassStatusError},
	PassStatusError:     {PassStatusGenerated},
	PassStatusExpired:   {},
	PassStatusRevoked:   {},
}

// CanTransitionTo reports whether the status machine allows moving to next
func (s PassStatus) CanTransitionTo(next PassStatus) bool {
	for _, allowed := range passTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions
func (s PassStatus) IsTerminal() bool {
	return s == PassStatusExpired || s == PassStatusRevoked
}

// Location is a geofence trigger point attached to a pass
type Location struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RelevantText string  `json:"relevant_text,omitempty"`
}

// Beacon is a proximity transmitter matched by UUID/major/minor
type Beacon struct {
	ProximityUUID string  `json:"proximity_uuid"`
	Major         *uint16 `json:"major,omitempty"`
	Minor         *uint16 `json:"minor,omitempty"`
	RelevantText  string  `json:"relevant_text,omitempty"`
}

// Matches reports whether a reported beacon sighting matches this beacon.
// Nil major/minor act as wildcards.
func (b Beacon) Matches(proximityUUID string, major, minor uint16) bool {
	if !strings.EqualFold(b.ProximityUUID, proximityUUID) {
		return false
	}
	if b.Major != nil && *b.Major != major {
		return false
	}
	if b.Minor != nil && *b.Minor != minor {
		return false
	}
	return true
}

// QuietHours is the pass owner's do-not-disturb window, in the owner's local
// clock (hours 0-23). A window may wrap midnight, e.g. 22 -> 7.
type QuietHours struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"start_hour"`
	EndHour   int  `json:"end_hour"`
}

// Contains reports whether t falls inside the quiet window
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	h := t.Hour()
	if q.StartHour == q.EndHour {
		return false
	}
	if q.StartHour < q.EndHour {
		return h >= q.StartHour && h < q.EndHour
	}
	// Window wraps midnight
	return h >= q.StartHour || h < q.EndHour
}

// ShareAccess records one successful shared-pass access
type ShareAccess struct {
	Accessor   string    `json:"accessor"`
	AccessedAt time.Time `json:"accessed_at"`
}

// maxShareAccessHistory bounds the retained access history per pass
const maxShareAccessHistory = 100

// SharingState tracks the sharing lifecycle of a pass
type SharingState struct {
	// Enabled gates new shares; revoke(revokeAll=false) flips this off while
	// leaving existing tokens valid until their own expiry
	Enabled bool `json:"enabled"`
	// Revoked invalidates the active token immediately and disables sharing
	Revoked        bool          `json:"revoked"`
	ActiveToken    string        `json:"active_token,omitempty"`
	TokenExpiresAt *time.Time    `json:"token_expires_at,omitempty"`
	Recipients     []string      `json:"recipients,omitempty"`
	ShareCount     int           `json:"share_count"`
	MaxShares      int           `json:"max_shares"`
	AccessHistory  []ShareAccess `json:"access_history,omitempty"`
}

// RecordAccess appends to the access history, keeping only the most recent
// entries.
func (s *SharingState) RecordAccess(accessor string, at time.Time) {
	s.AccessHistory = append(s.AccessHistory, ShareAccess{Accessor: accessor, AccessedAt: at})
	if len(s.AccessHistory) > maxShareAccessHistory {
		s.AccessHistory = s.AccessHistory[len(s.AccessHistory)-maxShareAccessHistory:]
	}
}

// IsRecipient reports whether accessor was named on the share
func (s *SharingState) IsRecipient(accessor string) bool {
	for _, r := range s.Recipients {
		if strings.EqualFold(r, accessor) {
			return true
		}
	}
	return false
}

// Pass represents one issued wallet pass tied to a ticket
type Pass struct {
	ID                 string   `json:"id"`
	TicketID           string   `json:"ticket_id"`
	EventID            string   `json:"event_id"`
	UserID             string   `json:"user_id"`
	TemplateID         string   `json:"template_id"`
	Platform           Platform `json:"platform"`
	PassTypeIdentifier string   `json:"pass_type_identifier"`
	// SerialNumber is globally unique; (PassTypeIdentifier, SerialNumber)
	// identifies the pass on the Apple update channel
	SerialNumber string     `json:"serial_number"`
	Status       PassStatus `json:"status"`
	// StatusReason carries the diagnostic for error/revoked states
	StatusReason string `json:"status_reason,omitempty"`
	// Content is the rendered content snapshot the deliverable was built from
	Content map[string]interface{} `json:"content,omitempty"`
	// BarcodePayload is the signed QR message embedded in the deliverable
	BarcodePayload string `json:"barcode_payload,omitempty"`
	// AuthenticationToken authorizes device registrations for this pass
	AuthenticationToken string       `json:"-"`
	Locations           []Location   `json:"locations,omitempty"`
	Beacons             []Beacon     `json:"beacons,omitempty"`
	QuietHours          QuietHours   `json:"quiet_hours"`
	ExpiresAt           *time.Time   `json:"expires_at,omitempty"`
	Sharing             SharingState `json:"sharing"`
	// GoogleObjectID is the remote wallet object id, set once registered
	GoogleObjectID string            `json:"google_object_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ContentVersion int64             `json:"content_version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewPass creates a pass in the created state with a fresh serial number and
// per-pass authentication secret.
func NewPass(ticketID, eventID, userID, templateID string, platform Platform, maxShares int) (*Pass, error) {
	if ticketID == "" {
		return nil, ErrInvalidTicketID
	}
	if eventID == "" {
		return nil, ErrInvalidEventID
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if !platform.Valid() {
		return nil, ErrInvalidPlatform
	}

	now := time.Now().UTC()
	return &Pass{
		ID:                  uuid.New().String(),
		TicketID:            ticketID,
		EventID:             eventID,
		UserID:              userID,
		TemplateID:          templateID,
		Platform:            platform,
		SerialNumber:        uuid.New().String(),
		Status:              PassStatusCreated,
		AuthenticationToken: uuid.New().String(),
		Sharing:             SharingState{Enabled: true, MaxShares: maxShares},
		Metadata:            make(map[string]string),
		ContentVersion:      1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// TransitionTo moves the pass to next, enforcing the lifecycle machine
func (p *Pass) TransitionTo(next PassStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return ErrInvalidStatusTransition
	}
	p.Status = next
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkError moves the pass to error with a diagnostic reason
func (p *Pass) MarkError(reason string) {
	p.Status = PassStatusError
	p.StatusReason = reason
	p.UpdatedAt = time.Now().UTC()
}

// IsExpiredAt reports whether the pass is past its expiry instant
func (p *Pass) IsExpiredAt(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Refresh forces status to expired when the expiry instant has passed.
// Called on every read and write path; returns true when a change was made.
func (p *Pass) Refresh(now time.Time) bool {
	if p.Status.IsTerminal() || !p.IsExpiredAt(now) {
		return false
	}
	p.Status = PassStatusExpired
	p.UpdatedAt = now.UTC()
	return true
}

// Voided reports whether installed copies should render as invalid
func (p *Pass) Voided() bool {
	return p.Status == PassStatusExpired || p.Status == PassStatusRevoked
}
