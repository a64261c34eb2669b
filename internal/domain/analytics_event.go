package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies an analytics event
type EventKind string

const (
	EventPassCreated       EventKind = "created"
	EventPassDownloaded    EventKind = "downloaded"
	EventPassInstalled     EventKind = "installed"
	EventPassViewed        EventKind = "viewed"
	EventPassShared        EventKind = "shared"
	EventPassUpdated       EventKind = "updated"
	EventPassRevoked       EventKind = "revoked"
	EventLocationTriggered EventKind = "location-triggered"
	EventBeaconTriggered   EventKind = "beacon-triggered"
	EventQRScanned         EventKind = "qr-scanned"
	EventNotificationSent  EventKind = "notification-sent"
	EventPassOpened        EventKind = "opened"
)

// AnalyticsEvent is one append-only engagement record. Events are never
// updated or deleted except for bulk archival after the retention window.
type AnalyticsEvent struct {
	ID       string    `json:"id"`
	PassID   string    `json:"pass_id"`
	Kind     EventKind `json:"kind"`
	DeviceID string    `json:"device_id,omitempty"`
	// Location context for trigger events
	Latitude  *float64               `json:"latitude,omitempty"`
	Longitude *float64               `json:"longitude,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewAnalyticsEvent creates an event stamped with the current time
func NewAnalyticsEvent(passID string, kind EventKind) *AnalyticsEvent {
	return &AnalyticsEvent{
		ID:        uuid.New().String(),
		PassID:    passID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// WithDevice attaches the reporting device identifier
func (e *AnalyticsEvent) WithDevice(deviceID string) *AnalyticsEvent {
	e.DeviceID = deviceID
	return e
}

// WithLocation attaches the reported coordinates
func (e *AnalyticsEvent) WithLocation(lat, lon float64) *AnalyticsEvent {
	e.Latitude = &lat
	e.Longitude = &lon
	return e
}

// WithData attaches free-form event data
func (e *AnalyticsEvent) WithData(data map[string]interface{}) *AnalyticsEvent {
	e.Data = data
	return e
}

// DeviceRegistration links a device to a pass on the Apple-style update
// channel, keyed by (deviceLibraryIdentifier, passTypeIdentifier, serial).
type DeviceRegistration struct {
	DeviceLibraryIdentifier string    `json:"device_library_identifier"`
	PassTypeIdentifier      string    `json:"pass_type_identifier"`
	SerialNumber            string    `json:"serial_number"`
	PushToken               string    `json:"push_token"`
	RegisteredAt            time.Time `json:"registered_at"`
}
