package domain

import (
	"time"

	"github.com/google/uuid"
)

// TemplateStatus represents the lifecycle status of a template
type TemplateStatus string

const (
	TemplateStatusDraft    TemplateStatus = "draft"
	TemplateStatusActive   TemplateStatus = "active"
	TemplateStatusInactive TemplateStatus = "inactive"
)

// Editable reports whether template mutation is allowed in this status
func (s TemplateStatus) Editable() bool {
	return s == TemplateStatusDraft || s == TemplateStatusInactive
}

// BarcodeFormat enumerates supported barcode symbologies
type BarcodeFormat string

const (
	BarcodeFormatQR      BarcodeFormat = "qr"
	BarcodeFormatPDF417  BarcodeFormat = "pdf417"
	BarcodeFormatAztec   BarcodeFormat = "aztec"
	BarcodeFormatCode128 BarcodeFormat = "code128"
)

// FieldDef is one declarative pass field; ValueTemplate may contain
// {{key}} placeholders substituted at render time.
type FieldDef struct {
	Key           string `json:"key"`
	Label         string `json:"label,omitempty"`
	ValueTemplate string `json:"value_template"`
	ChangeMessage string `json:"change_message,omitempty"`
	TextAlignment string `json:"text_alignment,omitempty"`
}

// FieldGroups holds the five standard pass field groups
type FieldGroups struct {
	Header    []FieldDef `json:"header,omitempty"`
	Primary   []FieldDef `json:"primary,omitempty"`
	Secondary []FieldDef `json:"secondary,omitempty"`
	Auxiliary []FieldDef `json:"auxiliary,omitempty"`
	Back      []FieldDef `json:"back,omitempty"`
}

// All returns every field across the five groups in a stable order
func (g FieldGroups) All() []FieldDef {
	out := make([]FieldDef, 0,
		len(g.Header)+len(g.Primary)+len(g.Secondary)+len(g.Auxiliary)+len(g.Back))
	out = append(out, g.Header...)
	out = append(out, g.Primary...)
	out = append(out, g.Secondary...)
	out = append(out, g.Auxiliary...)
	out = append(out, g.Back...)
	return out
}

// Appearance holds template colors and image references
type Appearance struct {
	BackgroundColor string `json:"background_color,omitempty"`
	ForegroundColor string `json:"foreground_color,omitempty"`
	LabelColor      string `json:"label_color,omitempty"`
	LogoURL         string `json:"logo_url,omitempty"`
	IconURL         string `json:"icon_url,omitempty"`
	StripImageURL   string `json:"strip_image_url,omitempty"`
	LogoText        string `json:"logo_text,omitempty"`
}

// BarcodeSpec configures the pass barcode
type BarcodeSpec struct {
	Enabled bool          `json:"enabled"`
	Format  BarcodeFormat `json:"format,omitempty"`
	// MessageTemplate renders the barcode payload; required when Enabled
	MessageTemplate string `json:"message_template,omitempty"`
	AltText         string `json:"alt_text,omitempty"`
}

// SharingPolicy configures sharing defaults for passes cut from this template
type SharingPolicy struct {
	Enabled   bool          `json:"enabled"`
	MaxShares int           `json:"max_shares,omitempty"`
	TokenTTL  time.Duration `json:"token_ttl,omitempty"`
}

// FieldRule is a per-field validation rule applied to render data
type FieldRule struct {
	Key       string `json:"key"`
	Required  bool   `json:"required,omitempty"`
	Type      string `json:"type,omitempty"` // string, number, date
	MaxLength int    `json:"max_length,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// Template is a reusable, versioned rendering recipe per issuer/platform
type Template struct {
	ID          string         `json:"id"`
	OrganizerID string         `json:"organizer_id"`
	Platform    Platform       `json:"platform"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     int            `json:"version"`
	Status      TemplateStatus `json:"status"`
	// IsDefault marks the one default template per (organizer, platform)
	IsDefault bool `json:"is_default"`

	Appearance Appearance  `json:"appearance"`
	Fields     FieldGroups `json:"fields"`
	Barcode    BarcodeSpec `json:"barcode"`

	// Default triggers copied onto passes at issuance
	LocationTriggersOn bool       `json:"location_triggers_on"`
	BeaconTriggersOn   bool       `json:"beacon_triggers_on"`
	Locations          []Location `json:"locations,omitempty"`
	Beacons            []Beacon   `json:"beacons,omitempty"`

	Sharing    SharingPolicy `json:"sharing"`
	Validation []FieldRule   `json:"validation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTemplate creates a draft template
func NewTemplate(organizerID string, platform Platform, name string) (*Template, error) {
	if organizerID == "" {
		return nil, ErrInvalidOrganizerID
	}
	if !platform.Valid() {
		return nil, ErrInvalidPlatform
	}
	if name == "" {
		return nil, ErrInvalidTemplateName
	}

	now := time.Now().UTC()
	return &Template{
		ID:          uuid.New().String(),
		OrganizerID: organizerID,
		Platform:    platform,
		Name:        name,
		Version:     1,
		Status:      TemplateStatusDraft,
		Sharing:     SharingPolicy{Enabled: true},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
