package dto

import (
	"time"

	"github.com/passmint/wallet-service/internal/domain"
)

// TemplateRequest creates or updates a template
type TemplateRequest struct {
	OrganizerID string               `json:"organizer_id"`
	Platform    string               `json:"platform" binding:"required,oneof=apple google"`
	Name        string               `json:"name" binding:"required"`
	Description string               `json:"description"`
	Appearance  domain.Appearance    `json:"appearance"`
	Fields      domain.FieldGroups   `json:"fields"`
	Barcode     domain.BarcodeSpec   `json:"barcode"`
	Locations   []domain.Location    `json:"locations"`
	Beacons     []domain.Beacon      `json:"beacons"`
	Sharing     domain.SharingPolicy `json:"sharing"`
	Validation  []domain.FieldRule   `json:"validation"`

	LocationTriggersOn bool `json:"location_triggers_on"`
	BeaconTriggersOn   bool `json:"beacon_triggers_on"`
}

// ToDomain builds the domain template carried by the request
func (r *TemplateRequest) ToDomain(organizerID string) *domain.Template {
	if organizerID == "" {
		organizerID = r.OrganizerID
	}
	return &domain.Template{
		OrganizerID:        organizerID,
		Platform:           domain.Platform(r.Platform),
		Name:               r.Name,
		Description:        r.Description,
		Appearance:         r.Appearance,
		Fields:             r.Fields,
		Barcode:            r.Barcode,
		LocationTriggersOn: r.LocationTriggersOn,
		BeaconTriggersOn:   r.BeaconTriggersOn,
		Locations:          r.Locations,
		Beacons:            r.Beacons,
		Sharing:            r.Sharing,
		Validation:         r.Validation,
	}
}

// TemplateResponse is the outward representation of a template
type TemplateResponse struct {
	ID          string    `json:"id"`
	OrganizerID string    `json:"organizer_id"`
	Platform    string    `json:"platform"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     int       `json:"version"`
	Status      string    `json:"status"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Appearance domain.Appearance    `json:"appearance"`
	Fields     domain.FieldGroups   `json:"fields"`
	Barcode    domain.BarcodeSpec   `json:"barcode"`
	Locations  []domain.Location    `json:"locations,omitempty"`
	Beacons    []domain.Beacon      `json:"beacons,omitempty"`
	Sharing    domain.SharingPolicy `json:"sharing"`
}

// ToTemplateResponse converts a domain template
func ToTemplateResponse(tpl *domain.Template) *TemplateResponse {
	return &TemplateResponse{
		ID:          tpl.ID,
		OrganizerID: tpl.OrganizerID,
		Platform:    string(tpl.Platform),
		Name:        tpl.Name,
		Description: tpl.Description,
		Version:     tpl.Version,
		Status:      string(tpl.Status),
		IsDefault:   tpl.IsDefault,
		CreatedAt:   tpl.CreatedAt,
		UpdatedAt:   tpl.UpdatedAt,
		Appearance:  tpl.Appearance,
		Fields:      tpl.Fields,
		Barcode:     tpl.Barcode,
		Locations:   tpl.Locations,
		Beacons:     tpl.Beacons,
		Sharing:     tpl.Sharing,
	}
}

// PreviewRequest renders a template against sample data
type PreviewRequest struct {
	Data map[string]string `json:"data"`
}
