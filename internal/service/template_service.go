package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/template"
	"github.com/passmint/wallet-service/pkg/logger"
)

// TemplateService manages pass templates for organizers
type TemplateService struct {
	templates repository.TemplateRepository
	passes    repository.PassRepository
	log       *logger.Logger
}

// NewTemplateService creates a template service
func NewTemplateService(templates repository.TemplateRepository, passes repository.PassRepository) *TemplateService {
	return &TemplateService{
		templates: templates,
		passes:    passes,
		log:       logger.Get(),
	}
}

// Create stores a new draft template
func (s *TemplateService) Create(ctx context.Context, tpl *domain.Template) (*domain.Template, error) {
	created, err := domain.NewTemplate(tpl.OrganizerID, tpl.Platform, tpl.Name)
	if err != nil {
		return nil, err
	}
	created.Description = tpl.Description
	created.Appearance = tpl.Appearance
	created.Fields = tpl.Fields
	created.Barcode = tpl.Barcode
	created.LocationTriggersOn = tpl.LocationTriggersOn
	created.BeaconTriggersOn = tpl.BeaconTriggersOn
	created.Locations = tpl.Locations
	created.Beacons = tpl.Beacons
	if tpl.Sharing.MaxShares > 0 || !tpl.Sharing.Enabled {
		created.Sharing = tpl.Sharing
	}
	created.Validation = tpl.Validation

	if err := s.templates.Create(ctx, created); err != nil {
		return nil, err
	}
	s.log.Info(fmt.Sprintf("Created template %s for organizer %s", created.ID, created.OrganizerID))
	return created, nil
}

// Get loads one template
func (s *TemplateService) Get(ctx context.Context, id string) (*domain.Template, error) {
	return s.templates.GetByID(ctx, id)
}

// List returns an organizer's templates
func (s *TemplateService) List(ctx context.Context, organizerID string) ([]*domain.Template, error) {
	return s.templates.ListByOrganizer(ctx, organizerID)
}

// Update mutates a template. Active templates are immutable; deactivate
// first. Every update bumps the version.
func (s *TemplateService) Update(ctx context.Context, tpl *domain.Template) (*domain.Template, error) {
	current, err := s.templates.GetByID(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}
	if !current.Status.Editable() {
		return nil, domain.ErrTemplateNotEditable
	}

	current.Name = tpl.Name
	current.Description = tpl.Description
	current.Appearance = tpl.Appearance
	current.Fields = tpl.Fields
	current.Barcode = tpl.Barcode
	current.LocationTriggersOn = tpl.LocationTriggersOn
	current.BeaconTriggersOn = tpl.BeaconTriggersOn
	current.Locations = tpl.Locations
	current.Beacons = tpl.Beacons
	current.Sharing = tpl.Sharing
	current.Validation = tpl.Validation
	current.Version++

	if err := s.templates.Update(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// Activate validates a template and moves it to active. Validation errors
// block activation; warnings do not.
func (s *TemplateService) Activate(ctx context.Context, id string) (*domain.Template, *template.ValidationResult, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	result := template.Validate(tpl)
	if !result.Valid {
		return nil, result, fmt.Errorf("%w: %s", domain.ErrTemplateInvalid, strings.Join(result.Errors, "; "))
	}

	tpl.Status = domain.TemplateStatusActive
	if err := s.templates.Update(ctx, tpl); err != nil {
		return nil, nil, err
	}
	return tpl, result, nil
}

// Deactivate moves a template out of service; existing passes keep rendering
// from their stored content
func (s *TemplateService) Deactivate(ctx context.Context, id string) (*domain.Template, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tpl.Status = domain.TemplateStatusInactive
	if tpl.IsDefault {
		tpl.IsDefault = false
	}
	if err := s.templates.Update(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// SetDefault promotes a template to the organizer's default for its
// platform, demoting any previous default
func (s *TemplateService) SetDefault(ctx context.Context, id string) (*domain.Template, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tpl.Status != domain.TemplateStatusActive {
		return nil, fmt.Errorf("%w: only active templates can be default", domain.ErrTemplateInvalid)
	}

	if err := s.templates.ClearDefault(ctx, tpl.OrganizerID, tpl.Platform); err != nil {
		return nil, err
	}
	tpl.IsDefault = true
	if err := s.templates.Update(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Delete removes a template with no issued passes
func (s *TemplateService) Delete(ctx context.Context, id string) error {
	if _, err := s.templates.GetByID(ctx, id); err != nil {
		return err
	}
	count, err := s.passes.CountByTemplate(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrTemplateInUse
	}
	return s.templates.Delete(ctx, id)
}

// Validate runs structural validation without mutating anything
func (s *TemplateService) Validate(ctx context.Context, id string) (*template.ValidationResult, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return template.Validate(tpl), nil
}

// Preview renders a template against sample data without issuing a pass
func (s *TemplateService) Preview(ctx context.Context, id string, data map[string]string) (*template.RenderedFields, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return template.Render(tpl, data), nil
}
