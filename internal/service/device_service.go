package service

import (
	"context"
	"fmt"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/template"
	"github.com/passmint/wallet-service/internal/wallet"
	"github.com/passmint/wallet-service/pkg/logger"
)

// DeviceService implements the pass update web service: device registration,
// change polling, and fresh-pass fetches. Every operation authenticates with
// the pass's per-issuance authentication token.
type DeviceService struct {
	devices   repository.DeviceRepository
	passes    repository.PassRepository
	templates repository.TemplateRepository
	wallets   *wallet.Registry
	passSvc   *PassService
	log       *logger.Logger
}

// NewDeviceService creates a device service
func NewDeviceService(
	devices repository.DeviceRepository,
	passes repository.PassRepository,
	templates repository.TemplateRepository,
	wallets *wallet.Registry,
	passSvc *PassService,
) *DeviceService {
	return &DeviceService{
		devices:   devices,
		passes:    passes,
		templates: templates,
		wallets:   wallets,
		passSvc:   passSvc,
		log:       logger.Get(),
	}
}

// authenticate loads the pass and checks the presented token against its
// authentication secret
func (s *DeviceService) authenticate(ctx context.Context, passTypeID, serialNumber, authToken string) (*domain.Pass, error) {
	pass, err := s.passes.GetBySerial(ctx, passTypeID, serialNumber)
	if err != nil {
		return nil, err
	}
	if authToken == "" || pass.AuthenticationToken != authToken {
		return nil, domain.ErrUnauthorized
	}
	return pass, nil
}

// Register links a device to a pass. Returns true when the registration is
// new; re-registration refreshes the push token. A first registration also
// advances the pass to installed/active.
func (s *DeviceService) Register(ctx context.Context, deviceLibraryID, passTypeID, serialNumber, authToken, pushToken string) (bool, error) {
	pass, err := s.authenticate(ctx, passTypeID, serialNumber, authToken)
	if err != nil {
		return false, err
	}

	created, err := s.devices.Register(ctx, &domain.DeviceRegistration{
		DeviceLibraryIdentifier: deviceLibraryID,
		PassTypeIdentifier:      passTypeID,
		SerialNumber:            serialNumber,
		PushToken:               pushToken,
		RegisteredAt:            time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}

	if created {
		if err := s.passSvc.MarkInstalled(ctx, pass, deviceLibraryID); err != nil {
			s.log.Warn(fmt.Sprintf("Failed to advance pass %s on registration: %v", pass.ID, err))
		}
	}

	return created, nil
}

// Unregister removes a device's registration for a pass
func (s *DeviceService) Unregister(ctx context.Context, deviceLibraryID, passTypeID, serialNumber, authToken string) error {
	if _, err := s.authenticate(ctx, passTypeID, serialNumber, authToken); err != nil {
		return err
	}
	return s.devices.Unregister(ctx, deviceLibraryID, passTypeID, serialNumber)
}

// ChangedSerials lists serial numbers for a device whose passes changed
// since the given tag. The returned instant becomes the device's next tag.
func (s *DeviceService) ChangedSerials(ctx context.Context, deviceLibraryID, passTypeID string, since time.Time) ([]string, time.Time, error) {
	return s.devices.SerialsForDevice(ctx, deviceLibraryID, passTypeID, since)
}

// LatestPass returns the freshly generated deliverable for a pass, plus its
// last modification instant for conditional fetches
func (s *DeviceService) LatestPass(ctx context.Context, passTypeID, serialNumber, authToken string) (*wallet.Deliverable, time.Time, error) {
	pass, err := s.authenticate(ctx, passTypeID, serialNumber, authToken)
	if err != nil {
		return nil, time.Time{}, err
	}

	tpl, err := s.templates.GetByID(ctx, pass.TemplateID)
	if err != nil {
		return nil, time.Time{}, err
	}

	content := template.Render(tpl, contentData(pass))
	generator, err := s.wallets.For(pass.Platform)
	if err != nil {
		return nil, time.Time{}, err
	}
	deliverable, err := generator.Generate(ctx, pass, tpl, content)
	if err != nil {
		return nil, time.Time{}, err
	}

	return deliverable, pass.UpdatedAt, nil
}

// LogMessages records device-reported diagnostics
func (s *DeviceService) LogMessages(messages []string) {
	for _, msg := range messages {
		s.log.Info(fmt.Sprintf("Device log: %s", msg))
	}
}
