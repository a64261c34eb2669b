package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/metrics"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/template"
	"github.com/passmint/wallet-service/internal/token"
	"github.com/passmint/wallet-service/internal/wallet"
	"github.com/passmint/wallet-service/pkg/logger"
)

// PassServiceConfig holds pass issuance settings
type PassServiceConfig struct {
	// PassTypeIdentifier stamps every issued pass (Apple update channel key)
	PassTypeIdentifier string
	// DefaultMaxShares seeds the sharing ceiling on new passes
	DefaultMaxShares int
}

// PassService owns the pass lifecycle: issuance, delivery, verification,
// and revocation
type PassService struct {
	passes    repository.PassRepository
	templates repository.TemplateRepository
	analytics repository.AnalyticsRepository
	tokens    *token.Service
	wallets   *wallet.Registry
	config    *PassServiceConfig
	log       *logger.Logger
	now       func() time.Time
}

// NewPassService creates a pass service
func NewPassService(
	passes repository.PassRepository,
	templates repository.TemplateRepository,
	analytics repository.AnalyticsRepository,
	tokens *token.Service,
	wallets *wallet.Registry,
	config *PassServiceConfig,
) *PassService {
	if config == nil {
		config = &PassServiceConfig{}
	}
	if config.DefaultMaxShares <= 0 {
		config.DefaultMaxShares = 5
	}

	return &PassService{
		passes:    passes,
		templates: templates,
		analytics: analytics,
		tokens:    tokens,
		wallets:   wallets,
		config:    config,
		log:       logger.Get(),
		now:       time.Now,
	}
}

// WithClock overrides the time source for tests
func (s *PassService) WithClock(now func() time.Time) *PassService {
	s.now = now
	return s
}

// IssueRequest carries everything needed to cut a new pass
type IssueRequest struct {
	TicketID    string
	EventID     string
	UserID      string
	OrganizerID string
	// TemplateID is optional; empty falls back to the organizer's default
	// template for the platform
	TemplateID string
	Platform   domain.Platform
	// Data is the per-ticket render data substituted into the template
	Data      map[string]string
	ExpiresAt *time.Time
}

// IssueResult is the outcome of a successful issuance
type IssueResult struct {
	Pass        *domain.Pass
	Deliverable *wallet.Deliverable
}

// IssuePass renders, generates, and persists a new pass for a ticket.
// A ticket can hold at most one live pass; reissue requires revoking first.
func (s *PassService) IssuePass(ctx context.Context, req *IssueRequest) (*IssueResult, error) {
	if req == nil {
		return nil, domain.ErrRenderDataInvalid
	}

	if existing, err := s.passes.GetByTicket(ctx, req.TicketID); err == nil && existing != nil {
		return nil, domain.ErrTicketAlreadyHasPass
	} else if err != nil && !errors.Is(err, domain.ErrPassNotFound) {
		return nil, err
	}

	tpl, err := s.resolveTemplate(ctx, req)
	if err != nil {
		return nil, err
	}

	if violations := template.ValidateData(tpl, req.Data); len(violations) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrRenderDataInvalid, strings.Join(violations, "; "))
	}

	maxShares := tpl.Sharing.MaxShares
	if maxShares <= 0 {
		maxShares = s.config.DefaultMaxShares
	}
	pass, err := domain.NewPass(req.TicketID, req.EventID, req.UserID, tpl.ID, req.Platform, maxShares)
	if err != nil {
		return nil, err
	}
	pass.PassTypeIdentifier = s.config.PassTypeIdentifier
	pass.ExpiresAt = req.ExpiresAt
	pass.Sharing.Enabled = tpl.Sharing.Enabled
	if tpl.LocationTriggersOn {
		pass.Locations = tpl.Locations
	}
	if tpl.BeaconTriggersOn {
		pass.Beacons = tpl.Beacons
	}

	pass.Content = make(map[string]interface{}, len(req.Data))
	for key, value := range req.Data {
		pass.Content[key] = value
	}

	qrToken, payload, err := s.tokens.IssueQR(pass.TicketID, pass.EventID, pass.UserID, pass.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue QR token: %w", err)
	}
	pass.BarcodePayload = qrToken
	pass.Metadata["validation_code"] = payload.ValidationCode

	content := template.Render(tpl, req.Data)
	generator, err := s.wallets.For(pass.Platform)
	if err != nil {
		return nil, err
	}
	deliverable, err := generator.Generate(ctx, pass, tpl, content)
	if err != nil {
		pass.MarkError(err.Error())
		// Persist the failed pass so the error edge can retry regeneration
		if cerr := s.passes.Create(ctx, pass); cerr != nil {
			s.log.Error(fmt.Sprintf("Failed to persist errored pass %s: %v", pass.ID, cerr))
		}
		return nil, err
	}

	if err := pass.TransitionTo(domain.PassStatusGenerated); err != nil {
		return nil, err
	}
	if err := s.passes.Create(ctx, pass); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, domain.NewAnalyticsEvent(pass.ID, domain.EventPassCreated).
		WithData(map[string]interface{}{"platform": string(pass.Platform), "template_id": tpl.ID}))

	s.log.Info(fmt.Sprintf("Issued %s pass %s for ticket %s", pass.Platform, pass.ID, pass.TicketID))
	metrics.RecordPassIssued(ctx, string(pass.Platform))

	return &IssueResult{Pass: pass, Deliverable: deliverable}, nil
}

// resolveTemplate loads the requested template or the organizer's default,
// and requires it to be active
func (s *PassService) resolveTemplate(ctx context.Context, req *IssueRequest) (*domain.Template, error) {
	var tpl *domain.Template
	var err error
	if req.TemplateID != "" {
		tpl, err = s.templates.GetByID(ctx, req.TemplateID)
	} else {
		tpl, err = s.templates.GetDefault(ctx, req.OrganizerID, req.Platform)
	}
	if err != nil {
		return nil, err
	}
	if tpl.Status != domain.TemplateStatusActive {
		return nil, fmt.Errorf("%w: template %s is not active", domain.ErrTemplateInvalid, tpl.ID)
	}
	if tpl.Platform != req.Platform {
		return nil, fmt.Errorf("%w: template %s targets platform %s", domain.ErrTemplateInvalid, tpl.ID, tpl.Platform)
	}
	return tpl, nil
}

// GetPass loads a pass, forcing overdue expiry on the read path
func (s *PassService) GetPass(ctx context.Context, passID string) (*domain.Pass, error) {
	pass, err := s.passes.GetByID(ctx, passID)
	if err != nil {
		return nil, err
	}
	if pass.Refresh(s.now().UTC()) {
		if err := s.passes.Update(ctx, pass); err != nil {
			return nil, err
		}
	}
	return pass, nil
}

// DownloadPass regenerates the deliverable for a pass and advances it to
// delivered on first download
func (s *PassService) DownloadPass(ctx context.Context, passID string) (*domain.Pass, *wallet.Deliverable, error) {
	pass, err := s.GetPass(ctx, passID)
	if err != nil {
		return nil, nil, err
	}
	if pass.Voided() {
		return nil, nil, domain.ErrPassNotActive
	}

	tpl, err := s.templates.GetByID(ctx, pass.TemplateID)
	if err != nil {
		return nil, nil, err
	}

	content := template.Render(tpl, contentData(pass))
	generator, err := s.wallets.For(pass.Platform)
	if err != nil {
		return nil, nil, err
	}
	deliverable, err := generator.Generate(ctx, pass, tpl, content)
	if err != nil {
		return nil, nil, err
	}

	if pass.Status.CanTransitionTo(domain.PassStatusDelivered) {
		if err := pass.TransitionTo(domain.PassStatusDelivered); err != nil {
			return nil, nil, err
		}
		if err := s.passes.Update(ctx, pass); err != nil {
			return nil, nil, err
		}
	}

	s.appendEvent(ctx, domain.NewAnalyticsEvent(pass.ID, domain.EventPassDownloaded))
	metrics.RecordDownload(ctx, string(pass.Platform))

	return pass, deliverable, nil
}

// MarkInstalled advances a pass when a device registers for updates
func (s *PassService) MarkInstalled(ctx context.Context, pass *domain.Pass, deviceID string) error {
	changed := false
	if pass.Status.CanTransitionTo(domain.PassStatusInstalled) {
		if err := pass.TransitionTo(domain.PassStatusInstalled); err != nil {
			return err
		}
		changed = true
	}
	if pass.Status.CanTransitionTo(domain.PassStatusActive) {
		if err := pass.TransitionTo(domain.PassStatusActive); err != nil {
			return err
		}
		changed = true
	}
	if changed {
		if err := s.passes.Update(ctx, pass); err != nil {
			return err
		}
		s.appendEvent(ctx, domain.NewAnalyticsEvent(pass.ID, domain.EventPassInstalled).WithDevice(deviceID))
	}
	return nil
}

// RevokePass terminates a pass and voids installed copies
func (s *PassService) RevokePass(ctx context.Context, passID, reason string) (*domain.Pass, error) {
	pass, err := s.GetPass(ctx, passID)
	if err != nil {
		return nil, err
	}
	if pass.Status == domain.PassStatusRevoked {
		return pass, nil
	}
	if !pass.Status.CanTransitionTo(domain.PassStatusRevoked) {
		return nil, domain.ErrInvalidStatusTransition
	}

	pass.StatusReason = reason
	if err := pass.TransitionTo(domain.PassStatusRevoked); err != nil {
		return nil, err
	}

	generator, err := s.wallets.For(pass.Platform)
	if err != nil {
		return nil, err
	}
	if err := generator.Revoke(ctx, pass); err != nil {
		return nil, err
	}

	if err := s.passes.Update(ctx, pass); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, domain.NewAnalyticsEvent(pass.ID, domain.EventPassRevoked).
		WithData(map[string]interface{}{"reason": reason}))

	s.log.Info(fmt.Sprintf("Revoked pass %s: %s", pass.ID, reason))
	metrics.RecordPassRevoked(ctx, string(pass.Platform))
	return pass, nil
}

// VerifyQR validates a scanned QR token against the issuing pass. Scans are
// logged whether or not they verify end to end.
func (s *PassService) VerifyQR(ctx context.Context, qrToken string) (*token.QRPayload, error) {
	payload, err := s.tokens.VerifyQR(qrToken)
	if err != nil {
		return nil, err
	}

	pass, err := s.passes.GetByID(ctx, payload.PassID)
	if err != nil {
		return nil, err
	}

	scanned := domain.NewAnalyticsEvent(pass.ID, domain.EventQRScanned)
	if pass.Refresh(s.now().UTC()) {
		if uerr := s.passes.Update(ctx, pass); uerr != nil {
			return nil, uerr
		}
	}
	if pass.Voided() {
		scanned.WithData(map[string]interface{}{"accepted": false, "status": string(pass.Status)})
		s.appendEvent(ctx, scanned)
		metrics.RecordQRScan(ctx, false)
		return nil, domain.ErrPassNotActive
	}
	if code := pass.Metadata["validation_code"]; code != "" && code != payload.ValidationCode {
		scanned.WithData(map[string]interface{}{"accepted": false, "reason": "validation code mismatch"})
		s.appendEvent(ctx, scanned)
		metrics.RecordQRScan(ctx, false)
		return nil, domain.ErrTokenInvalid
	}

	scanned.WithData(map[string]interface{}{"accepted": true})
	s.appendEvent(ctx, scanned)
	metrics.RecordQRScan(ctx, true)

	return payload, nil
}

// RotatingQR issues the current rotation-window QR token for a pass
func (s *PassService) RotatingQR(ctx context.Context, passID string) (string, error) {
	pass, err := s.GetPass(ctx, passID)
	if err != nil {
		return "", err
	}
	if pass.Voided() {
		return "", domain.ErrPassNotActive
	}
	return s.tokens.IssueRotatingQR(pass.TicketID, pass.EventID, pass.UserID, pass.ID, pass.Metadata["validation_code"])
}

// RecordEngagement appends a view/open style event reported by a client
func (s *PassService) RecordEngagement(ctx context.Context, passID string, kind domain.EventKind, deviceID string) error {
	if _, err := s.passes.GetByID(ctx, passID); err != nil {
		return err
	}
	event := domain.NewAnalyticsEvent(passID, kind)
	if deviceID != "" {
		event.WithDevice(deviceID)
	}
	return s.analytics.Append(ctx, event)
}

func (s *PassService) appendEvent(ctx context.Context, event *domain.AnalyticsEvent) {
	if err := s.analytics.Append(ctx, event); err != nil {
		s.log.Warn(fmt.Sprintf("Failed to append %s event for pass %s: %v", event.Kind, event.PassID, err))
	}
}

// contentData flattens the pass content snapshot into render data
func contentData(pass *domain.Pass) map[string]string {
	data := make(map[string]string, len(pass.Content))
	for key, value := range pass.Content {
		data[key] = fmt.Sprint(value)
	}
	return data
}
