// Package sharing implements pass sharing: bounded share grants, recipient
// gated access, and revocation.
package sharing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/metrics"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/token"
	"github.com/passmint/wallet-service/pkg/logger"
)

// DefaultMaxShares bounds shares per pass when neither the request nor the
// pass state carries a limit
const DefaultMaxShares = 5

// Config holds sharing service settings
type Config struct {
	// ShareBaseURL prefixes generated share links
	ShareBaseURL string
	// MaxShares is the per-pass share ceiling applied at issuance
	MaxShares int
}

// Service manages the sharing lifecycle of passes
type Service struct {
	passes    repository.PassRepository
	analytics repository.AnalyticsRepository
	tokens    *token.Service
	config    *Config
	log       *logger.Logger
	now       func() time.Time
}

// New creates a sharing service
func New(passes repository.PassRepository, analytics repository.AnalyticsRepository, tokens *token.Service, cfg *Config) *Service {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MaxShares <= 0 {
		cfg.MaxShares = DefaultMaxShares
	}
	return &Service{
		passes:    passes,
		analytics: analytics,
		tokens:    tokens,
		config:    cfg,
		log:       logger.Get(),
		now:       time.Now,
	}
}

// WithClock overrides the time source for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Grant is the outcome of a successful share
type Grant struct {
	ShareToken string    `json:"share_token"`
	ShareURL   string    `json:"share_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Share issues a share grant for a pass. The pass must be active and under
// its share ceiling; violating either rejects the whole request.
func (s *Service) Share(ctx context.Context, passID string, recipients []string, message string, ttl time.Duration, maxShares int) (*Grant, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", domain.ErrRenderDataInvalid)
	}

	pass, err := s.passes.GetByID(ctx, passID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if pass.Refresh(now) {
		if uerr := s.passes.Update(ctx, pass); uerr != nil {
			return nil, uerr
		}
	}
	if pass.Status != domain.PassStatusActive {
		if pass.Status == domain.PassStatusExpired {
			return nil, domain.ErrPassExpired
		}
		return nil, domain.ErrPassNotActive
	}
	if pass.Sharing.Revoked {
		return nil, domain.ErrShareRevoked
	}
	if !pass.Sharing.Enabled {
		return nil, domain.ErrSharingDisabled
	}

	limit := pass.Sharing.MaxShares
	if maxShares > 0 {
		limit = maxShares
	}
	if limit <= 0 {
		limit = s.config.MaxShares
	}
	// The ceiling counts all shares across the pass's history, not just the
	// currently valid link
	if pass.Sharing.ShareCount >= limit {
		return nil, domain.ErrShareLimitReached
	}

	shareToken, payload, err := s.tokens.IssueShare(pass.ID, pass.UserID, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to issue share token: %w", err)
	}
	expiresAt := time.Unix(payload.ExpiresAt, 0).UTC()

	pass.Sharing.ActiveToken = shareToken
	pass.Sharing.TokenExpiresAt = &expiresAt
	pass.Sharing.Recipients = normalizeRecipients(pass.Sharing.Recipients, recipients)
	pass.Sharing.ShareCount++
	pass.Sharing.MaxShares = limit
	if err := s.passes.Update(ctx, pass); err != nil {
		return nil, err
	}

	event := domain.NewAnalyticsEvent(pass.ID, domain.EventPassShared).
		WithData(map[string]interface{}{
			"recipients": len(recipients),
			"message":    message,
			"expires_at": expiresAt.Format(time.RFC3339),
		})
	if err := s.analytics.Append(ctx, event); err != nil {
		s.log.Warn(fmt.Sprintf("Failed to log shared event for pass %s: %v", pass.ID, err))
	}
	metrics.RecordShareCreated(ctx)

	return &Grant{
		ShareToken: shareToken,
		ShareURL:   strings.TrimSuffix(s.config.ShareBaseURL, "/") + "/shared/" + shareToken,
		ExpiresAt:  expiresAt,
	}, nil
}

// normalizeRecipients merges new recipients into the existing list without
// duplicates (case-insensitive)
func normalizeRecipients(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[strings.ToLower(r)] = true
	}
	out := existing
	for _, r := range added {
		key := strings.ToLower(strings.TrimSpace(r))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(r))
	}
	return out
}

// AccessShared resolves a share token for an accessor. The token must verify
// and be unexpired, sharing must not be revoked, and the accessor must be
// among the recorded recipients. Successful accesses are logged and appended
// to the bounded access history.
func (s *Service) AccessShared(ctx context.Context, shareToken, accessor string) (*domain.Pass, error) {
	payload, err := s.tokens.VerifyShare(shareToken)
	if err != nil {
		return nil, err
	}

	pass, err := s.passes.GetByID(ctx, payload.PassID)
	if err != nil {
		return nil, err
	}

	if pass.Sharing.Revoked || pass.Sharing.ActiveToken != shareToken {
		return nil, domain.ErrShareRevoked
	}
	if !pass.Sharing.IsRecipient(accessor) {
		return nil, domain.ErrNotRecipient
	}

	now := s.now().UTC()
	pass.Sharing.RecordAccess(accessor, now)
	if err := s.passes.Update(ctx, pass); err != nil {
		return nil, err
	}

	event := domain.NewAnalyticsEvent(pass.ID, domain.EventPassViewed).
		WithData(map[string]interface{}{"accessor": accessor, "via": "share"})
	if err := s.analytics.Append(ctx, event); err != nil {
		s.log.Warn(fmt.Sprintf("Failed to log shared access for pass %s: %v", pass.ID, err))
	}
	metrics.RecordShareAccessed(ctx)

	return pass, nil
}

// Revoke disables sharing for a pass. revokeAll immediately invalidates the
// active token and blocks all future sharing; otherwise only new shares are
// blocked and existing links run to their own expiry.
func (s *Service) Revoke(ctx context.Context, passID string, revokeAll bool) error {
	pass, err := s.passes.GetByID(ctx, passID)
	if err != nil {
		return err
	}

	pass.Sharing.Enabled = false
	if revokeAll {
		pass.Sharing.Revoked = true
		pass.Sharing.ActiveToken = ""
		pass.Sharing.TokenExpiresAt = nil
	}

	return s.passes.Update(ctx, pass)
}
