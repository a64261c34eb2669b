// Package token issues and verifies signed, time-bounded tokens. The same
// HMAC primitive backs QR payloads and pass-share links.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/passmint/wallet-service/internal/domain"
)

// Config holds token service settings
type Config struct {
	// Secret signs every token (HMAC-SHA256)
	Secret string
	// QRTTL bounds QR payload validity (default 24h)
	QRTTL time.Duration
	// ShareTTL is the default share-link validity (default 7 days)
	ShareTTL time.Duration
	// RotationWindow buckets rotating-QR signatures (default 30s)
	RotationWindow time.Duration
}

// Service signs and verifies token payloads
type Service struct {
	secret         []byte
	qrTTL          time.Duration
	shareTTL       time.Duration
	rotationWindow time.Duration

	// now is swappable for tests
	now func() time.Time
}

// NewService creates a token service from explicit configuration
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}

	s := &Service{
		secret:         []byte(cfg.Secret),
		qrTTL:          cfg.QRTTL,
		shareTTL:       cfg.ShareTTL,
		rotationWindow: cfg.RotationWindow,
		now:            time.Now,
	}
	if s.qrTTL <= 0 {
		s.qrTTL = 24 * time.Hour
	}
	if s.shareTTL <= 0 {
		s.shareTTL = 7 * 24 * time.Hour
	}
	if s.rotationWindow <= 0 {
		s.rotationWindow = 30 * time.Second
	}
	return s, nil
}

// WithClock overrides the time source; intended for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// QRPayload is the QR-code token payload embedded in pass barcodes
type QRPayload struct {
	TicketID       string `json:"ticketId"`
	EventID        string `json:"eventId"`
	UserID         string `json:"userId"`
	PassID         string `json:"passId"`
	ValidationCode string `json:"validationCode"`
	IssuedAt       int64  `json:"issuedAt"`
}

// SharePayload is the share-link token payload
type SharePayload struct {
	PassID    string `json:"passId"`
	OwnerID   string `json:"ownerId"`
	Nonce     string `json:"nonce"`
	IssuedAt  int64  `json:"issuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// sign computes the HMAC-SHA256 signature of the canonical payload bytes
func (s *Service) sign(canonical []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// issue encodes payload as base64url(json) + "." + signature
func (s *Service) issue(payload interface{}) (string, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(canonical) + "." + s.sign(canonical), nil
}

// verify decodes a token, checks the signature, and unmarshals into out
func (s *Service) verify(token string, out interface{}) error {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return domain.ErrTokenInvalid
	}
	canonical, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return domain.ErrTokenInvalid
	}
	if !hmac.Equal([]byte(s.sign(canonical)), []byte(sig)) {
		return domain.ErrTokenInvalid
	}
	if err := json.Unmarshal(canonical, out); err != nil {
		return domain.ErrTokenInvalid
	}
	return nil
}

// IssueQR creates a signed QR token for a pass. The validation code is a
// fresh random value stored alongside the pass for scan-side checks.
func (s *Service) IssueQR(ticketID, eventID, userID, passID string) (string, *QRPayload, error) {
	payload := &QRPayload{
		TicketID:       ticketID,
		EventID:        eventID,
		UserID:         userID,
		PassID:         passID,
		ValidationCode: uuid.New().String(),
		IssuedAt:       s.now().Unix(),
	}
	tok, err := s.issue(payload)
	if err != nil {
		return "", nil, err
	}
	return tok, payload, nil
}

// VerifyQR verifies a QR token and returns its payload. Expired tokens are
// rejected with ErrTokenExpired.
func (s *Service) VerifyQR(token string) (*QRPayload, error) {
	payload := &QRPayload{}
	if err := s.verify(token, payload); err != nil {
		return nil, err
	}
	issuedAt := time.Unix(payload.IssuedAt, 0)
	if s.now().Sub(issuedAt) >= s.qrTTL {
		return nil, domain.ErrTokenExpired
	}
	return payload, nil
}

// IssueRotatingQR creates a QR token whose signature changes once per
// rotation window without a round trip to the signer: issuedAt is bucketed
// to the window start, so re-issuing within one window is deterministic.
func (s *Service) IssueRotatingQR(ticketID, eventID, userID, passID, validationCode string) (string, error) {
	bucket := s.now().Unix() / int64(s.rotationWindow.Seconds())
	payload := &QRPayload{
		TicketID:       ticketID,
		EventID:        eventID,
		UserID:         userID,
		PassID:         passID,
		ValidationCode: validationCode,
		IssuedAt:       bucket * int64(s.rotationWindow.Seconds()),
	}
	return s.issue(payload)
}

// IssueShare creates a share token bounded by ttl (0 = service default)
func (s *Service) IssueShare(passID, ownerID string, ttl time.Duration) (string, *SharePayload, error) {
	if ttl <= 0 {
		ttl = s.shareTTL
	}
	now := s.now()
	payload := &SharePayload{
		PassID:    passID,
		OwnerID:   ownerID,
		Nonce:     uuid.New().String(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	tok, err := s.issue(payload)
	if err != nil {
		return "", nil, err
	}
	return tok, payload, nil
}

// VerifyShare verifies a share token and returns its payload
func (s *Service) VerifyShare(token string) (*SharePayload, error) {
	payload := &SharePayload{}
	if err := s.verify(token, payload); err != nil {
		return nil, err
	}
	if !s.now().Before(time.Unix(payload.ExpiresAt, 0)) {
		return nil, domain.ErrTokenExpired
	}
	return payload, nil
}

// ShareTTL returns the default share token validity
func (s *Service) ShareTTL() time.Duration {
	return s.shareTTL
}
