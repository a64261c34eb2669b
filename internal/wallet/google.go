package wallet

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/metrics"
	"github.com/passmint/wallet-service/internal/template"
	"github.com/passmint/wallet-service/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// saveURLBase is where the signed save JWT is redeemed
const saveURLBase = "https://pay.google.com/gp/v/save/"

// GoogleConfig holds the Google object builder settings
type GoogleConfig struct {
	IssuerID       string
	ServiceAccount string
	KeyPath        string
	APIBaseURL     string
	// CallTimeout bounds every remote API call
	CallTimeout time.Duration
	// Origins allowed to render the save button
	Origins []string
}

// GoogleBuilder registers remote wallet classes/objects and issues signed
// save tokens
type GoogleBuilder struct {
	config *GoogleConfig
	key    *rsa.PrivateKey
	client *http.Client
	now    func() time.Time
}

// NewGoogleBuilder loads the signing key and returns a ready builder
func NewGoogleBuilder(cfg *GoogleConfig) (*GoogleBuilder, error) {
	if cfg == nil || cfg.IssuerID == "" || cfg.ServiceAccount == "" {
		return nil, fmt.Errorf("google issuer id and service account are required")
	}
	if cfg.KeyPath == "" {
		return nil, fmt.Errorf("google signing key path is required")
	}

	key, err := loadPrivateKey(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load google signing key: %w", err)
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GoogleBuilder{
		config: cfg,
		key:    key,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}, nil
}

// Platform implements Generator
func (g *GoogleBuilder) Platform() domain.Platform {
	return domain.PlatformGoogle
}

// classID derives the per-event remote class identifier
func (g *GoogleBuilder) classID(eventID string) string {
	return fmt.Sprintf("%s.event_%s", g.config.IssuerID, sanitizeID(eventID))
}

// objectID derives the per-pass remote object identifier
func (g *GoogleBuilder) objectID(pass *domain.Pass) string {
	return fmt.Sprintf("%s.%s", g.config.IssuerID, sanitizeID(pass.SerialNumber))
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// Generate ensures the event class exists, registers the pass object, and
// returns a signed save link. The save token, not the raw object, is the
// deliverable.
func (g *GoogleBuilder) Generate(ctx context.Context, pass *domain.Pass, tpl *domain.Template, content *template.RenderedFields) (*Deliverable, error) {
	ctx, span := telemetry.StartSpan(ctx, "wallet.google.generate")
	defer span.End()
	span.SetAttributes(attribute.String("pass_id", pass.ID))

	started := g.now()
	defer func() {
		metrics.RecordGenerateDuration(ctx, string(domain.PlatformGoogle), time.Since(started).Seconds())
	}()

	if err := g.ensureClass(ctx, pass.EventID, tpl); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}

	object := g.buildObject(pass, tpl, content)
	if err := g.upsertObject(ctx, g.objectID(pass), object); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	pass.GoogleObjectID = g.objectID(pass)

	saveJWT, err := g.signSaveToken(object)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}

	return &Deliverable{SaveURL: saveURLBase + saveJWT}, nil
}

// Update patches the remote object with the regenerated content
func (g *GoogleBuilder) Update(ctx context.Context, pass *domain.Pass, tpl *domain.Template, content *template.RenderedFields) error {
	ctx, span := telemetry.StartSpan(ctx, "wallet.google.update")
	defer span.End()

	object := g.buildObject(pass, tpl, content)
	if err := g.patchObject(ctx, g.objectID(pass), object); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	return nil
}

// Revoke expires the remote object so installed copies show as invalid
func (g *GoogleBuilder) Revoke(ctx context.Context, pass *domain.Pass) error {
	ctx, span := telemetry.StartSpan(ctx, "wallet.google.revoke")
	defer span.End()

	patch := map[string]interface{}{"state": "EXPIRED"}
	if err := g.patchObject(ctx, g.objectID(pass), patch); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	return nil
}

// ensureClass creates the per-event class if absent, otherwise updates it
func (g *GoogleBuilder) ensureClass(ctx context.Context, eventID string, tpl *domain.Template) error {
	classID := g.classID(eventID)
	class := map[string]interface{}{
		"id":           classID,
		"issuerName":   tpl.Name,
		"reviewStatus": "UNDER_REVIEW",
	}
	if tpl.Appearance.BackgroundColor != "" {
		class["hexBackgroundColor"] = tpl.Appearance.BackgroundColor
	}
	if tpl.Appearance.LogoURL != "" {
		class["logo"] = map[string]interface{}{
			"sourceUri": map[string]string{"uri": tpl.Appearance.LogoURL},
		}
	}

	status, err := g.call(ctx, http.MethodGet, "/eventTicketClass/"+classID, nil)
	switch {
	case err != nil:
		return err
	case status == http.StatusNotFound:
		if status, err = g.call(ctx, http.MethodPost, "/eventTicketClass", class); err != nil {
			return err
		}
		if status >= 300 {
			return fmt.Errorf("class create returned status %d", status)
		}
	case status == http.StatusOK:
		if status, err = g.call(ctx, http.MethodPut, "/eventTicketClass/"+classID, class); err != nil {
			return err
		}
		if status >= 300 {
			return fmt.Errorf("class update returned status %d", status)
		}
	default:
		return fmt.Errorf("class lookup returned status %d", status)
	}
	return nil
}

func (g *GoogleBuilder) upsertObject(ctx context.Context, objectID string, object map[string]interface{}) error {
	status, err := g.call(ctx, http.MethodPost, "/eventTicketObject", object)
	if err != nil {
		return err
	}
	if status == http.StatusConflict {
		// Already registered from a previous attempt; converge via patch
		return g.patchObject(ctx, objectID, object)
	}
	if status >= 300 {
		return fmt.Errorf("object create returned status %d", status)
	}
	return nil
}

func (g *GoogleBuilder) patchObject(ctx context.Context, objectID string, patch map[string]interface{}) error {
	status, err := g.call(ctx, http.MethodPatch, "/eventTicketObject/"+objectID, patch)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("object patch returned status %d", status)
	}
	return nil
}

// call performs one wallet API request and returns the HTTP status
func (g *GoogleBuilder) call(ctx context.Context, method, path string, body interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build wallet API request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("wallet API call failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, nil
}

func (g *GoogleBuilder) buildObject(pass *domain.Pass, tpl *domain.Template, content *template.RenderedFields) map[string]interface{} {
	state := "ACTIVE"
	if pass.Voided() {
		state = "EXPIRED"
	}

	object := map[string]interface{}{
		"id":      g.objectID(pass),
		"classId": g.classID(pass.EventID),
		"state":   state,
	}

	if pass.BarcodePayload != "" && tpl.Barcode.Enabled {
		object["barcode"] = map[string]interface{}{
			"type":          googleBarcodeType(tpl.Barcode.Format),
			"value":         pass.BarcodePayload,
			"alternateText": tpl.Barcode.AltText,
		}
	}

	if pass.ExpiresAt != nil {
		object["validTimeInterval"] = map[string]interface{}{
			"end": map[string]string{"date": pass.ExpiresAt.UTC().Format(time.RFC3339)},
		}
	}

	var modules []map[string]interface{}
	for _, f := range append(append([]template.RenderedField{}, content.Primary...), content.Secondary...) {
		modules = append(modules, map[string]interface{}{
			"header": f.Label,
			"body":   f.Value,
			"id":     f.Key,
		})
	}
	if len(modules) > 0 {
		object["textModulesData"] = modules
	}

	if len(pass.Locations) > 0 {
		locations := make([]map[string]float64, 0, len(pass.Locations))
		for _, loc := range pass.Locations {
			locations = append(locations, map[string]float64{
				"latitude":  loc.Latitude,
				"longitude": loc.Longitude,
			})
		}
		object["locations"] = locations
	}

	return object
}

func googleBarcodeType(f domain.BarcodeFormat) string {
	switch f {
	case domain.BarcodeFormatPDF417:
		return "PDF_417"
	case domain.BarcodeFormatAztec:
		return "AZTEC"
	case domain.BarcodeFormatCode128:
		return "CODE_128"
	default:
		return "QR_CODE"
	}
}

// signSaveToken issues the signed, time-stamped save JWT for the object
func (g *GoogleBuilder) signSaveToken(object map[string]interface{}) (string, error) {
	claims := jwt.MapClaims{
		"iss": g.config.ServiceAccount,
		"aud": "google",
		"typ": "savetowallet",
		"iat": g.now().Unix(),
		"payload": map[string]interface{}{
			"eventTicketObjects": []map[string]interface{}{object},
		},
	}
	if len(g.config.Origins) > 0 {
		claims["origins"] = g.config.Origins
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(g.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign save token: %w", err)
	}
	return signed, nil
}
