package wallet

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/metrics"
	"github.com/passmint/wallet-service/internal/template"
	"github.com/passmint/wallet-service/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// PKPassContentType is the MIME type of an Apple pass deliverable
const PKPassContentType = "application/vnd.apple.pkpass"

// AppleConfig holds the Apple packager settings
type AppleConfig struct {
	PassTypeIdentifier string
	TeamIdentifier     string
	OrganizationName   string
	// WebServiceURL is the device registration endpoint base advertised
	// inside every pass
	WebServiceURL string
	CertPath      string
	KeyPath       string
	WWDRCertPath  string
	// AssetTimeout bounds remote image fetches
	AssetTimeout time.Duration
}

// ApplePackager builds and signs .pkpass archives
type ApplePackager struct {
	config *AppleConfig
	cert   *x509.Certificate
	wwdr   *x509.Certificate
	key    *rsa.PrivateKey
	assets AssetFetcher
}

// AssetFetcher loads image assets referenced by a template
type AssetFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPAssetFetcher fetches assets over HTTP with a bounded timeout
type HTTPAssetFetcher struct {
	client *http.Client
}

// NewHTTPAssetFetcher creates an asset fetcher with the given timeout
func NewHTTPAssetFetcher(timeout time.Duration) *HTTPAssetFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAssetFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads one asset
func (f *HTTPAssetFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid asset url %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset %s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 5<<20))
}

// NewApplePackager loads the signing material and returns a ready packager.
// Missing or unparsable certificates/keys fail construction; generation is
// never attempted with partial material.
func NewApplePackager(cfg *AppleConfig, assets AssetFetcher) (*ApplePackager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("apple config is required")
	}
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		return nil, fmt.Errorf("apple signing certificate and key paths are required")
	}

	cert, err := loadCertificate(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing certificate: %w", err)
	}
	key, err := loadPrivateKey(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	var wwdr *x509.Certificate
	if cfg.WWDRCertPath != "" {
		if wwdr, err = loadCertificate(cfg.WWDRCertPath); err != nil {
			return nil, fmt.Errorf("failed to load intermediate certificate: %w", err)
		}
	}

	if assets == nil {
		assets = NewHTTPAssetFetcher(cfg.AssetTimeout)
	}

	return &ApplePackager{config: cfg, cert: cert, wwdr: wwdr, key: key, assets: assets}, nil
}

// Platform implements Generator
func (p *ApplePackager) Platform() domain.Platform {
	return domain.PlatformApple
}

// Generate compiles pass.json, hashes all assets into a manifest, signs the
// manifest, and packages everything into a single archive. Any failure
// aborts with no partial archive.
func (p *ApplePackager) Generate(ctx context.Context, pass *domain.Pass, tpl *domain.Template, content *template.RenderedFields) (*Deliverable, error) {
	ctx, span := telemetry.StartSpan(ctx, "wallet.apple.generate")
	defer span.End()
	span.SetAttributes(attribute.String("pass_id", pass.ID))

	started := time.Now()
	defer func() {
		metrics.RecordGenerateDuration(ctx, string(domain.PlatformApple), time.Since(started).Seconds())
	}()

	passJSON, err := p.buildPassJSON(pass, tpl, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}

	assets := map[string][]byte{"pass.json": passJSON}
	if err := p.collectImages(ctx, tpl, assets); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}

	manifest, err := buildManifest(assets)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build manifest: %v", domain.ErrGenerationFailed, err)
	}
	signature, err := signManifest(manifest, p.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}

	archive, err := writeArchive(assets, manifest, signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}

	return &Deliverable{
		ContentType: PKPassContentType,
		Filename:    fmt.Sprintf("pass-%s.pkpass", pass.ID),
		Data:        archive,
	}, nil
}

// Update regenerates the archive to prove the new content signs cleanly.
// Devices pull the fresh archive through the registration web service, so
// there is no remote object to patch on this path.
func (p *ApplePackager) Update(ctx context.Context, pass *domain.Pass, tpl *domain.Template, content *template.RenderedFields) error {
	_, err := p.Generate(ctx, pass, tpl, content)
	return err
}

// Revoke is satisfied by the voided flag in the regenerated pass.json;
// installed copies render as invalid on their next fetch.
func (p *ApplePackager) Revoke(ctx context.Context, pass *domain.Pass) error {
	return nil
}

// appleField mirrors the PassKit field dictionary
type appleField struct {
	Key           string `json:"key"`
	Label         string `json:"label,omitempty"`
	Value         string `json:"value"`
	ChangeMessage string `json:"changeMessage,omitempty"`
	TextAlignment string `json:"textAlignment,omitempty"`
}

func toAppleFields(fields []template.RenderedField) []appleField {
	if len(fields) == 0 {
		return nil
	}
	out := make([]appleField, 0, len(fields))
	for _, f := range fields {
		out = append(out, appleField{
			Key:           f.Key,
			Label:         f.Label,
			Value:         f.Value,
			ChangeMessage: f.ChangeMessage,
			TextAlignment: f.TextAlignment,
		})
	}
	return out
}

func (p *ApplePackager) buildPassJSON(pass *domain.Pass, tpl *domain.Template, content *template.RenderedFields) ([]byte, error) {
	doc := map[string]interface{}{
		"formatVersion":       1,
		"passTypeIdentifier":  p.config.PassTypeIdentifier,
		"serialNumber":        pass.SerialNumber,
		"teamIdentifier":      p.config.TeamIdentifier,
		"organizationName":    p.config.OrganizationName,
		"description":         tpl.Name,
		"authenticationToken": pass.AuthenticationToken,
		"voided":              pass.Voided(),
		"eventTicket": map[string]interface{}{
			"headerFields":    toAppleFields(content.Header),
			"primaryFields":   toAppleFields(content.Primary),
			"secondaryFields": toAppleFields(content.Secondary),
			"auxiliaryFields": toAppleFields(content.Auxiliary),
			"backFields":      toAppleFields(content.Back),
		},
	}

	if p.config.WebServiceURL != "" {
		doc["webServiceURL"] = p.config.WebServiceURL
	}
	if tpl.Appearance.BackgroundColor != "" {
		doc["backgroundColor"] = tpl.Appearance.BackgroundColor
	}
	if tpl.Appearance.ForegroundColor != "" {
		doc["foregroundColor"] = tpl.Appearance.ForegroundColor
	}
	if tpl.Appearance.LabelColor != "" {
		doc["labelColor"] = tpl.Appearance.LabelColor
	}
	if tpl.Appearance.LogoText != "" {
		doc["logoText"] = tpl.Appearance.LogoText
	}
	if pass.ExpiresAt != nil {
		doc["expirationDate"] = pass.ExpiresAt.UTC().Format(time.RFC3339)
	}

	if tpl.Barcode.Enabled && pass.BarcodePayload != "" {
		doc["barcodes"] = []map[string]interface{}{{
			"format":          appleBarcodeFormat(tpl.Barcode.Format),
			"message":         pass.BarcodePayload,
			"messageEncoding": "iso-8859-1",
			"altText":         tpl.Barcode.AltText,
		}}
	}

	if len(pass.Locations) > 0 {
		locations := make([]map[string]interface{}, 0, len(pass.Locations))
		for _, loc := range pass.Locations {
			locations = append(locations, map[string]interface{}{
				"latitude":     loc.Latitude,
				"longitude":    loc.Longitude,
				"relevantText": loc.RelevantText,
			})
		}
		doc["locations"] = locations
	}

	if len(pass.Beacons) > 0 {
		beacons := make([]map[string]interface{}, 0, len(pass.Beacons))
		for _, b := range pass.Beacons {
			entry := map[string]interface{}{
				"proximityUUID": b.ProximityUUID,
				"relevantText":  b.RelevantText,
			}
			if b.Major != nil {
				entry["major"] = *b.Major
			}
			if b.Minor != nil {
				entry["minor"] = *b.Minor
			}
			beacons = append(beacons, entry)
		}
		doc["beacons"] = beacons
	}

	return json.Marshal(doc)
}

func appleBarcodeFormat(f domain.BarcodeFormat) string {
	switch f {
	case domain.BarcodeFormatPDF417:
		return "PKBarcodeFormatPDF417"
	case domain.BarcodeFormatAztec:
		return "PKBarcodeFormatAztec"
	case domain.BarcodeFormatCode128:
		return "PKBarcodeFormatCode128"
	default:
		return "PKBarcodeFormatQR"
	}
}

// collectImages fetches template images into the archive asset map
func (p *ApplePackager) collectImages(ctx context.Context, tpl *domain.Template, assets map[string][]byte) error {
	images := map[string]string{
		"icon.png":  tpl.Appearance.IconURL,
		"logo.png":  tpl.Appearance.LogoURL,
		"strip.png": tpl.Appearance.StripImageURL,
	}
	for name, url := range images {
		if url == "" {
			continue
		}
		data, err := p.assets.Fetch(ctx, url)
		if err != nil {
			return err
		}
		assets[name] = data
	}
	return nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	return x509.ParseCertificate(block.Bytes)
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key in %s is not RSA", path)
	}
	return key, nil
}
