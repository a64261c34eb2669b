package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/template"
)

// MockGenerator is an in-memory Generator for tests and local development
// when no signing material is configured. Behavior is controllable per call.
type MockGenerator struct {
	platform domain.Platform

	mu            sync.Mutex
	generateCalls int
	updateCalls   int
	revokeCalls   int

	// FailGenerate / FailUpdate force deterministic failures
	FailGenerate bool
	FailUpdate   bool
	// FailFor forces failures for specific pass ids only
	FailFor map[string]bool
}

// NewMockGenerator creates a mock generator for the given platform
func NewMockGenerator(platform domain.Platform) *MockGenerator {
	return &MockGenerator{platform: platform, FailFor: make(map[string]bool)}
}

// Platform implements Generator
func (m *MockGenerator) Platform() domain.Platform {
	return m.platform
}

// Generate implements Generator
func (m *MockGenerator) Generate(ctx context.Context, pass *domain.Pass, tpl *domain.Template, content *template.RenderedFields) (*Deliverable, error) {
	m.mu.Lock()
	m.generateCalls++
	m.mu.Unlock()

	if m.FailGenerate || m.FailFor[pass.ID] {
		return nil, fmt.Errorf("%w: mock generation failure", domain.ErrGenerationFailed)
	}

	if m.platform == domain.PlatformGoogle {
		return &Deliverable{SaveURL: saveURLBase + "mock-" + pass.ID}, nil
	}
	return &Deliverable{
		ContentType: PKPassContentType,
		Filename:    fmt.Sprintf("pass-%s.pkpass", pass.ID),
		Data:        []byte("mock-archive-" + pass.ID),
	}, nil
}

// Update implements Generator
func (m *MockGenerator) Update(ctx context.Context, pass *domain.Pass, tpl *domain.Template, content *template.RenderedFields) error {
	m.mu.Lock()
	m.updateCalls++
	m.mu.Unlock()

	if m.FailUpdate || m.FailFor[pass.ID] {
		return fmt.Errorf("%w: mock update failure", domain.ErrGenerationFailed)
	}
	return nil
}

// Revoke implements Generator
func (m *MockGenerator) Revoke(ctx context.Context, pass *domain.Pass) error {
	m.mu.Lock()
	m.revokeCalls++
	m.mu.Unlock()
	return nil
}

// GenerateCalls returns how many times Generate ran
func (m *MockGenerator) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// UpdateCalls returns how many times Update ran
func (m *MockGenerator) UpdateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCalls
}

// RevokeCalls returns how many times Revoke ran
func (m *MockGenerator) RevokeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeCalls
}
