// Package wallet produces platform deliverables for issued passes: a signed
// .pkpass archive on the Apple path, a signed save-link on the Google path.
package wallet

import (
	"context"
	"fmt"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/template"
)

// Deliverable is the platform artifact returned to the caller
type Deliverable struct {
	// ContentType and Filename describe the downloadable body (Apple)
	ContentType string
	Filename    string
	Data        []byte
	// SaveURL is the signed save link (Google); Data is empty on that path
	SaveURL string
}

// Generator is the single contract both platform paths implement. The
// update orchestrator depends only on this interface.
type Generator interface {
	// Platform identifies which passes this generator serves
	Platform() domain.Platform
	// Generate produces the deliverable for a pass from its rendered content
	Generate(ctx context.Context, pass *domain.Pass, tpl *domain.Template, content *template.RenderedFields) (*Deliverable, error)
	// Update propagates already-merged content changes through the
	// platform's update channel
	Update(ctx context.Context, pass *domain.Pass, tpl *domain.Template, content *template.RenderedFields) error
	// Revoke forces a remote void so installed copies show as invalid
	Revoke(ctx context.Context, pass *domain.Pass) error
}

// Registry dispatches to the generator registered for a platform
type Registry struct {
	generators map[domain.Platform]Generator
}

// NewRegistry creates a registry over the given generators
func NewRegistry(generators ...Generator) *Registry {
	r := &Registry{generators: make(map[domain.Platform]Generator)}
	for _, g := range generators {
		r.generators[g.Platform()] = g
	}
	return r
}

// For returns the generator for platform
func (r *Registry) For(platform domain.Platform) (Generator, error) {
	g, ok := r.generators[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no generator registered for platform %q", domain.ErrGenerationFailed, platform)
	}
	return g, nil
}
