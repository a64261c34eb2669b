package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
)

// MemoryTemplateRepository implements TemplateRepository using in-memory
// storage for testing and development
type MemoryTemplateRepository struct {
	templates map[string]*domain.Template
	mu        sync.RWMutex
}

// NewMemoryTemplateRepository creates a new in-memory template repository
func NewMemoryTemplateRepository() *MemoryTemplateRepository {
	return &MemoryTemplateRepository{
		templates: make(map[string]*domain.Template),
	}
}

// Create creates a new template record
func (r *MemoryTemplateRepository) Create(ctx context.Context, tpl *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := *tpl
	r.templates[tpl.ID] = &t
	return nil
}

// GetByID retrieves a template by its ID
func (r *MemoryTemplateRepository) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tpl, exists := r.templates[id]
	if !exists {
		return nil, domain.ErrTemplateNotFound
	}

	t := *tpl
	return &t, nil
}

// GetDefault retrieves the default active template for (organizer, platform)
func (r *MemoryTemplateRepository) GetDefault(ctx context.Context, organizerID string, platform domain.Platform) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tpl := range r.templates {
		if tpl.OrganizerID == organizerID && tpl.Platform == platform &&
			tpl.IsDefault && tpl.Status == domain.TemplateStatusActive {
			t := *tpl
			return &t, nil
		}
	}
	return nil, domain.ErrTemplateNotFound
}

// ListByOrganizer retrieves all templates owned by an organizer
func (r *MemoryTemplateRepository) ListByOrganizer(ctx context.Context, organizerID string) ([]*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var templates []*domain.Template
	for _, tpl := range r.templates {
		if tpl.OrganizerID == organizerID {
			t := *tpl
			templates = append(templates, &t)
		}
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})
	return templates, nil
}

// Update updates a template
func (r *MemoryTemplateRepository) Update(ctx context.Context, tpl *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[tpl.ID]; !exists {
		return domain.ErrTemplateNotFound
	}

	tpl.UpdatedAt = time.Now().UTC()
	t := *tpl
	r.templates[tpl.ID] = &t
	return nil
}

// Delete removes a template
func (r *MemoryTemplateRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[id]; !exists {
		return domain.ErrTemplateNotFound
	}
	delete(r.templates, id)
	return nil
}

// ClearDefault unsets the default flag for (organizer, platform)
func (r *MemoryTemplateRepository) ClearDefault(ctx context.Context, organizerID string, platform domain.Platform) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tpl := range r.templates {
		if tpl.OrganizerID == organizerID && tpl.Platform == platform && tpl.IsDefault {
			tpl.IsDefault = false
			tpl.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}
