package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
)

// MemoryPassRepository implements PassRepository using in-memory storage
// This is useful for testing and development
type MemoryPassRepository struct {
	passes   map[string]*domain.Pass
	bySerial map[string]string // serialNumber -> passID
	byTicket map[string]string // ticketID -> passID (non-revoked)
	mu       sync.RWMutex
}

// NewMemoryPassRepository creates a new in-memory pass repository
func NewMemoryPassRepository() *MemoryPassRepository {
	return &MemoryPassRepository{
		passes:   make(map[string]*domain.Pass),
		bySerial: make(map[string]string),
		byTicket: make(map[string]string),
	}
}

// Create creates a new pass record
func (r *MemoryPassRepository) Create(ctx context.Context, pass *domain.Pass) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySerial[pass.SerialNumber]; exists {
		return domain.ErrSerialNumberTaken
	}
	if _, exists := r.byTicket[pass.TicketID]; exists {
		return domain.ErrTicketAlreadyHasPass
	}

	// Clone to avoid external modifications
	p := *pass
	r.passes[pass.ID] = &p
	r.bySerial[pass.SerialNumber] = pass.ID
	r.byTicket[pass.TicketID] = pass.ID

	return nil
}

// GetByID retrieves a pass by its ID
func (r *MemoryPassRepository) GetByID(ctx context.Context, id string) (*domain.Pass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pass, exists := r.passes[id]
	if !exists {
		return nil, domain.ErrPassNotFound
	}

	p := *pass
	return &p, nil
}

// GetBySerial retrieves a pass by its update-channel identity
func (r *MemoryPassRepository) GetBySerial(ctx context.Context, passTypeID, serialNumber string) (*domain.Pass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	passID, exists := r.bySerial[serialNumber]
	if !exists {
		return nil, domain.ErrPassNotFound
	}
	pass := r.passes[passID]
	if pass == nil || pass.PassTypeIdentifier != passTypeID {
		return nil, domain.ErrPassNotFound
	}

	p := *pass
	return &p, nil
}

// GetByTicket retrieves the non-revoked pass for a ticket
func (r *MemoryPassRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.Pass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	passID, exists := r.byTicket[ticketID]
	if !exists {
		return nil, domain.ErrPassNotFound
	}

	p := *r.passes[passID]
	return &p, nil
}

// ListActiveByUser retrieves the user's active passes
func (r *MemoryPassRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Pass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var passes []*domain.Pass
	for _, pass := range r.passes {
		if pass.UserID == userID && pass.Status == domain.PassStatusActive {
			p := *pass
			passes = append(passes, &p)
		}
	}
	sort.Slice(passes, func(i, j int) bool {
		return passes[i].CreatedAt.After(passes[j].CreatedAt)
	})
	return passes, nil
}

// ListByEvent retrieves all non-terminal passes for an event
func (r *MemoryPassRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Pass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var passes []*domain.Pass
	for _, pass := range r.passes {
		if pass.EventID == eventID && !pass.Status.IsTerminal() {
			p := *pass
			passes = append(passes, &p)
		}
	}
	sort.Slice(passes, func(i, j int) bool {
		return passes[i].CreatedAt.Before(passes[j].CreatedAt)
	})
	return passes, nil
}

// Update updates a pass guarded by its content version
func (r *MemoryPassRepository) Update(ctx context.Context, pass *domain.Pass) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.passes[pass.ID]
	if !exists {
		return domain.ErrPassNotFound
	}
	if stored.ContentVersion != pass.ContentVersion {
		return ErrVersionConflict
	}

	// A pass moving to revoked frees the ticket slot for reissue
	if pass.Status == domain.PassStatusRevoked && stored.Status != domain.PassStatusRevoked {
		delete(r.byTicket, pass.TicketID)
	}

	pass.ContentVersion++
	pass.UpdatedAt = time.Now().UTC()
	p := *pass
	r.passes[pass.ID] = &p
	return nil
}

// ListExpired retrieves non-terminal passes whose expiry instant has passed
func (r *MemoryPassRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Pass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var passes []*domain.Pass
	for _, pass := range r.passes {
		if pass.Status.IsTerminal() || !pass.IsExpiredAt(now) {
			continue
		}
		p := *pass
		passes = append(passes, &p)
	}
	sort.Slice(passes, func(i, j int) bool {
		return passes[i].ExpiresAt.Before(*passes[j].ExpiresAt)
	})
	if limit > 0 && len(passes) > limit {
		passes = passes[:limit]
	}
	return passes, nil
}

// CountByTemplate counts passes referencing a template
func (r *MemoryPassRepository) CountByTemplate(ctx context.Context, templateID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, pass := range r.passes {
		if pass.TemplateID == templateID {
			count++
		}
	}
	return count, nil
}

// CountByStatus counts passes per status across the whole fleet
func (r *MemoryPassRepository) CountByStatus(ctx context.Context) (map[domain.PassStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.PassStatus]int)
	for _, pass := range r.passes {
		counts[pass.Status]++
	}
	return counts, nil
}

// ListByTemplate retrieves all passes rendered from a template
func (r *MemoryPassRepository) ListByTemplate(ctx context.Context, templateID string) ([]*domain.Pass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var passes []*domain.Pass
	for _, pass := range r.passes {
		if pass.TemplateID == templateID {
			p := *pass
			passes = append(passes, &p)
		}
	}
	sort.Slice(passes, func(i, j int) bool {
		return passes[i].CreatedAt.Before(passes[j].CreatedAt)
	})
	return passes, nil
}
