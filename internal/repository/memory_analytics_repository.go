package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
)

// MemoryAnalyticsRepository implements AnalyticsRepository using in-memory
// storage for testing and development
type MemoryAnalyticsRepository struct {
	events []*domain.AnalyticsEvent
	mu     sync.RWMutex
}

// NewMemoryAnalyticsRepository creates a new in-memory analytics repository
func NewMemoryAnalyticsRepository() *MemoryAnalyticsRepository {
	return &MemoryAnalyticsRepository{}
}

// Append stores one event
func (r *MemoryAnalyticsRepository) Append(ctx context.Context, event *domain.AnalyticsEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *event
	r.events = append(r.events, &e)
	return nil
}

// ListByPass retrieves a pass's events inside [since, until)
func (r *MemoryAnalyticsRepository) ListByPass(ctx context.Context, passID string, since, until time.Time) ([]*domain.AnalyticsEvent, error) {
	return r.ListByPasses(ctx, []string{passID}, since, until)
}

// ListByPasses retrieves events for a set of passes inside [since, until)
func (r *MemoryAnalyticsRepository) ListByPasses(ctx context.Context, passIDs []string, since, until time.Time) ([]*domain.AnalyticsEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]bool, len(passIDs))
	for _, id := range passIDs {
		wanted[id] = true
	}

	var events []*domain.AnalyticsEvent
	for _, event := range r.events {
		if !wanted[event.PassID] {
			continue
		}
		if event.CreatedAt.Before(since) || !event.CreatedAt.Before(until) {
			continue
		}
		e := *event
		events = append(events, &e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// ListAll retrieves every event inside [since, until)
func (r *MemoryAnalyticsRepository) ListAll(ctx context.Context, since, until time.Time) ([]*domain.AnalyticsEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []*domain.AnalyticsEvent
	for _, event := range r.events {
		if event.CreatedAt.Before(since) || !event.CreatedAt.Before(until) {
			continue
		}
		e := *event
		events = append(events, &e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// CountSince counts one kind of event for a pass since the given time
func (r *MemoryAnalyticsRepository) CountSince(ctx context.Context, passID string, kind domain.EventKind, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, event := range r.events {
		if event.PassID == passID && event.Kind == kind && !event.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// ArchiveOlderThan removes events past the retention window
func (r *MemoryAnalyticsRepository) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	var removed int64
	for _, event := range r.events {
		if event.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, event)
	}
	r.events = kept
	return removed, nil
}
