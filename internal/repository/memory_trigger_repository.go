package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryTriggerRepository implements TriggerStateRepository using in-memory
// storage for testing and development. Expiry is checked lazily on read.
type MemoryTriggerRepository struct {
	cooldowns map[string]memoryEntry
	daily     map[string]memoryCounter
	mu        sync.Mutex
	now       func() time.Time
}

type memoryEntry struct {
	at        time.Time
	expiresAt time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryTriggerRepository creates a new in-memory trigger state repository
func NewMemoryTriggerRepository() *MemoryTriggerRepository {
	return &MemoryTriggerRepository{
		cooldowns: make(map[string]memoryEntry),
		daily:     make(map[string]memoryCounter),
		now:       time.Now,
	}
}

// WithClock overrides the time source for tests
func (r *MemoryTriggerRepository) WithClock(now func() time.Time) *MemoryTriggerRepository {
	r.now = now
	return r
}

// LastNotified returns when the pass was last notified for triggerKey
func (r *MemoryTriggerRepository) LastNotified(ctx context.Context, passID, triggerKey string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.cooldowns[cooldownKey(passID, triggerKey)]
	if !exists || r.now().After(entry.expiresAt) {
		return time.Time{}, false, nil
	}
	return entry.at, true, nil
}

// MarkNotified records a notification instant with a cooldown TTL
func (r *MemoryTriggerRepository) MarkNotified(ctx context.Context, passID, triggerKey string, at time.Time, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cooldowns[cooldownKey(passID, triggerKey)] = memoryEntry{at: at, expiresAt: r.now().Add(ttl)}
	return nil
}

// DailyCount returns notifications already sent for the pass on day
func (r *MemoryTriggerRepository) DailyCount(ctx context.Context, passID, day string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter, exists := r.daily[dailyKey(passID, day)]
	if !exists || r.now().After(counter.expiresAt) {
		return 0, nil
	}
	return int(counter.count), nil
}

// IncrementDaily bumps the day's counter, setting the expiry on first use
func (r *MemoryTriggerRepository) IncrementDaily(ctx context.Context, passID, day string, ttl time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dailyKey(passID, day)
	counter, exists := r.daily[key]
	if !exists || r.now().After(counter.expiresAt) {
		counter = memoryCounter{expiresAt: r.now().Add(ttl)}
	}
	counter.count++
	r.daily[key] = counter
	return counter.count, nil
}
