package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/passmint/wallet-service/pkg/redis"
)

// RedisTriggerRepository implements TriggerStateRepository on Redis. Cooldown
// marks and daily counters are best-effort and expire on their own, so a
// Redis flush only risks one extra notification per pass.
type RedisTriggerRepository struct {
	client *redis.Client
}

// NewRedisTriggerRepository creates a new RedisTriggerRepository
func NewRedisTriggerRepository(client *redis.Client) *RedisTriggerRepository {
	return &RedisTriggerRepository{client: client}
}

func cooldownKey(passID, triggerKey string) string {
	return fmt.Sprintf("trigger:cooldown:%s:%s", passID, triggerKey)
}

func dailyKey(passID, day string) string {
	return fmt.Sprintf("trigger:daily:%s:%s", passID, day)
}

// LastNotified returns when the pass was last notified for triggerKey
func (r *RedisTriggerRepository) LastNotified(ctx context.Context, passID, triggerKey string) (time.Time, bool, error) {
	value, err := r.client.Get(ctx, cooldownKey(passID, triggerKey))
	if err != nil {
		if redis.IsNil(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt cooldown value for %s: %w", passID, err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// MarkNotified records a notification instant; the key expires with the
// cooldown window so no cleanup is needed
func (r *RedisTriggerRepository) MarkNotified(ctx context.Context, passID, triggerKey string, at time.Time, ttl time.Duration) error {
	return r.client.Set(ctx, cooldownKey(passID, triggerKey), at.Unix(), ttl)
}

// DailyCount returns notifications already sent for the pass on day
func (r *RedisTriggerRepository) DailyCount(ctx context.Context, passID, day string) (int, error) {
	value, err := r.client.Get(ctx, dailyKey(passID, day))
	if err != nil {
		if redis.IsNil(err) {
			return 0, nil
		}
		return 0, err
	}
	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("corrupt daily counter for %s: %w", passID, err)
	}
	return count, nil
}

// IncrementDaily bumps the day's counter, setting the expiry on first use
func (r *RedisTriggerRepository) IncrementDaily(ctx context.Context, passID, day string, ttl time.Duration) (int64, error) {
	key := dailyKey(passID, day)
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, ttl); err != nil {
			return count, err
		}
	}
	return count, nil
}
