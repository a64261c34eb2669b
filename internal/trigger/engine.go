// Package trigger evaluates device-reported location and beacon sightings
// against the owner's active passes. Trigger hits are always logged; whether
// a notification goes out depends on quiet hours, a per-location cooldown,
// and a daily cap.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/metrics"
	"github.com/passmint/wallet-service/internal/notification"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/pkg/logger"
)

// Config holds trigger engine settings
type Config struct {
	// ProximityRadiusM is the geofence match radius in meters
	ProximityRadiusM float64
	// NotifyCooldown is the minimum spacing between notifications for the
	// same location or beacon
	NotifyCooldown time.Duration
	// DailyNotifyCap bounds notifications per pass per calendar day (UTC)
	DailyNotifyCap int
}

// DefaultConfig returns the default trigger gates
func DefaultConfig() *Config {
	return &Config{
		ProximityRadiusM: 1000,
		NotifyCooldown:   30 * time.Minute,
		DailyNotifyCap:   5,
	}
}

// Engine matches reported signals to passes and applies the notification
// gates
type Engine struct {
	passes     repository.PassRepository
	analytics  repository.AnalyticsRepository
	state      repository.TriggerStateRepository
	dispatcher notification.Dispatcher
	config     *Config
	log        *logger.Logger
	now        func() time.Time
}

// New creates a trigger engine
func New(
	passes repository.PassRepository,
	analytics repository.AnalyticsRepository,
	state repository.TriggerStateRepository,
	dispatcher notification.Dispatcher,
	config *Config,
) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ProximityRadiusM <= 0 {
		config.ProximityRadiusM = 1000
	}
	if config.NotifyCooldown <= 0 {
		config.NotifyCooldown = 30 * time.Minute
	}
	if config.DailyNotifyCap <= 0 {
		config.DailyNotifyCap = 5
	}

	return &Engine{
		passes:     passes,
		analytics:  analytics,
		state:      state,
		dispatcher: dispatcher,
		config:     config,
		log:        logger.Get(),
		now:        time.Now,
	}
}

// WithClock overrides the time source for tests
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// LocationEvent is one device-reported position fix
type LocationEvent struct {
	UserID    string  `json:"user_id"`
	DeviceID  string  `json:"device_id,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BeaconEvent is one device-reported beacon sighting
type BeaconEvent struct {
	UserID        string `json:"user_id"`
	DeviceID      string `json:"device_id,omitempty"`
	ProximityUUID string `json:"proximity_uuid"`
	Major         uint16 `json:"major"`
	Minor         uint16 `json:"minor"`
}

// Result reports what happened for one matched pass
type Result struct {
	PassID string `json:"pass_id"`
	// TriggerKey identifies which configured location/beacon matched
	TriggerKey string `json:"trigger_key"`
	// Notified reports whether all three gates passed
	Notified bool `json:"notified"`
	// SuppressedBy names the gate that blocked the notification
	SuppressedBy string `json:"suppressed_by,omitempty"`
}

// ProcessLocationTrigger evaluates a position fix against the user's active
// passes. Every geofence hit is logged; the notification is gated.
func (e *Engine) ProcessLocationTrigger(ctx context.Context, event *LocationEvent) ([]*Result, error) {
	if event == nil || event.UserID == "" {
		return nil, domain.ErrInvalidUserID
	}

	passes, err := e.passes.ListActiveByUser(ctx, event.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active passes: %w", err)
	}

	var results []*Result
	for _, pass := range passes {
		loc, hit := e.matchLocation(pass, event.Latitude, event.Longitude)
		if !hit {
			continue
		}

		triggerKey := fmt.Sprintf("loc:%.5f:%.5f", loc.Latitude, loc.Longitude)
		result := e.handleHit(ctx, pass, domain.EventLocationTriggered, triggerKey, loc.RelevantText, func(a *domain.AnalyticsEvent) {
			a.WithDevice(event.DeviceID).WithLocation(event.Latitude, event.Longitude)
		})
		results = append(results, result)
	}
	return results, nil
}

// ProcessBeaconTrigger evaluates a beacon sighting against the user's active
// passes
func (e *Engine) ProcessBeaconTrigger(ctx context.Context, event *BeaconEvent) ([]*Result, error) {
	if event == nil || event.UserID == "" {
		return nil, domain.ErrInvalidUserID
	}

	passes, err := e.passes.ListActiveByUser(ctx, event.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active passes: %w", err)
	}

	var results []*Result
	for _, pass := range passes {
		beacon, hit := matchBeacon(pass, event)
		if !hit {
			continue
		}

		triggerKey := fmt.Sprintf("beacon:%s:%d:%d", event.ProximityUUID, event.Major, event.Minor)
		result := e.handleHit(ctx, pass, domain.EventBeaconTriggered, triggerKey, beacon.RelevantText, func(a *domain.AnalyticsEvent) {
			a.WithDevice(event.DeviceID).WithData(map[string]interface{}{
				"proximity_uuid": event.ProximityUUID,
				"major":          event.Major,
				"minor":          event.Minor,
			})
		})
		results = append(results, result)
	}
	return results, nil
}

// matchLocation returns the nearest configured location within the radius
func (e *Engine) matchLocation(pass *domain.Pass, lat, lon float64) (domain.Location, bool) {
	var best domain.Location
	bestDistance := e.config.ProximityRadiusM
	found := false
	for _, loc := range pass.Locations {
		d := HaversineDistance(lat, lon, loc.Latitude, loc.Longitude)
		if d <= bestDistance {
			best = loc
			bestDistance = d
			found = true
		}
	}
	return best, found
}

func matchBeacon(pass *domain.Pass, event *BeaconEvent) (domain.Beacon, bool) {
	for _, b := range pass.Beacons {
		if b.Matches(event.ProximityUUID, event.Major, event.Minor) {
			return b, true
		}
	}
	return domain.Beacon{}, false
}

// handleHit logs the trigger unconditionally, then walks the three gates and
// notifies when all pass
func (e *Engine) handleHit(ctx context.Context, pass *domain.Pass, kind domain.EventKind, triggerKey, message string, decorate func(*domain.AnalyticsEvent)) *Result {
	result := &Result{PassID: pass.ID, TriggerKey: triggerKey}
	now := e.now().UTC()

	notified, suppressedBy := e.tryNotify(ctx, pass, kind, triggerKey, message, now)
	result.Notified = notified
	result.SuppressedBy = suppressedBy
	metrics.RecordTriggerMatch(ctx, string(kind), notified, suppressedBy)

	event := domain.NewAnalyticsEvent(pass.ID, kind)
	decorate(event)
	data := event.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	data["trigger_key"] = triggerKey
	data["notified"] = notified
	if suppressedBy != "" {
		data["suppressed_by"] = suppressedBy
	}
	event.WithData(data)

	if err := e.analytics.Append(ctx, event); err != nil {
		e.log.Warn(fmt.Sprintf("Failed to log %s event for pass %s: %v", kind, pass.ID, err))
	}

	return result
}

// tryNotify applies the quiet-hours, cooldown, and daily-cap gates in order.
// Gate state errors fail open on reads (a lost counter must not silence the
// channel) but the notification itself is never retried here.
func (e *Engine) tryNotify(ctx context.Context, pass *domain.Pass, kind domain.EventKind, triggerKey, message string, now time.Time) (bool, string) {
	if pass.QuietHours.Contains(now) {
		return false, "quiet-hours"
	}

	lastAt, seen, err := e.state.LastNotified(ctx, pass.ID, triggerKey)
	if err != nil {
		e.log.Warn(fmt.Sprintf("Cooldown lookup failed for pass %s: %v", pass.ID, err))
	}
	if seen && now.Sub(lastAt) < e.config.NotifyCooldown {
		return false, "cooldown"
	}

	day := now.Format("2006-01-02")
	count, err := e.state.DailyCount(ctx, pass.ID, day)
	if err != nil {
		e.log.Warn(fmt.Sprintf("Daily counter lookup failed for pass %s: %v", pass.ID, err))
	}
	if count >= e.config.DailyNotifyCap {
		return false, "daily-cap"
	}

	if message == "" {
		message = "You are near your event"
	}
	if err := e.dispatcher.NotifyTrigger(ctx, pass, kind, message); err != nil {
		e.log.Error(fmt.Sprintf("Failed to dispatch trigger notification for pass %s: %v", pass.ID, err))
		return false, "dispatch-error"
	}

	if err := e.state.MarkNotified(ctx, pass.ID, triggerKey, now, e.config.NotifyCooldown); err != nil {
		e.log.Warn(fmt.Sprintf("Failed to record cooldown for pass %s: %v", pass.ID, err))
	}
	if _, err := e.state.IncrementDaily(ctx, pass.ID, day, 24*time.Hour); err != nil {
		e.log.Warn(fmt.Sprintf("Failed to bump daily counter for pass %s: %v", pass.ID, err))
	}

	event := domain.NewAnalyticsEvent(pass.ID, domain.EventNotificationSent).
		WithData(map[string]interface{}{"trigger_key": triggerKey, "kind": string(kind)})
	if err := e.analytics.Append(ctx, event); err != nil {
		e.log.Warn(fmt.Sprintf("Failed to log notification event for pass %s: %v", pass.ID, err))
	}

	return true, ""
}
