package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
)

// recordingDispatcher captures trigger notifications for assertions
type recordingDispatcher struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (d *recordingDispatcher) NotifyPassUpdated(ctx context.Context, pass *domain.Pass, devices []*domain.DeviceRegistration) error {
	return nil
}

func (d *recordingDispatcher) NotifyTrigger(ctx context.Context, pass *domain.Pass, kind domain.EventKind, message string) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, message)
	return nil
}

func (d *recordingDispatcher) Close() error { return nil }

func (d *recordingDispatcher) sent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.messages)
}

type engineEnv struct {
	passes     *repository.MemoryPassRepository
	analytics  *repository.MemoryAnalyticsRepository
	state      *repository.MemoryTriggerRepository
	dispatcher *recordingDispatcher
	engine     *Engine
}

func newEngineEnv(t *testing.T, cfg *Config) *engineEnv {
	t.Helper()
	env := &engineEnv{
		passes:     repository.NewMemoryPassRepository(),
		analytics:  repository.NewMemoryAnalyticsRepository(),
		state:      repository.NewMemoryTriggerRepository(),
		dispatcher: &recordingDispatcher{},
	}
	env.engine = New(env.passes, env.analytics, env.state, env.dispatcher, cfg)
	return env
}

func (env *engineEnv) addActivePass(t *testing.T, ticketID, userID string, mutate func(*domain.Pass)) *domain.Pass {
	t.Helper()
	pass, err := domain.NewPass(ticketID, "evt-1", userID, "tpl-1", domain.PlatformApple, 5)
	if err != nil {
		t.Fatalf("NewPass() error: %v", err)
	}
	pass.Status = domain.PassStatusActive
	if mutate != nil {
		mutate(pass)
	}
	if err := env.passes.Create(context.Background(), pass); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return pass
}

func (env *engineEnv) eventCount(t *testing.T, passID string, kind domain.EventKind) int {
	t.Helper()
	count, err := env.analytics.CountSince(context.Background(), passID, kind, time.Time{})
	if err != nil {
		t.Fatalf("CountSince() error: %v", err)
	}
	return count
}

func TestProcessLocationTrigger_GeofenceMatch(t *testing.T) {
	env := newEngineEnv(t, nil)
	pass := env.addActivePass(t, "tkt-1", "user-1", func(p *domain.Pass) {
		p.Locations = []domain.Location{{Latitude: 0, Longitude: 0, RelevantText: "Gates open soon"}}
	})

	// ~997m away, inside the 1000m radius
	results, err := env.engine.ProcessLocationTrigger(context.Background(), &LocationEvent{
		UserID: "user-1", DeviceID: "dev-1", Latitude: 0.008970, Longitude: 0,
	})
	if err != nil {
		t.Fatalf("ProcessLocationTrigger() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if !results[0].Notified || results[0].SuppressedBy != "" {
		t.Errorf("result = %+v, want notified", results[0])
	}
	if env.dispatcher.sent() != 1 {
		t.Errorf("dispatched notifications = %d, want 1", env.dispatcher.sent())
	}
	if env.dispatcher.messages[0] != "Gates open soon" {
		t.Errorf("message = %q, want the location's relevant text", env.dispatcher.messages[0])
	}
	if got := env.eventCount(t, pass.ID, domain.EventLocationTriggered); got != 1 {
		t.Errorf("logged trigger events = %d, want 1", got)
	}
	if got := env.eventCount(t, pass.ID, domain.EventNotificationSent); got != 1 {
		t.Errorf("logged notification events = %d, want 1", got)
	}
}

func TestProcessLocationTrigger_OutsideRadius(t *testing.T) {
	env := newEngineEnv(t, nil)
	env.addActivePass(t, "tkt-1", "user-1", func(p *domain.Pass) {
		p.Locations = []domain.Location{{Latitude: 0, Longitude: 0}}
	})

	// ~1001m away, just outside the radius
	results, err := env.engine.ProcessLocationTrigger(context.Background(), &LocationEvent{
		UserID: "user-1", Latitude: 0.009002, Longitude: 0,
	})
	if err != nil {
		t.Fatalf("ProcessLocationTrigger() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want none outside the geofence", len(results))
	}
	if env.dispatcher.sent() != 0 {
		t.Errorf("dispatched notifications = %d, want 0", env.dispatcher.sent())
	}
}

func TestProcessLocationTrigger_QuietHours(t *testing.T) {
	env := newEngineEnv(t, nil)
	env.engine.WithClock(func() time.Time {
		return time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC)
	})
	pass := env.addActivePass(t, "tkt-1", "user-1", func(p *domain.Pass) {
		p.Locations = []domain.Location{{Latitude: 0, Longitude: 0}}
		p.QuietHours = domain.QuietHours{Enabled: true, StartHour: 22, EndHour: 7}
	})

	results, err := env.engine.ProcessLocationTrigger(context.Background(), &LocationEvent{
		UserID: "user-1", Latitude: 0, Longitude: 0,
	})
	if err != nil {
		t.Fatalf("ProcessLocationTrigger() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Notified || results[0].SuppressedBy != "quiet-hours" {
		t.Errorf("result = %+v, want suppressed by quiet-hours", results[0])
	}
	if env.dispatcher.sent() != 0 {
		t.Errorf("dispatched notifications = %d, want 0", env.dispatcher.sent())
	}
	// The trigger itself is still logged
	if got := env.eventCount(t, pass.ID, domain.EventLocationTriggered); got != 1 {
		t.Errorf("logged trigger events = %d, want 1", got)
	}
}

func TestProcessLocationTrigger_Cooldown(t *testing.T) {
	env := newEngineEnv(t, nil)
	env.addActivePass(t, "tkt-1", "user-1", func(p *domain.Pass) {
		p.Locations = []domain.Location{{Latitude: 0, Longitude: 0}}
	})
	event := &LocationEvent{UserID: "user-1", Latitude: 0, Longitude: 0}

	first, err := env.engine.ProcessLocationTrigger(context.Background(), event)
	if err != nil {
		t.Fatalf("ProcessLocationTrigger() error: %v", err)
	}
	if !first[0].Notified {
		t.Fatal("first hit must notify")
	}

	second, err := env.engine.ProcessLocationTrigger(context.Background(), event)
	if err != nil {
		t.Fatalf("ProcessLocationTrigger() error: %v", err)
	}
	if second[0].Notified || second[0].SuppressedBy != "cooldown" {
		t.Errorf("second hit = %+v, want suppressed by cooldown", second[0])
	}
	if env.dispatcher.sent() != 1 {
		t.Errorf("dispatched notifications = %d, want 1", env.dispatcher.sent())
	}
}

func TestProcessLocationTrigger_DailyCap(t *testing.T) {
	// Cooldown short enough to never gate; the daily cap takes over
	env := newEngineEnv(t, &Config{
		ProximityRadiusM: 1000,
		NotifyCooldown:   time.Nanosecond,
		DailyNotifyCap:   5,
	})
	pass := env.addActivePass(t, "tkt-1", "user-1", func(p *domain.Pass) {
		p.Locations = []domain.Location{{Latitude: 0, Longitude: 0}}
	})
	event := &LocationEvent{UserID: "user-1", Latitude: 0, Longitude: 0}

	for i := 0; i < 5; i++ {
		results, err := env.engine.ProcessLocationTrigger(context.Background(), event)
		if err != nil {
			t.Fatalf("hit %d: ProcessLocationTrigger() error: %v", i+1, err)
		}
		if !results[0].Notified {
			t.Fatalf("hit %d: = %+v, want notified", i+1, results[0])
		}
	}

	sixth, err := env.engine.ProcessLocationTrigger(context.Background(), event)
	if err != nil {
		t.Fatalf("ProcessLocationTrigger() error: %v", err)
	}
	if sixth[0].Notified || sixth[0].SuppressedBy != "daily-cap" {
		t.Errorf("sixth hit = %+v, want suppressed by daily-cap", sixth[0])
	}
	if env.dispatcher.sent() != 5 {
		t.Errorf("dispatched notifications = %d, want 5", env.dispatcher.sent())
	}
	// All six hits logged regardless of gating
	if got := env.eventCount(t, pass.ID, domain.EventLocationTriggered); got != 6 {
		t.Errorf("logged trigger events = %d, want 6", got)
	}
}

func TestProcessLocationTrigger_DispatchError(t *testing.T) {
	env := newEngineEnv(t, nil)
	env.dispatcher.err = errors.New("broker unavailable")
	pass := env.addActivePass(t, "tkt-1", "user-1", func(p *domain.Pass) {
		p.Locations = []domain.Location{{Latitude: 0, Longitude: 0}}
	})

	results, err := env.engine.ProcessLocationTrigger(context.Background(), &LocationEvent{
		UserID: "user-1", Latitude: 0, Longitude: 0,
	})
	if err != nil {
		t.Fatalf("ProcessLocationTrigger() error: %v", err)
	}
	if results[0].Notified || results[0].SuppressedBy != "dispatch-error" {
		t.Errorf("result = %+v, want suppressed by dispatch-error", results[0])
	}
	if got := env.eventCount(t, pass.ID, domain.EventLocationTriggered); got != 1 {
		t.Errorf("logged trigger events = %d, want 1", got)
	}
}

func TestProcessLocationTrigger_InvalidEvent(t *testing.T) {
	env := newEngineEnv(t, nil)

	if _, err := env.engine.ProcessLocationTrigger(context.Background(), nil); !errors.Is(err, domain.ErrInvalidUserID) {
		t.Errorf("nil event error = %v, want %v", err, domain.ErrInvalidUserID)
	}
	if _, err := env.engine.ProcessLocationTrigger(context.Background(), &LocationEvent{}); !errors.Is(err, domain.ErrInvalidUserID) {
		t.Errorf("missing user error = %v, want %v", err, domain.ErrInvalidUserID)
	}
}

func TestProcessBeaconTrigger(t *testing.T) {
	major := uint16(7)
	env := newEngineEnv(t, nil)
	pass := env.addActivePass(t, "tkt-1", "user-1", func(p *domain.Pass) {
		p.Beacons = []domain.Beacon{{ProximityUUID: "venue-uuid", Major: &major, RelevantText: "Welcome to the venue"}}
	})

	results, err := env.engine.ProcessBeaconTrigger(context.Background(), &BeaconEvent{
		UserID: "user-1", ProximityUUID: "VENUE-UUID", Major: 7, Minor: 3,
	})
	if err != nil {
		t.Fatalf("ProcessBeaconTrigger() error: %v", err)
	}
	if len(results) != 1 || !results[0].Notified {
		t.Fatalf("results = %+v, want one notified hit", results)
	}
	if got := env.eventCount(t, pass.ID, domain.EventBeaconTriggered); got != 1 {
		t.Errorf("logged beacon events = %d, want 1", got)
	}

	// Pinned major mismatch never matches
	miss, err := env.engine.ProcessBeaconTrigger(context.Background(), &BeaconEvent{
		UserID: "user-1", ProximityUUID: "venue-uuid", Major: 8,
	})
	if err != nil {
		t.Fatalf("ProcessBeaconTrigger() error: %v", err)
	}
	if len(miss) != 0 {
		t.Errorf("results = %d, want none for mismatched major", len(miss))
	}
}

func TestProcessLocationTrigger_OnlyActivePasses(t *testing.T) {
	env := newEngineEnv(t, nil)
	env.addActivePass(t, "tkt-1", "user-1", func(p *domain.Pass) {
		p.Status = domain.PassStatusRevoked
		p.Locations = []domain.Location{{Latitude: 0, Longitude: 0}}
	})

	results, err := env.engine.ProcessLocationTrigger(context.Background(), &LocationEvent{
		UserID: "user-1", Latitude: 0, Longitude: 0,
	})
	if err != nil {
		t.Fatalf("ProcessLocationTrigger() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, revoked passes must not trigger", len(results))
	}
}
