package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
)

func TestAggregate_Weights(t *testing.T) {
	events := []*domain.AnalyticsEvent{
		domain.NewAnalyticsEvent("pass-1", domain.EventPassViewed),
		domain.NewAnalyticsEvent("pass-1", domain.EventPassViewed).WithDevice("dev-a"),
		domain.NewAnalyticsEvent("pass-1", domain.EventPassOpened).WithDevice("dev-a"),
		domain.NewAnalyticsEvent("pass-1", domain.EventPassShared),
		domain.NewAnalyticsEvent("pass-1", domain.EventQRScanned).WithDevice("dev-b"),
		domain.NewAnalyticsEvent("pass-1", domain.EventQRScanned),
		domain.NewAnalyticsEvent("pass-1", domain.EventLocationTriggered),
		domain.NewAnalyticsEvent("pass-1", domain.EventBeaconTriggered),
		domain.NewAnalyticsEvent("pass-1", domain.EventNotificationSent),
	}

	s := Aggregate(events)

	if s.TotalEvents != 9 {
		t.Errorf("total events = %d, want 9", s.TotalEvents)
	}
	if s.Views != 3 || s.Shares != 1 || s.QRScans != 2 {
		t.Errorf("views/shares/scans = %d/%d/%d, want 3/1/2", s.Views, s.Shares, s.QRScans)
	}
	if s.LocationTriggers != 1 || s.BeaconTriggers != 1 {
		t.Errorf("location/beacon = %d/%d, want 1/1", s.LocationTriggers, s.BeaconTriggers)
	}
	if s.UniqueDevices != 2 {
		t.Errorf("unique devices = %d, want 2", s.UniqueDevices)
	}
	// 3*1.0 + 1*3.0 + 2*2.0 + 1*1.5 + 1*1.5
	if s.EngagementScore != 13.0 {
		t.Errorf("engagement score = %v, want 13.0", s.EngagementScore)
	}
	if s.CountsByKind["notification-sent"] != 1 {
		t.Errorf("counts by kind = %v, want notification-sent counted", s.CountsByKind)
	}
	if s.FirstEventAt == nil || s.LastEventAt == nil {
		t.Error("first/last event timestamps must be set")
	}
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil)
	if s.TotalEvents != 0 || s.EngagementScore != 0 {
		t.Errorf("empty fold = %+v, want zero summary", s)
	}
	if s.FirstEventAt != nil || s.LastEventAt != nil {
		t.Error("empty fold must carry no timestamps")
	}
	if s.CountsByKind == nil {
		t.Error("counts map must be allocated")
	}
}

type analyticsEnv struct {
	passes    *repository.MemoryPassRepository
	templates *repository.MemoryTemplateRepository
	analytics *repository.MemoryAnalyticsRepository
	svc       *Service
}

func newAnalyticsEnv(t *testing.T) *analyticsEnv {
	t.Helper()
	env := &analyticsEnv{
		passes:    repository.NewMemoryPassRepository(),
		templates: repository.NewMemoryTemplateRepository(),
		analytics: repository.NewMemoryAnalyticsRepository(),
	}
	env.svc = NewService(env.analytics, env.passes, env.templates, nil)
	return env
}

func (env *analyticsEnv) addPass(t *testing.T, ticketID string) *domain.Pass {
	t.Helper()
	return env.addPassForTemplate(t, ticketID, "tpl-1")
}

func (env *analyticsEnv) addPassForTemplate(t *testing.T, ticketID, templateID string) *domain.Pass {
	t.Helper()
	pass, err := domain.NewPass(ticketID, "evt-1", "user-1", templateID, domain.PlatformApple, 5)
	if err != nil {
		t.Fatalf("NewPass() error: %v", err)
	}
	if err := env.passes.Create(context.Background(), pass); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return pass
}

func (env *analyticsEnv) addTemplate(t *testing.T) *domain.Template {
	t.Helper()
	tpl, err := domain.NewTemplate("org-1", domain.PlatformApple, "Event Ticket")
	if err != nil {
		t.Fatalf("NewTemplate() error: %v", err)
	}
	if err := env.templates.Create(context.Background(), tpl); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return tpl
}

func (env *analyticsEnv) append(t *testing.T, passID string, kind domain.EventKind, at time.Time) {
	t.Helper()
	event := domain.NewAnalyticsEvent(passID, kind)
	event.CreatedAt = at
	if err := env.analytics.Append(context.Background(), event); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
}

func TestPassSummary(t *testing.T) {
	env := newAnalyticsEnv(t)
	pass := env.addPass(t, "tkt-1")
	now := time.Now().UTC()

	env.append(t, pass.ID, domain.EventPassViewed, now.Add(-10*time.Minute))
	env.append(t, pass.ID, domain.EventQRScanned, now.Add(-5*time.Minute))
	// Outside the queried window
	env.append(t, pass.ID, domain.EventPassShared, now.Add(-2*time.Hour))

	summary, err := env.svc.PassSummary(context.Background(), pass.ID, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("PassSummary() error: %v", err)
	}
	if summary.TotalEvents != 2 {
		t.Errorf("total events = %d, want 2 inside the window", summary.TotalEvents)
	}
	if summary.EngagementScore != 3.0 {
		t.Errorf("engagement score = %v, want 3.0", summary.EngagementScore)
	}
}

func TestPassSummary_UnknownPass(t *testing.T) {
	env := newAnalyticsEnv(t)
	_, err := env.svc.PassSummary(context.Background(), "missing", time.Time{}, time.Now().UTC())
	if !errors.Is(err, domain.ErrPassNotFound) {
		t.Errorf("PassSummary() error = %v, want %v", err, domain.ErrPassNotFound)
	}
}

func TestEventSummary(t *testing.T) {
	env := newAnalyticsEnv(t)
	first := env.addPass(t, "tkt-1")
	second := env.addPass(t, "tkt-2")
	now := time.Now().UTC()

	env.append(t, first.ID, domain.EventPassViewed, now.Add(-time.Minute))
	env.append(t, second.ID, domain.EventPassViewed, now.Add(-time.Minute))
	env.append(t, second.ID, domain.EventPassShared, now.Add(-time.Minute))

	summary, err := env.svc.EventSummary(context.Background(), "evt-1", now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("EventSummary() error: %v", err)
	}
	if summary.TotalEvents != 3 {
		t.Errorf("total events = %d, want 3 across both passes", summary.TotalEvents)
	}
	if summary.Views != 2 || summary.Shares != 1 {
		t.Errorf("views/shares = %d/%d, want 2/1", summary.Views, summary.Shares)
	}
}

func TestComparePeriods(t *testing.T) {
	env := newAnalyticsEnv(t)
	pass := env.addPass(t, "tkt-1")
	now := time.Now().UTC()

	// Previous window: one view. Current window: one view and one share.
	env.append(t, pass.ID, domain.EventPassViewed, now.Add(-90*time.Minute))
	env.append(t, pass.ID, domain.EventPassViewed, now.Add(-30*time.Minute))
	env.append(t, pass.ID, domain.EventPassShared, now.Add(-20*time.Minute))

	cmp, err := env.svc.ComparePeriods(context.Background(), pass.ID, now, time.Hour)
	if err != nil {
		t.Fatalf("ComparePeriods() error: %v", err)
	}
	if cmp.Current.EngagementScore != 4.0 {
		t.Errorf("current score = %v, want 4.0", cmp.Current.EngagementScore)
	}
	if cmp.Previous.EngagementScore != 1.0 {
		t.Errorf("previous score = %v, want 1.0", cmp.Previous.EngagementScore)
	}
	if cmp.ScoreDelta != 3.0 {
		t.Errorf("score delta = %v, want 3.0", cmp.ScoreDelta)
	}
	if cmp.ScoreDeltaPct != 300.0 {
		t.Errorf("score delta pct = %v, want 300.0", cmp.ScoreDeltaPct)
	}
}

func TestComparePeriods_QuietPreviousWindow(t *testing.T) {
	env := newAnalyticsEnv(t)
	pass := env.addPass(t, "tkt-1")
	now := time.Now().UTC()

	env.append(t, pass.ID, domain.EventPassViewed, now.Add(-30*time.Minute))

	cmp, err := env.svc.ComparePeriods(context.Background(), pass.ID, now, time.Hour)
	if err != nil {
		t.Fatalf("ComparePeriods() error: %v", err)
	}
	if cmp.Previous.EngagementScore != 0 {
		t.Fatalf("previous score = %v, want 0", cmp.Previous.EngagementScore)
	}
	if cmp.ScoreDeltaPct != 100.0 {
		t.Errorf("score delta pct = %v, growth from a quiet window must report 100", cmp.ScoreDeltaPct)
	}
}

func TestOverview(t *testing.T) {
	env := newAnalyticsEnv(t)
	first := env.addPass(t, "tkt-1")
	second := env.addPass(t, "tkt-2")
	now := time.Now().UTC()

	revoked, _ := env.passes.GetByID(context.Background(), second.ID)
	revoked.Status = domain.PassStatusRevoked
	if err := env.passes.Update(context.Background(), revoked); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	env.append(t, first.ID, domain.EventPassViewed, now.Add(-time.Minute))
	env.append(t, second.ID, domain.EventPassShared, now.Add(-time.Minute))
	// Outside the queried window
	env.append(t, first.ID, domain.EventQRScanned, now.Add(-2*time.Hour))

	overview, err := env.svc.Overview(context.Background(), now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Overview() error: %v", err)
	}
	if overview.TotalPasses != 2 {
		t.Errorf("total passes = %d, want 2", overview.TotalPasses)
	}
	wantStatus := map[string]int{
		string(first.Status):             1,
		string(domain.PassStatusRevoked): 1,
	}
	for status, want := range wantStatus {
		if got := overview.PassesByStatus[status]; got != want {
			t.Errorf("passes by status[%s] = %d, want %d", status, got, want)
		}
	}
	if overview.Engagement.TotalEvents != 2 {
		t.Errorf("total events = %d, want 2 inside the window", overview.Engagement.TotalEvents)
	}
	// 1*1.0 + 1*3.0 against the default ceiling of 100
	if overview.Engagement.NormalizedScore != 0.04 {
		t.Errorf("normalized score = %v, want 0.04", overview.Engagement.NormalizedScore)
	}
}

func TestTemplateSummary(t *testing.T) {
	env := newAnalyticsEnv(t)
	tpl := env.addTemplate(t)
	first := env.addPassForTemplate(t, "tkt-1", tpl.ID)
	second := env.addPassForTemplate(t, "tkt-2", tpl.ID)
	other := env.addPassForTemplate(t, "tkt-3", "tpl-other")
	now := time.Now().UTC()

	env.append(t, first.ID, domain.EventPassViewed, now.Add(-time.Minute))
	env.append(t, second.ID, domain.EventQRScanned, now.Add(-time.Minute))
	// Another template's traffic must not leak into the rollup
	env.append(t, other.ID, domain.EventPassShared, now.Add(-time.Minute))

	summary, err := env.svc.TemplateSummary(context.Background(), tpl.ID, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("TemplateSummary() error: %v", err)
	}
	if summary.PassCount != 2 {
		t.Errorf("pass count = %d, want 2", summary.PassCount)
	}
	if summary.Engagement.TotalEvents != 2 {
		t.Errorf("total events = %d, want 2", summary.Engagement.TotalEvents)
	}
	if summary.Engagement.EngagementScore != 3.0 {
		t.Errorf("engagement score = %v, want 3.0", summary.Engagement.EngagementScore)
	}
}

func TestTemplateSummary_UnknownTemplate(t *testing.T) {
	env := newAnalyticsEnv(t)
	_, err := env.svc.TemplateSummary(context.Background(), "missing", time.Time{}, time.Now().UTC())
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Errorf("TemplateSummary() error = %v, want %v", err, domain.ErrTemplateNotFound)
	}
}

func TestNormalizedScore_ConfiguredCeiling(t *testing.T) {
	env := newAnalyticsEnv(t)
	env.svc = NewService(env.analytics, env.passes, env.templates, &Config{ScoreCeiling: 4.0})
	pass := env.addPass(t, "tkt-1")
	now := time.Now().UTC()

	env.append(t, pass.ID, domain.EventPassViewed, now.Add(-time.Minute))
	env.append(t, pass.ID, domain.EventPassViewed, now.Add(-time.Minute))

	summary, err := env.svc.PassSummary(context.Background(), pass.ID, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("PassSummary() error: %v", err)
	}
	if summary.NormalizedScore != 0.5 {
		t.Errorf("normalized score = %v, want 0.5 against a ceiling of 4", summary.NormalizedScore)
	}

	env.append(t, pass.ID, domain.EventPassShared, now.Add(-time.Minute))
	env.append(t, pass.ID, domain.EventPassShared, now.Add(-time.Minute))

	summary, err = env.svc.PassSummary(context.Background(), pass.ID, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("PassSummary() error: %v", err)
	}
	if summary.NormalizedScore != 1.0 {
		t.Errorf("normalized score = %v, scores past the ceiling must clamp to 1", summary.NormalizedScore)
	}
}
