// Package analytics folds the append-only event log into engagement
// summaries. Aggregation is pure: it never writes pass state.
package analytics

import (
	"context"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
)

// Engagement score weights per event kind
const (
	weightView        = 1.0
	weightShare       = 3.0
	weightQRScan      = 2.0
	weightLocationHit = 1.5
	weightBeaconHit   = 1.5
)

// DefaultScoreCeiling is the normalization ceiling applied when none is
// configured
const DefaultScoreCeiling = 100.0

// Config holds analytics service settings
type Config struct {
	// ScoreCeiling is the raw engagement score that normalizes to 1.0;
	// scores at or above the ceiling clamp
	ScoreCeiling float64
}

// Summary is the aggregate view of one pass or one pass population
type Summary struct {
	Views            int     `json:"views"`
	Shares           int     `json:"shares"`
	QRScans          int     `json:"qr_scans"`
	LocationTriggers int     `json:"location_triggers"`
	BeaconTriggers   int     `json:"beacon_triggers"`
	Installs         int     `json:"installs"`
	Downloads        int     `json:"downloads"`
	UniqueDevices    int     `json:"unique_devices"`
	TotalEvents      int     `json:"total_events"`
	EngagementScore  float64 `json:"engagement_score"`
	// NormalizedScore maps the raw score onto [0, 1] against the configured
	// ceiling
	NormalizedScore float64 `json:"normalized_score"`

	CountsByKind map[string]int `json:"counts_by_kind"`

	FirstEventAt *time.Time `json:"first_event_at,omitempty"`
	LastEventAt  *time.Time `json:"last_event_at,omitempty"`
}

// Aggregate folds events into a summary. The fold is total: unknown event
// kinds count toward totals but carry no engagement weight.
func Aggregate(events []*domain.AnalyticsEvent) *Summary {
	s := &Summary{CountsByKind: make(map[string]int)}
	devices := make(map[string]bool)

	for _, event := range events {
		s.TotalEvents++
		s.CountsByKind[string(event.Kind)]++
		if event.DeviceID != "" {
			devices[event.DeviceID] = true
		}

		switch event.Kind {
		case domain.EventPassViewed, domain.EventPassOpened:
			s.Views++
		case domain.EventPassShared:
			s.Shares++
		case domain.EventQRScanned:
			s.QRScans++
		case domain.EventLocationTriggered:
			s.LocationTriggers++
		case domain.EventBeaconTriggered:
			s.BeaconTriggers++
		case domain.EventPassInstalled:
			s.Installs++
		case domain.EventPassDownloaded:
			s.Downloads++
		}

		at := event.CreatedAt
		if s.FirstEventAt == nil || at.Before(*s.FirstEventAt) {
			t := at
			s.FirstEventAt = &t
		}
		if s.LastEventAt == nil || at.After(*s.LastEventAt) {
			t := at
			s.LastEventAt = &t
		}
	}

	s.UniqueDevices = len(devices)
	s.EngagementScore = float64(s.Views)*weightView +
		float64(s.Shares)*weightShare +
		float64(s.QRScans)*weightQRScan +
		float64(s.LocationTriggers)*weightLocationHit +
		float64(s.BeaconTriggers)*weightBeaconHit
	return s
}

// PeriodComparison contrasts two adjacent windows of the same length
type PeriodComparison struct {
	Current  *Summary `json:"current"`
	Previous *Summary `json:"previous"`
	// ScoreDelta is current minus previous engagement score
	ScoreDelta float64 `json:"score_delta"`
	// ScoreDeltaPct is the delta relative to the previous score, in percent.
	// A quiet previous window with current activity reports 100.
	ScoreDeltaPct float64 `json:"score_delta_pct"`
}

// Overview is the fleet-wide aggregate with per-status pass counts
type Overview struct {
	TotalPasses    int            `json:"total_passes"`
	PassesByStatus map[string]int `json:"passes_by_status"`
	Engagement     *Summary       `json:"engagement"`
}

// TemplateSummary rolls up every pass rendered from one template
type TemplateSummary struct {
	TemplateID string   `json:"template_id"`
	PassCount  int      `json:"pass_count"`
	Engagement *Summary `json:"engagement"`
}

// Service answers aggregate queries from the event log
type Service struct {
	analytics    repository.AnalyticsRepository
	passes       repository.PassRepository
	templates    repository.TemplateRepository
	scoreCeiling float64
}

// NewService creates an analytics service. A nil config falls back to the
// default normalization ceiling.
func NewService(analytics repository.AnalyticsRepository, passes repository.PassRepository, templates repository.TemplateRepository, cfg *Config) *Service {
	ceiling := DefaultScoreCeiling
	if cfg != nil && cfg.ScoreCeiling > 0 {
		ceiling = cfg.ScoreCeiling
	}
	return &Service{analytics: analytics, passes: passes, templates: templates, scoreCeiling: ceiling}
}

// normalize clamps the raw engagement score onto [0, 1]
func (s *Service) normalize(summary *Summary) *Summary {
	summary.NormalizedScore = summary.EngagementScore / s.scoreCeiling
	if summary.NormalizedScore > 1 {
		summary.NormalizedScore = 1
	}
	return summary
}

// boundWindow closes an open-ended [since, until) so repositories always see
// concrete bounds
func boundWindow(since, until time.Time) (time.Time, time.Time) {
	if until.IsZero() {
		until = time.Now().UTC().Add(time.Second)
	}
	return since, until
}

// PassSummary aggregates one pass over [since, until)
func (s *Service) PassSummary(ctx context.Context, passID string, since, until time.Time) (*Summary, error) {
	// Reject unknown passes rather than returning an empty summary
	if _, err := s.passes.GetByID(ctx, passID); err != nil {
		return nil, err
	}
	since, until = boundWindow(since, until)
	events, err := s.analytics.ListByPass(ctx, passID, since, until)
	if err != nil {
		return nil, err
	}
	return s.normalize(Aggregate(events)), nil
}

// EventSummary aggregates every pass of an event over [since, until)
func (s *Service) EventSummary(ctx context.Context, eventID string, since, until time.Time) (*Summary, error) {
	passes, err := s.passes.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	passIDs := make([]string, 0, len(passes))
	for _, pass := range passes {
		passIDs = append(passIDs, pass.ID)
	}

	since, until = boundWindow(since, until)
	events, err := s.analytics.ListByPasses(ctx, passIDs, since, until)
	if err != nil {
		return nil, err
	}
	return s.normalize(Aggregate(events)), nil
}

// Overview aggregates the whole fleet over [since, until) alongside the
// per-status pass counts
func (s *Service) Overview(ctx context.Context, since, until time.Time) (*Overview, error) {
	counts, err := s.passes.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byStatus := make(map[string]int, len(counts))
	total := 0
	for status, count := range counts {
		byStatus[string(status)] = count
		total += count
	}

	since, until = boundWindow(since, until)
	events, err := s.analytics.ListAll(ctx, since, until)
	if err != nil {
		return nil, err
	}
	return &Overview{
		TotalPasses:    total,
		PassesByStatus: byStatus,
		Engagement:     s.normalize(Aggregate(events)),
	}, nil
}

// TemplateSummary rolls up the passes rendered from one template over
// [since, until)
func (s *Service) TemplateSummary(ctx context.Context, templateID string, since, until time.Time) (*TemplateSummary, error) {
	// Reject unknown templates rather than returning an empty rollup
	if _, err := s.templates.GetByID(ctx, templateID); err != nil {
		return nil, err
	}
	passes, err := s.passes.ListByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	passIDs := make([]string, 0, len(passes))
	for _, pass := range passes {
		passIDs = append(passIDs, pass.ID)
	}

	since, until = boundWindow(since, until)
	events, err := s.analytics.ListByPasses(ctx, passIDs, since, until)
	if err != nil {
		return nil, err
	}
	return &TemplateSummary{
		TemplateID: templateID,
		PassCount:  len(passes),
		Engagement: s.normalize(Aggregate(events)),
	}, nil
}

// ComparePeriods contrasts [until-window, until) with the window before it
func (s *Service) ComparePeriods(ctx context.Context, passID string, until time.Time, window time.Duration) (*PeriodComparison, error) {
	current, err := s.PassSummary(ctx, passID, until.Add(-window), until)
	if err != nil {
		return nil, err
	}
	previous, err := s.PassSummary(ctx, passID, until.Add(-2*window), until.Add(-window))
	if err != nil {
		return nil, err
	}

	delta := current.EngagementScore - previous.EngagementScore
	deltaPct := 0.0
	switch {
	case previous.EngagementScore > 0:
		deltaPct = delta / previous.EngagementScore * 100
	case current.EngagementScore > 0:
		deltaPct = 100
	}
	return &PeriodComparison{
		Current:       current,
		Previous:      previous,
		ScoreDelta:    delta,
		ScoreDeltaPct: deltaPct,
	}, nil
}
