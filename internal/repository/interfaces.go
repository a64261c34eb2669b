package repository

import (
	"context"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
)

// PassRepository persists issued passes
type PassRepository interface {
	// Create stores a new pass, enforcing one non-revoked pass per ticket
	// and global serial number uniqueness
	Create(ctx context.Context, pass *domain.Pass) error
	GetByID(ctx context.Context, id string) (*domain.Pass, error)
	GetBySerial(ctx context.Context, passTypeID, serialNumber string) (*domain.Pass, error)
	// GetByTicket returns the non-revoked pass for a ticket, if any
	GetByTicket(ctx context.Context, ticketID string) (*domain.Pass, error)
	// ListActiveByUser returns the user's active passes (trigger matching)
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Pass, error)
	// ListByEvent returns all non-terminal passes for an event (bulk fanout)
	ListByEvent(ctx context.Context, eventID string) ([]*domain.Pass, error)
	// Update persists the pass using its ContentVersion for optimistic
	// concurrency; a stale version returns ErrVersionConflict
	Update(ctx context.Context, pass *domain.Pass) error
	// ListExpired returns non-terminal passes whose expiry instant passed
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Pass, error)
	// CountByTemplate reports how many passes reference a template
	CountByTemplate(ctx context.Context, templateID string) (int, error)
	// CountByStatus reports the fleet-wide pass count per status
	CountByStatus(ctx context.Context) (map[domain.PassStatus]int, error)
	// ListByTemplate returns all passes rendered from a template
	ListByTemplate(ctx context.Context, templateID string) ([]*domain.Pass, error)
}

// TemplateRepository persists pass templates
type TemplateRepository interface {
	Create(ctx context.Context, tpl *domain.Template) error
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	// GetDefault returns the default template for (organizer, platform)
	GetDefault(ctx context.Context, organizerID string, platform domain.Platform) (*domain.Template, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]*domain.Template, error)
	Update(ctx context.Context, tpl *domain.Template) error
	Delete(ctx context.Context, id string) error
	// ClearDefault unsets the default flag for (organizer, platform) so a
	// new default can be promoted
	ClearDefault(ctx context.Context, organizerID string, platform domain.Platform) error
}

// JobRepository persists the durable update-job queue
type JobRepository interface {
	CreateBatch(ctx context.Context, jobs []*domain.UpdateJob) error
	GetByID(ctx context.Context, id string) (*domain.UpdateJob, error)
	// ClaimDue atomically claims up to limit due pending jobs, moving them
	// to processing. Ordering is priority weight desc, then scheduled time.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.UpdateJob, error)
	Update(ctx context.Context, job *domain.UpdateJob) error
	ListByBatch(ctx context.Context, batchID string) ([]*domain.UpdateJob, error)
	// CancelPendingByBatch cancels jobs still pending; processing jobs run on
	CancelPendingByBatch(ctx context.Context, batchID string) (int, error)
}

// AnalyticsRepository persists the append-only event log
type AnalyticsRepository interface {
	Append(ctx context.Context, event *domain.AnalyticsEvent) error
	ListByPass(ctx context.Context, passID string, since, until time.Time) ([]*domain.AnalyticsEvent, error)
	ListByPasses(ctx context.Context, passIDs []string, since, until time.Time) ([]*domain.AnalyticsEvent, error)
	// ListAll retrieves every event inside [since, until)
	ListAll(ctx context.Context, since, until time.Time) ([]*domain.AnalyticsEvent, error)
	// CountSince counts events of one kind for a pass since the given time
	CountSince(ctx context.Context, passID string, kind domain.EventKind, since time.Time) (int, error)
	// ArchiveOlderThan removes events past the retention window
	ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeviceRepository persists device registrations for the update channel
type DeviceRepository interface {
	// Register stores a registration; returns false when it already existed
	Register(ctx context.Context, reg *domain.DeviceRegistration) (bool, error)
	Unregister(ctx context.Context, deviceLibraryID, passTypeID, serialNumber string) error
	// SerialsForDevice lists serials registered to a device with passes
	// updated since the given time, plus the latest update instant
	SerialsForDevice(ctx context.Context, deviceLibraryID, passTypeID string, since time.Time) ([]string, time.Time, error)
	// DevicesForPass lists registrations to notify about a pass change
	DevicesForPass(ctx context.Context, passTypeID, serialNumber string) ([]*domain.DeviceRegistration, error)
}

// TriggerStateRepository tracks notification cooldowns and daily counters.
// Counters are best-effort: a lost race may over- or under-count by one.
type TriggerStateRepository interface {
	// LastNotified returns when the pass was last notified for triggerKey
	LastNotified(ctx context.Context, passID, triggerKey string) (time.Time, bool, error)
	MarkNotified(ctx context.Context, passID, triggerKey string, at time.Time, ttl time.Duration) error
	// DailyCount returns notifications already sent for the pass on day
	DailyCount(ctx context.Context, passID, day string) (int, error)
	IncrementDaily(ctx context.Context, passID, day string, ttl time.Duration) (int64, error)
}

// ErrVersionConflict is returned by Update when the content snapshot was
// modified concurrently; callers reload and retry.
var ErrVersionConflict = versionConflictError{}

type versionConflictError struct{}

func (versionConflictError) Error() string { return "pass content version conflict" }
