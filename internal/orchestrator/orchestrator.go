package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/metrics"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/pkg/logger"
)

// fieldUpdateCoalesceDelay spaces out ordinary field edits so rapid
// consecutive edits collapse into one regeneration per pass
const fieldUpdateCoalesceDelay = 5 * time.Minute

// Config holds orchestrator settings
type Config struct {
	// FieldUpdateDelay overrides the coalescing delay for field updates
	FieldUpdateDelay time.Duration
	MaxRetries       int
}

// Orchestrator turns business events and bulk requests into durable update
// jobs. Execution happens in the update worker; this layer only schedules.
type Orchestrator struct {
	jobs   repository.JobRepository
	passes repository.PassRepository
	config *Config
	now    func() time.Time
}

// New creates an Orchestrator
func New(jobs repository.JobRepository, passes repository.PassRepository, cfg *Config) *Orchestrator {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.FieldUpdateDelay <= 0 {
		cfg.FieldUpdateDelay = fieldUpdateCoalesceDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = domain.DefaultMaxRetries
	}
	return &Orchestrator{
		jobs:   jobs,
		passes: passes,
		config: cfg,
		now:    time.Now,
	}
}

// WithClock overrides the time source for tests
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// ItemResult reports the scheduling outcome for one pass in a bulk request
type ItemResult struct {
	PassID   string `json:"pass_id"`
	JobID    string `json:"job_id,omitempty"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// BulkResult is the outcome of one bulk scheduling request
type BulkResult struct {
	BatchID   string       `json:"batch_id"`
	Requested int          `json:"requested"`
	Accepted  int          `json:"accepted"`
	Rejected  int          `json:"rejected"`
	Items     []ItemResult `json:"items"`
}

// ScheduleBulkUpdate creates one job per pass id, all sharing a batch id.
// Unknown or terminal passes are rejected per item; the rest of the batch
// still schedules.
func (o *Orchestrator) ScheduleBulkUpdate(ctx context.Context, passIDs []string, kind domain.UpdateKind, delta map[string]interface{}, priority domain.JobPriority, scheduledFor time.Time) (*BulkResult, error) {
	if len(passIDs) == 0 {
		return nil, fmt.Errorf("%w: no pass ids given", domain.ErrRenderDataInvalid)
	}
	if !kind.Valid() {
		return nil, domain.ErrInvalidUpdateKind
	}

	if scheduledFor.IsZero() {
		scheduledFor = o.now().UTC()
	}

	result := &BulkResult{
		BatchID:   uuid.New().String(),
		Requested: len(passIDs),
	}

	var jobs []*domain.UpdateJob
	for _, passID := range passIDs {
		pass, err := o.passes.GetByID(ctx, passID)
		if err != nil {
			result.Rejected++
			result.Items = append(result.Items, ItemResult{PassID: passID, Error: err.Error()})
			continue
		}
		if pass.Status.IsTerminal() && kind != domain.UpdateKindStatus {
			result.Rejected++
			result.Items = append(result.Items, ItemResult{PassID: passID, Error: domain.ErrPassNotActive.Error()})
			continue
		}

		job, err := domain.NewUpdateJob(result.BatchID, passID, kind, delta, priority, scheduledFor)
		if err != nil {
			result.Rejected++
			result.Items = append(result.Items, ItemResult{PassID: passID, Error: err.Error()})
			continue
		}
		job.MaxRetries = o.config.MaxRetries
		jobs = append(jobs, job)
		result.Accepted++
		result.Items = append(result.Items, ItemResult{PassID: passID, JobID: job.ID, Accepted: true})
	}

	if len(jobs) > 0 {
		if err := o.jobs.CreateBatch(ctx, jobs); err != nil {
			return nil, fmt.Errorf("failed to persist update jobs: %w", err)
		}
		metrics.RecordScheduled(ctx, string(kind), int64(len(jobs)))
	}

	log := logger.Get()
	log.Info(fmt.Sprintf("Scheduled update batch %s: kind=%s accepted=%d rejected=%d",
		result.BatchID, kind, result.Accepted, result.Rejected))

	return result, nil
}

// BusinessEventType classifies an inbound ticketing platform event
type BusinessEventType string

const (
	BusinessEventCancelled    BusinessEventType = "event-cancelled"
	BusinessEventPostponed    BusinessEventType = "event-postponed"
	BusinessEventRescheduled  BusinessEventType = "event-rescheduled"
	BusinessEventVenueChanged BusinessEventType = "venue-changed"
	BusinessEventFieldsEdited BusinessEventType = "fields-edited"
)

// BusinessEvent is one inbound change notice from the ticketing platform
type BusinessEvent struct {
	EventID string                 `json:"event_id"`
	Type    BusinessEventType      `json:"type"`
	Changes map[string]interface{} `json:"changes,omitempty"`
}

// mapBusinessEvent resolves the deterministic (kind, priority, delayed) for
// an event type. Cancellation and postponement preempt everything; venue
// changes run next; ordinary edits are delayed to coalesce.
func mapBusinessEvent(t BusinessEventType) (domain.UpdateKind, domain.JobPriority, bool, error) {
	switch t {
	case BusinessEventCancelled, BusinessEventPostponed:
		return domain.UpdateKindStatus, domain.PriorityUrgent, false, nil
	case BusinessEventVenueChanged:
		return domain.UpdateKindLocation, domain.PriorityHigh, false, nil
	case BusinessEventRescheduled, BusinessEventFieldsEdited:
		return domain.UpdateKindField, domain.PriorityNormal, true, nil
	default:
		return "", "", false, fmt.Errorf("%w: unknown business event type %q", domain.ErrInvalidUpdateKind, t)
	}
}

// HandleBusinessEvent fans one ticketing platform event out to every
// non-terminal pass of the event
func (o *Orchestrator) HandleBusinessEvent(ctx context.Context, event *BusinessEvent) (*BulkResult, error) {
	if event == nil || event.EventID == "" {
		return nil, domain.ErrInvalidEventID
	}

	kind, priority, delayed, err := mapBusinessEvent(event.Type)
	if err != nil {
		return nil, err
	}
	var delay time.Duration
	if delayed {
		delay = o.config.FieldUpdateDelay
	}

	passes, err := o.passes.ListByEvent(ctx, event.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load passes for event %s: %w", event.EventID, err)
	}
	if len(passes) == 0 {
		return &BulkResult{BatchID: uuid.New().String()}, nil
	}

	delta := event.Changes
	if delta == nil {
		delta = map[string]interface{}{}
	}
	if kind == domain.UpdateKindStatus {
		delta["voided"] = true
		delta["reason"] = string(event.Type)
	}

	passIDs := make([]string, 0, len(passes))
	for _, pass := range passes {
		passIDs = append(passIDs, pass.ID)
	}

	return o.ScheduleBulkUpdate(ctx, passIDs, kind, delta, priority, o.now().UTC().Add(delay))
}

// BatchSummary is the rollup view of one batch
type BatchSummary struct {
	BatchID string              `json:"batch_id"`
	Status  domain.BatchStatus  `json:"status"`
	Total   int                 `json:"total"`
	Counts  map[string]int      `json:"counts"`
	Jobs    []*domain.UpdateJob `json:"jobs,omitempty"`
}

// BatchStatus rolls the batch's job statuses up into one summary
func (o *Orchestrator) BatchStatus(ctx context.Context, batchID string) (*BatchSummary, error) {
	jobs, err := o.jobs.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	statuses := make([]domain.JobStatus, 0, len(jobs))
	counts := make(map[string]int)
	for _, job := range jobs {
		statuses = append(statuses, job.Status)
		counts[string(job.Status)]++
	}

	return &BatchSummary{
		BatchID: batchID,
		Status:  domain.ComputeBatchStatus(statuses),
		Total:   len(jobs),
		Counts:  counts,
		Jobs:    jobs,
	}, nil
}

// CancelBatch cancels the batch's still-pending jobs and reports how many
// were cancelled; processing jobs run to completion
func (o *Orchestrator) CancelBatch(ctx context.Context, batchID string) (int, error) {
	// Surface unknown batches instead of reporting zero cancellations
	if _, err := o.jobs.ListByBatch(ctx, batchID); err != nil {
		return 0, err
	}
	return o.jobs.CancelPendingByBatch(ctx, batchID)
}

// GetJob retrieves one job
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*domain.UpdateJob, error) {
	return o.jobs.GetByID(ctx, jobID)
}

// CancelJob cancels one pending job
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Cancel(); err != nil {
		return err
	}
	return o.jobs.Update(ctx, job)
}
