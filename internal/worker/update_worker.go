package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/metrics"
	"github.com/passmint/wallet-service/internal/notification"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/template"
	"github.com/passmint/wallet-service/internal/wallet"
	"github.com/passmint/wallet-service/pkg/logger"
	"github.com/passmint/wallet-service/pkg/retry"
)

// UpdateWorkerConfig contains configuration for the update worker
type UpdateWorkerConfig struct {
	// PollInterval is the interval between queue polls
	PollInterval time.Duration
	// BatchSize is the number of jobs to claim per poll
	BatchSize int
	// Backoff computes retry delays for failed jobs
	Backoff *retry.Config
}

// DefaultUpdateWorkerConfig returns default configuration
func DefaultUpdateWorkerConfig() *UpdateWorkerConfig {
	return &UpdateWorkerConfig{
		PollInterval: 2 * time.Second,
		BatchSize:    50,
		Backoff:      retry.DefaultConfig(),
	}
}

// UpdateWorker drains the durable update-job queue: it claims due jobs,
// applies each job's delta to its pass, regenerates the platform deliverable,
// and pings registered devices. Failures reschedule with exponential backoff
// until the job's retry budget runs out.
type UpdateWorker struct {
	jobs       repository.JobRepository
	passes     repository.PassRepository
	templates  repository.TemplateRepository
	devices    repository.DeviceRepository
	analytics  repository.AnalyticsRepository
	generators *wallet.Registry
	dispatcher notification.Dispatcher
	config     *UpdateWorkerConfig
	log        *logger.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool

	// Stats
	totalCompleted int64
	totalRetried   int64
	totalFailed    int64
	lastPollTime   time.Time
}

// NewUpdateWorker creates a new update worker
func NewUpdateWorker(
	jobs repository.JobRepository,
	passes repository.PassRepository,
	templates repository.TemplateRepository,
	devices repository.DeviceRepository,
	analytics repository.AnalyticsRepository,
	generators *wallet.Registry,
	dispatcher notification.Dispatcher,
	config *UpdateWorkerConfig,
) *UpdateWorker {
	if config == nil {
		config = DefaultUpdateWorkerConfig()
	}
	if config.Backoff == nil {
		config.Backoff = retry.DefaultConfig()
	}

	return &UpdateWorker{
		jobs:       jobs,
		passes:     passes,
		templates:  templates,
		devices:    devices,
		analytics:  analytics,
		generators: generators,
		dispatcher: dispatcher,
		config:     config,
		log:        logger.Get(),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the update worker
func (w *UpdateWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("update worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting update worker")

	w.wg.Add(1)
	go w.pollQueue(ctx)

	return nil
}

// Stop stops the update worker
func (w *UpdateWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping update worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Update worker stopped")
}

// pollQueue periodically claims and processes due jobs
func (w *UpdateWorker) pollQueue(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.ProcessDueJobs(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.ProcessDueJobs(ctx)
		}
	}
}

// ProcessDueJobs claims one batch of due jobs and executes them in claim
// order (priority weight, then scheduled time)
func (w *UpdateWorker) ProcessDueJobs(ctx context.Context) {
	w.mu.Lock()
	w.lastPollTime = time.Now()
	w.mu.Unlock()

	claimed, err := w.jobs.ClaimDue(ctx, time.Now().UTC(), w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to claim due jobs: %v", err))
		return
	}
	if len(claimed) == 0 {
		return
	}

	w.log.Info(fmt.Sprintf("Claimed %d due update jobs", len(claimed)))

	for _, job := range claimed {
		w.executeJob(ctx, job)
	}
}

// executeJob runs one claimed job and persists its outcome
func (w *UpdateWorker) executeJob(ctx context.Context, job *domain.UpdateJob) {
	started := time.Now()
	if err := w.applyJob(ctx, job); err != nil {
		backoff := w.config.Backoff.IntervalFor(job.RetryCount)
		retrying, terr := job.MarkFailed(err.Error(), backoff)
		if terr != nil {
			w.log.Error(fmt.Sprintf("Job %s in unexpected state: %v", job.ID, terr))
			return
		}
		metrics.RecordJobFailed(ctx, string(job.Kind), !retrying)
		if retrying {
			w.addStat(&w.totalRetried)
			w.log.Warn(fmt.Sprintf("Job %s failed (attempt %d/%d), retrying in %s: %v",
				job.ID, job.RetryCount, job.MaxRetries, backoff, err))
		} else {
			w.addStat(&w.totalFailed)
			w.log.Error(fmt.Sprintf("Job %s exhausted retries: %v",
				job.ID, errors.Join(domain.ErrUpdateExhausted, err)))
		}
	} else {
		if err := job.MarkCompleted(); err != nil {
			w.log.Error(fmt.Sprintf("Job %s in unexpected state: %v", job.ID, err))
			return
		}
		w.addStat(&w.totalCompleted)
		metrics.RecordJobCompleted(ctx, string(job.Kind), time.Since(started).Seconds())
	}

	if err := w.jobs.Update(ctx, job); err != nil {
		w.log.Error(fmt.Sprintf("Failed to persist job %s outcome: %v", job.ID, err))
	}
}

// applyJob applies one job's delta, regenerates the deliverable, and fans
// out device notifications
func (w *UpdateWorker) applyJob(ctx context.Context, job *domain.UpdateJob) error {
	pass, err := w.passes.GetByID(ctx, job.PassID)
	if err != nil {
		return err
	}
	pass.Refresh(time.Now().UTC())

	tpl, err := w.templates.GetByID(ctx, pass.TemplateID)
	if err != nil {
		return err
	}

	if err := applyDelta(pass, job); err != nil {
		return err
	}

	content := template.Render(tpl, contentData(pass))
	generator, err := w.generators.For(pass.Platform)
	if err != nil {
		return err
	}
	if pass.Voided() {
		if err := generator.Revoke(ctx, pass); err != nil {
			return err
		}
	} else if err := generator.Update(ctx, pass, tpl, content); err != nil {
		return err
	}

	if err := w.passes.Update(ctx, pass); err != nil {
		return err
	}

	w.notifyDevices(ctx, pass)

	event := domain.NewAnalyticsEvent(pass.ID, domain.EventPassUpdated).
		WithData(map[string]interface{}{"kind": string(job.Kind), "batch_id": job.BatchID})
	if err := w.analytics.Append(ctx, event); err != nil {
		// Analytics loss never fails the update itself
		w.log.Warn(fmt.Sprintf("Failed to append updated event for pass %s: %v", pass.ID, err))
	}

	return nil
}

// notifyDevices pings every device registered to the pass
func (w *UpdateWorker) notifyDevices(ctx context.Context, pass *domain.Pass) {
	devices, err := w.devices.DevicesForPass(ctx, pass.PassTypeIdentifier, pass.SerialNumber)
	if err != nil {
		w.log.Warn(fmt.Sprintf("Failed to list devices for pass %s: %v", pass.ID, err))
		return
	}
	if len(devices) == 0 {
		return
	}
	if err := w.dispatcher.NotifyPassUpdated(ctx, pass, devices); err != nil {
		w.log.Warn(fmt.Sprintf("Failed to notify devices for pass %s: %v", pass.ID, err))
	}
}

// applyDelta merges one job's delta into the pass according to its kind
func applyDelta(pass *domain.Pass, job *domain.UpdateJob) error {
	switch job.Kind {
	case domain.UpdateKindField, domain.UpdateKindAppearance, domain.UpdateKindBarcode:
		// Appearance and barcode jobs regenerate against the latest template;
		// any delta entries ride along as content updates
		for key, value := range job.Delta {
			pass.Content[key] = value
		}
		return nil

	case domain.UpdateKindStatus:
		return applyStatusDelta(pass, job.Delta)

	case domain.UpdateKindLocation:
		if raw, ok := job.Delta["locations"]; ok {
			var locations []domain.Location
			if err := decodeDelta(raw, &locations); err != nil {
				return fmt.Errorf("invalid locations delta: %w", err)
			}
			pass.Locations = locations
		}
		for key, value := range job.Delta {
			if key == "locations" {
				continue
			}
			pass.Content[key] = value
		}
		return nil

	case domain.UpdateKindBeacon:
		if raw, ok := job.Delta["beacons"]; ok {
			var beacons []domain.Beacon
			if err := decodeDelta(raw, &beacons); err != nil {
				return fmt.Errorf("invalid beacons delta: %w", err)
			}
			pass.Beacons = beacons
		}
		return nil

	case domain.UpdateKindExpiry:
		raw, ok := job.Delta["expires_at"]
		if !ok {
			return fmt.Errorf("%w: expiry update without expires_at", domain.ErrRenderDataInvalid)
		}
		parsed, err := time.Parse(time.RFC3339, fmt.Sprint(raw))
		if err != nil {
			return fmt.Errorf("invalid expires_at delta: %w", err)
		}
		pass.ExpiresAt = &parsed
		pass.Refresh(time.Now().UTC())
		return nil
	}

	return domain.ErrInvalidUpdateKind
}

// applyStatusDelta handles status-change jobs: a voided flag revokes the
// pass, an explicit status walks the lifecycle machine
func applyStatusDelta(pass *domain.Pass, delta map[string]interface{}) error {
	if voided, _ := delta["voided"].(bool); voided {
		// Already-terminal passes (revoked or expired) are satisfied as-is;
		// the caller still pushes the remote void for them
		if pass.Voided() {
			return nil
		}
		if reason, ok := delta["reason"].(string); ok {
			pass.StatusReason = reason
		}
		return pass.TransitionTo(domain.PassStatusRevoked)
	}

	raw, ok := delta["status"]
	if !ok {
		return fmt.Errorf("%w: status change without status or voided flag", domain.ErrRenderDataInvalid)
	}
	next := domain.PassStatus(fmt.Sprint(raw))
	if pass.Status == next {
		return nil
	}
	return pass.TransitionTo(next)
}

// addStat bumps one stats counter under the worker mutex so GetStats reads
// a consistent snapshot
func (w *UpdateWorker) addStat(counter *int64) {
	w.mu.Lock()
	*counter++
	w.mu.Unlock()
}

// contentData flattens the pass content snapshot into render data
func contentData(pass *domain.Pass) map[string]string {
	data := make(map[string]string, len(pass.Content))
	for key, value := range pass.Content {
		data[key] = fmt.Sprint(value)
	}
	return data
}

// decodeDelta converts a free-form delta value through JSON into out
func decodeDelta(raw interface{}, out interface{}) error {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

// UpdateWorkerStats reports worker counters
type UpdateWorkerStats struct {
	IsRunning      bool      `json:"is_running"`
	TotalCompleted int64     `json:"total_completed"`
	TotalRetried   int64     `json:"total_retried"`
	TotalFailed    int64     `json:"total_failed"`
	LastPollTime   time.Time `json:"last_poll_time"`
}

// GetStats returns worker statistics
func (w *UpdateWorker) GetStats() *UpdateWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &UpdateWorkerStats{
		IsRunning:      w.running,
		TotalCompleted: w.totalCompleted,
		TotalRetried:   w.totalRetried,
		TotalFailed:    w.totalFailed,
		LastPollTime:   w.lastPollTime,
	}
}
