package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/pkg/logger"
)

// CleanupWorkerConfig contains configuration for the cleanup worker
type CleanupWorkerConfig struct {
	// ScanInterval is the interval between cleanup scans
	ScanInterval time.Duration
	// BatchSize is the number of passes to expire per scan
	BatchSize int
	// EventRetention bounds how long analytics events are kept
	EventRetention time.Duration
}

// DefaultCleanupWorkerConfig returns default configuration
func DefaultCleanupWorkerConfig() *CleanupWorkerConfig {
	return &CleanupWorkerConfig{
		ScanInterval:   time.Minute,
		BatchSize:      100,
		EventRetention: 90 * 24 * time.Hour,
	}
}

// CleanupWorker expires overdue passes and archives analytics events past
// the retention window. Expiry schedules a status-change job so the regular
// update pipeline pushes the voided deliverable out.
type CleanupWorker struct {
	passes    repository.PassRepository
	jobs      repository.JobRepository
	analytics repository.AnalyticsRepository
	config    *CleanupWorkerConfig
	log       *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	// Stats
	totalExpired  int64
	totalArchived int64
	lastScanTime  time.Time
}

// NewCleanupWorker creates a new cleanup worker
func NewCleanupWorker(
	passes repository.PassRepository,
	jobs repository.JobRepository,
	analytics repository.AnalyticsRepository,
	config *CleanupWorkerConfig,
) *CleanupWorker {
	if config == nil {
		config = DefaultCleanupWorkerConfig()
	}

	return &CleanupWorker{
		passes:    passes,
		jobs:      jobs,
		analytics: analytics,
		config:    config,
		log:       logger.Get(),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the cleanup worker
func (w *CleanupWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("cleanup worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting cleanup worker")

	w.wg.Add(1)
	go w.scan(ctx)

	return nil
}

// Stop stops the cleanup worker
func (w *CleanupWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping cleanup worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Cleanup worker stopped")
}

func (w *CleanupWorker) scan(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one cleanup pass
func (w *CleanupWorker) RunOnce(ctx context.Context) {
	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.mu.Unlock()
	w.expireOverduePasses(ctx)
	w.archiveOldEvents(ctx)
}

// expireOverduePasses forces overdue passes to expired and schedules the
// voided regeneration for each
func (w *CleanupWorker) expireOverduePasses(ctx context.Context) {
	now := time.Now().UTC()
	overdue, err := w.passes.ListExpired(ctx, now, w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to list overdue passes: %v", err))
		return
	}
	if len(overdue) == 0 {
		return
	}

	w.log.Info(fmt.Sprintf("Found %d overdue passes to expire", len(overdue)))

	for _, pass := range overdue {
		if !pass.Refresh(now) {
			continue
		}
		if err := w.passes.Update(ctx, pass); err != nil {
			w.log.Error(fmt.Sprintf("Failed to expire pass %s: %v", pass.ID, err))
			continue
		}

		job, err := domain.NewUpdateJob("", pass.ID, domain.UpdateKindStatus,
			map[string]interface{}{"voided": true, "reason": "pass expired"},
			domain.PriorityHigh, now)
		if err != nil {
			w.log.Error(fmt.Sprintf("Failed to build void job for pass %s: %v", pass.ID, err))
			continue
		}
		if err := w.jobs.CreateBatch(ctx, []*domain.UpdateJob{job}); err != nil {
			w.log.Error(fmt.Sprintf("Failed to enqueue void job for pass %s: %v", pass.ID, err))
			continue
		}
		w.mu.Lock()
		w.totalExpired++
		w.mu.Unlock()
	}
}

// archiveOldEvents removes analytics events past the retention window
func (w *CleanupWorker) archiveOldEvents(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.config.EventRetention)
	removed, err := w.analytics.ArchiveOlderThan(ctx, cutoff)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to archive analytics events: %v", err))
		return
	}
	if removed > 0 {
		w.mu.Lock()
		w.totalArchived += removed
		w.mu.Unlock()
		w.log.Info(fmt.Sprintf("Archived %d analytics events older than %s", removed, cutoff.Format(time.RFC3339)))
	}
}

// CleanupWorkerStats reports worker counters
type CleanupWorkerStats struct {
	IsRunning     bool      `json:"is_running"`
	TotalExpired  int64     `json:"total_expired"`
	TotalArchived int64     `json:"total_archived"`
	LastScanTime  time.Time `json:"last_scan_time"`
}

// GetStats returns worker statistics
func (w *CleanupWorker) GetStats() *CleanupWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &CleanupWorkerStats{
		IsRunning:     w.running,
		TotalExpired:  w.totalExpired,
		TotalArchived: w.totalArchived,
		LastScanTime:  w.lastScanTime,
	}
}
