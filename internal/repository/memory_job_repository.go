package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
)

// MemoryJobRepository implements JobRepository using in-memory storage for
// testing and development
type MemoryJobRepository struct {
	jobs    map[string]*domain.UpdateJob
	byBatch map[string][]string // batchID -> []jobID
	mu      sync.Mutex
}

// NewMemoryJobRepository creates a new in-memory job repository
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:    make(map[string]*domain.UpdateJob),
		byBatch: make(map[string][]string),
	}
}

// CreateBatch inserts all jobs of one bulk request
func (r *MemoryJobRepository) CreateBatch(ctx context.Context, jobs []*domain.UpdateJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, job := range jobs {
		j := *job
		r.jobs[job.ID] = &j
		if job.BatchID != "" {
			r.byBatch[job.BatchID] = append(r.byBatch[job.BatchID], job.ID)
		}
	}
	return nil
}

// GetByID retrieves a job by its ID
func (r *MemoryJobRepository) GetByID(ctx context.Context, id string) (*domain.UpdateJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		return nil, domain.ErrJobNotFound
	}

	j := *job
	return &j, nil
}

// ClaimDue claims up to limit due pending jobs and moves them to processing,
// ordered by priority weight then scheduled time
func (r *MemoryJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.UpdateJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*domain.UpdateJob
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusPending && !job.ScheduledFor.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		wi, wj := due[i].Priority.Weight(), due[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*domain.UpdateJob, 0, len(due))
	started := now.UTC()
	for _, job := range due {
		job.Status = domain.JobStatusProcessing
		job.StartedAt = &started
		job.UpdatedAt = started
		j := *job
		claimed = append(claimed, &j)
	}
	return claimed, nil
}

// Update persists job state after an attempt
func (r *MemoryJobRepository) Update(ctx context.Context, job *domain.UpdateJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		return domain.ErrJobNotFound
	}

	job.UpdatedAt = time.Now().UTC()
	j := *job
	r.jobs[job.ID] = &j
	return nil
}

// ListByBatch retrieves all jobs of one batch
func (r *MemoryJobRepository) ListByBatch(ctx context.Context, batchID string) ([]*domain.UpdateJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, exists := r.byBatch[batchID]
	if !exists {
		return nil, domain.ErrBatchNotFound
	}

	jobs := make([]*domain.UpdateJob, 0, len(ids))
	for _, id := range ids {
		j := *r.jobs[id]
		jobs = append(jobs, &j)
	}
	return jobs, nil
}

// CancelPendingByBatch cancels the batch's still-pending jobs
func (r *MemoryJobRepository) CancelPendingByBatch(ctx context.Context, batchID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelled := 0
	now := time.Now().UTC()
	for _, id := range r.byBatch[batchID] {
		job := r.jobs[id]
		if job.Status != domain.JobStatusPending {
			continue
		}
		job.Status = domain.JobStatusCancelled
		job.CompletedAt = &now
		job.UpdatedAt = now
		cancelled++
	}
	return cancelled, nil
}
