package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passmint/wallet-service/internal/domain"
)

// PostgresJobRepository implements JobRepository using PostgreSQL. The
// update_jobs table is the durable queue; workers claim rows with
// FOR UPDATE SKIP LOCKED so concurrent workers never double-process a job.
type PostgresJobRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresJobRepository creates a new PostgresJobRepository
func NewPostgresJobRepository(pool *pgxpool.Pool) *PostgresJobRepository {
	return &PostgresJobRepository{pool: pool}
}

// jobColumns defines the columns to select for update jobs
const jobColumns = `id,
	COALESCE(batch_id, '') as batch_id,
	pass_id, kind,
	COALESCE(delta, '{}'::jsonb) as delta,
	priority, status, scheduled_for, retry_count, max_retries,
	COALESCE(last_error, '') as last_error,
	started_at, completed_at, created_at, updated_at`

// scanJob scans a row into an UpdateJob struct
func (r *PostgresJobRepository) scanJob(row pgx.Row) (*domain.UpdateJob, error) {
	job := &domain.UpdateJob{}
	var deltaJSON []byte

	err := row.Scan(
		&job.ID,
		&job.BatchID,
		&job.PassID,
		&job.Kind,
		&deltaJSON,
		&job.Priority,
		&job.Status,
		&job.ScheduledFor,
		&job.RetryCount,
		&job.MaxRetries,
		&job.LastError,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal(deltaJSON, &job.Delta)
	if job.Delta == nil {
		job.Delta = map[string]interface{}{}
	}

	return job, nil
}

func (r *PostgresJobRepository) scanJobs(rows pgx.Rows) ([]*domain.UpdateJob, error) {
	var jobs []*domain.UpdateJob
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CreateBatch inserts all jobs of one bulk request in a single transaction
func (r *PostgresJobRepository) CreateBatch(ctx context.Context, jobs []*domain.UpdateJob) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO update_jobs (
			id, batch_id, pass_id, kind, delta, priority, status,
			scheduled_for, retry_count, max_retries, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	for _, job := range jobs {
		deltaJSON, _ := json.Marshal(job.Delta)
		if _, err := tx.Exec(ctx, query,
			job.ID,
			job.BatchID,
			job.PassID,
			job.Kind,
			deltaJSON,
			job.Priority,
			job.Status,
			job.ScheduledFor,
			job.RetryCount,
			job.MaxRetries,
			job.CreatedAt,
			job.UpdatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a job by ID
func (r *PostgresJobRepository) GetByID(ctx context.Context, id string) (*domain.UpdateJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM update_jobs WHERE id = $1`, jobColumns)
	job, err := r.scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimDue claims up to limit due pending jobs and moves them to processing.
// Priority weight orders the claim (urgent first), then scheduled time.
func (r *PostgresJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.UpdateJob, error) {
	query := fmt.Sprintf(`
		UPDATE update_jobs SET
			status = $1, started_at = $2, updated_at = $2
		WHERE id IN (
			SELECT id FROM update_jobs
			WHERE status = $3 AND scheduled_for <= $2
			ORDER BY
				CASE priority
					WHEN 'urgent' THEN 3
					WHEN 'high' THEN 2
					WHEN 'normal' THEN 1
					ELSE 0
				END DESC,
				scheduled_for ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, jobColumns)

	rows, err := r.pool.Query(ctx, query,
		domain.JobStatusProcessing, now.UTC(), domain.JobStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

// Update persists job state after an attempt
func (r *PostgresJobRepository) Update(ctx context.Context, job *domain.UpdateJob) error {
	query := `
		UPDATE update_jobs SET
			status = $2, scheduled_for = $3, retry_count = $4, last_error = $5,
			started_at = $6, completed_at = $7, updated_at = $8
		WHERE id = $1
	`

	job.UpdatedAt = time.Now().UTC()
	result, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.ScheduledFor,
		job.RetryCount,
		job.LastError,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// ListByBatch retrieves all jobs of one batch
func (r *PostgresJobRepository) ListByBatch(ctx context.Context, batchID string) ([]*domain.UpdateJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM update_jobs
		WHERE batch_id = $1
		ORDER BY created_at ASC
	`, jobColumns)

	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs, err := r.scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, domain.ErrBatchNotFound
	}
	return jobs, nil
}

// CancelPendingByBatch cancels the batch's still-pending jobs and reports how
// many were cancelled. Jobs already processing run to completion.
func (r *PostgresJobRepository) CancelPendingByBatch(ctx context.Context, batchID string) (int, error) {
	query := `
		UPDATE update_jobs SET
			status = $1, completed_at = $2, updated_at = $2
		WHERE batch_id = $3 AND status = $4
	`
	result, err := r.pool.Exec(ctx, query,
		domain.JobStatusCancelled, time.Now().UTC(), batchID, domain.JobStatusPending)
	if err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}
