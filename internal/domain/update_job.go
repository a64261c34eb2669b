package domain

import (
	"time"

	"github.com/google/uuid"
)

// UpdateKind classifies what an update job changes on a pass
type UpdateKind string

const (
	UpdateKindField      UpdateKind = "field-update"
	UpdateKindStatus     UpdateKind = "status-change"
	UpdateKindLocation   UpdateKind = "location-update"
	UpdateKindBeacon     UpdateKind = "beacon-update"
	UpdateKindAppearance UpdateKind = "appearance-update"
	UpdateKindExpiry     UpdateKind = "expiry-update"
	UpdateKindBarcode    UpdateKind = "barcode-update"
)

// Valid reports whether the update kind is known
func (k UpdateKind) Valid() bool {
	switch k {
	case UpdateKindField, UpdateKindStatus, UpdateKindLocation,
		UpdateKindBeacon, UpdateKindAppearance, UpdateKindExpiry, UpdateKindBarcode:
		return true
	}
	return false
}

// JobPriority orders jobs within the queue
type JobPriority string

const (
	PriorityUrgent JobPriority = "urgent"
	PriorityHigh   JobPriority = "high"
	PriorityNormal JobPriority = "normal"
	PriorityLow    JobPriority = "low"
)

// Weight returns the numeric ordering weight (higher runs first)
func (p JobPriority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	}
	return 1
}

// JobStatus represents the state of an update job (matches DB ENUM)
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the job can make no further progress
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// DefaultMaxRetries is the retry ceiling applied when a job carries none
const DefaultMaxRetries = 3

// UpdateJob is one scheduled change against one pass
type UpdateJob struct {
	ID string `json:"id"`
	// BatchID correlates jobs created by one bulk request
	BatchID      string                 `json:"batch_id"`
	PassID       string                 `json:"pass_id"`
	Kind         UpdateKind             `json:"kind"`
	Delta        map[string]interface{} `json:"delta"`
	Priority     JobPriority            `json:"priority"`
	Status       JobStatus              `json:"status"`
	ScheduledFor time.Time              `json:"scheduled_for"`
	RetryCount   int                    `json:"retry_count"`
	MaxRetries   int                    `json:"max_retries"`
	LastError    string                 `json:"last_error,omitempty"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NewUpdateJob creates a pending job scheduled for scheduledFor
func NewUpdateJob(batchID, passID string, kind UpdateKind, delta map[string]interface{}, priority JobPriority, scheduledFor time.Time) (*UpdateJob, error) {
	if passID == "" {
		return nil, ErrInvalidPassID
	}
	if !kind.Valid() {
		return nil, ErrInvalidUpdateKind
	}
	if priority == "" {
		priority = PriorityNormal
	}

	now := time.Now().UTC()
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	return &UpdateJob{
		ID:           uuid.New().String(),
		BatchID:      batchID,
		PassID:       passID,
		Kind:         kind,
		Delta:        delta,
		Priority:     priority,
		Status:       JobStatusPending,
		ScheduledFor: scheduledFor,
		MaxRetries:   DefaultMaxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// MarkProcessing moves a pending job into processing
func (j *UpdateJob) MarkProcessing() error {
	if j.Status != JobStatusPending {
		return ErrInvalidJobTransition
	}
	now := time.Now().UTC()
	j.Status = JobStatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkCompleted terminates the job successfully
func (j *UpdateJob) MarkCompleted() error {
	if j.Status != JobStatusProcessing {
		return ErrInvalidJobTransition
	}
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkFailed records a failed attempt. While retries remain the job returns
// to pending with a backoff delay; otherwise it terminates as failed.
// Returns true when the job will be retried.
func (j *UpdateJob) MarkFailed(reason string, backoff time.Duration) (bool, error) {
	if j.Status != JobStatusProcessing {
		return false, ErrInvalidJobTransition
	}
	now := time.Now().UTC()
	j.LastError = reason
	j.UpdatedAt = now

	if j.RetryCount < j.MaxRetries {
		j.RetryCount++
		j.Status = JobStatusPending
		j.ScheduledFor = now.Add(backoff)
		return true, nil
	}

	j.Status = JobStatusFailed
	j.CompletedAt = &now
	return false, nil
}

// Cancel aborts a job that has not started processing
func (j *UpdateJob) Cancel() error {
	if j.Status != JobStatusPending {
		return ErrJobNotCancellable
	}
	now := time.Now().UTC()
	j.Status = JobStatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// BatchStatus is the rollup status of all jobs sharing a batch id
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusPartial    BatchStatus = "partial"
)

// ComputeBatchStatus rolls job statuses up into a batch status:
// completed iff all completed, failed iff all failed, processing if any is
// processing, pending iff all pending, otherwise partial.
func ComputeBatchStatus(statuses []JobStatus) BatchStatus {
	if len(statuses) == 0 {
		return BatchStatusPending
	}

	allCompleted, allFailed, allPending := true, true, true
	for _, s := range statuses {
		if s == JobStatusProcessing {
			return BatchStatusProcessing
		}
		if s != JobStatusCompleted {
			allCompleted = false
		}
		if s != JobStatusFailed {
			allFailed = false
		}
		if s != JobStatusPending {
			allPending = false
		}
	}

	switch {
	case allCompleted:
		return BatchStatusCompleted
	case allFailed:
		return BatchStatusFailed
	case allPending:
		return BatchStatusPending
	default:
		return BatchStatusPartial
	}
}
