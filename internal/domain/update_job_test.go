package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewUpdateJob_Defaults(t *testing.T) {
	job, err := NewUpdateJob("batch-1", "pass-1", UpdateKindField, map[string]interface{}{"seat": "B2"}, "", time.Time{})
	if err != nil {
		t.Fatalf("NewUpdateJob() error: %v", err)
	}

	if job.Status != JobStatusPending {
		t.Errorf("status = %s, want %s", job.Status, JobStatusPending)
	}
	if job.Priority != PriorityNormal {
		t.Errorf("empty priority must default to normal, got %s", job.Priority)
	}
	if job.MaxRetries != DefaultMaxRetries {
		t.Errorf("max retries = %d, want %d", job.MaxRetries, DefaultMaxRetries)
	}
	if job.ScheduledFor.IsZero() {
		t.Error("zero scheduledFor must default to now")
	}
}

func TestNewUpdateJob_Validation(t *testing.T) {
	if _, err := NewUpdateJob("b", "", UpdateKindField, nil, PriorityNormal, time.Time{}); !errors.Is(err, ErrInvalidPassID) {
		t.Errorf("missing pass id error = %v, want %v", err, ErrInvalidPassID)
	}
	if _, err := NewUpdateJob("b", "pass-1", UpdateKind("bogus"), nil, PriorityNormal, time.Time{}); !errors.Is(err, ErrInvalidUpdateKind) {
		t.Errorf("unknown kind error = %v, want %v", err, ErrInvalidUpdateKind)
	}
}

func TestJobPriority_Weight(t *testing.T) {
	if !(PriorityUrgent.Weight() > PriorityHigh.Weight() &&
		PriorityHigh.Weight() > PriorityNormal.Weight() &&
		PriorityNormal.Weight() > PriorityLow.Weight()) {
		t.Error("priority weights must order urgent > high > normal > low")
	}
	if JobPriority("unknown").Weight() != PriorityNormal.Weight() {
		t.Error("unknown priority must weigh like normal")
	}
}

func TestUpdateJob_MarkFailed_RetriesThenExhausts(t *testing.T) {
	job, _ := NewUpdateJob("batch-1", "pass-1", UpdateKindField, nil, PriorityNormal, time.Time{})
	job.MaxRetries = 2

	for attempt := 1; attempt <= 2; attempt++ {
		if err := job.MarkProcessing(); err != nil {
			t.Fatalf("attempt %d: MarkProcessing() error: %v", attempt, err)
		}
		retrying, err := job.MarkFailed("generator unavailable", 2*time.Second)
		if err != nil {
			t.Fatalf("attempt %d: MarkFailed() error: %v", attempt, err)
		}
		if !retrying {
			t.Fatalf("attempt %d: job must still retry", attempt)
		}
		if job.Status != JobStatusPending {
			t.Fatalf("attempt %d: status = %s, want pending", attempt, job.Status)
		}
		if job.RetryCount != attempt {
			t.Fatalf("attempt %d: retry count = %d", attempt, job.RetryCount)
		}
		if !job.ScheduledFor.After(time.Now().UTC().Add(time.Second)) {
			t.Fatalf("attempt %d: retry must be rescheduled with backoff", attempt)
		}
	}

	// Third failure exhausts the budget
	if err := job.MarkProcessing(); err != nil {
		t.Fatalf("MarkProcessing() error: %v", err)
	}
	retrying, err := job.MarkFailed("generator unavailable", 2*time.Second)
	if err != nil {
		t.Fatalf("MarkFailed() error: %v", err)
	}
	if retrying {
		t.Error("exhausted job must not retry")
	}
	if job.Status != JobStatusFailed {
		t.Errorf("status = %s, want %s", job.Status, JobStatusFailed)
	}
	if job.CompletedAt == nil {
		t.Error("failed job must carry a completion instant")
	}
}

func TestUpdateJob_Cancel(t *testing.T) {
	job, _ := NewUpdateJob("batch-1", "pass-1", UpdateKindField, nil, PriorityNormal, time.Time{})

	if err := job.Cancel(); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if job.Status != JobStatusCancelled {
		t.Errorf("status = %s, want %s", job.Status, JobStatusCancelled)
	}

	processing, _ := NewUpdateJob("batch-1", "pass-2", UpdateKindField, nil, PriorityNormal, time.Time{})
	if err := processing.MarkProcessing(); err != nil {
		t.Fatalf("MarkProcessing() error: %v", err)
	}
	if err := processing.Cancel(); !errors.Is(err, ErrJobNotCancellable) {
		t.Errorf("Cancel() on processing job error = %v, want %v", err, ErrJobNotCancellable)
	}
}

func TestComputeBatchStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []JobStatus
		want     BatchStatus
	}{
		{"empty batch", nil, BatchStatusPending},
		{"all pending", []JobStatus{JobStatusPending, JobStatusPending}, BatchStatusPending},
		{"all completed", []JobStatus{JobStatusCompleted, JobStatusCompleted}, BatchStatusCompleted},
		{"all failed", []JobStatus{JobStatusFailed, JobStatusFailed}, BatchStatusFailed},
		{"any processing wins", []JobStatus{JobStatusCompleted, JobStatusProcessing, JobStatusFailed}, BatchStatusProcessing},
		{"mixed terminal is partial", []JobStatus{JobStatusCompleted, JobStatusFailed}, BatchStatusPartial},
		{"completed with cancelled is partial", []JobStatus{JobStatusCompleted, JobStatusCancelled}, BatchStatusPartial},
		{"pending with completed is partial", []JobStatus{JobStatusPending, JobStatusCompleted}, BatchStatusPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeBatchStatus(tt.statuses); got != tt.want {
				t.Errorf("ComputeBatchStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}
