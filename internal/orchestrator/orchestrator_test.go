package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
)

type orchestratorEnv struct {
	jobs   *repository.MemoryJobRepository
	passes *repository.MemoryPassRepository
	orch   *Orchestrator
}

func newOrchestratorEnv(t *testing.T, cfg *Config) *orchestratorEnv {
	t.Helper()
	env := &orchestratorEnv{
		jobs:   repository.NewMemoryJobRepository(),
		passes: repository.NewMemoryPassRepository(),
	}
	env.orch = New(env.jobs, env.passes, cfg)
	return env
}

func (env *orchestratorEnv) addPass(t *testing.T, ticketID, eventID string, status domain.PassStatus) *domain.Pass {
	t.Helper()
	pass, err := domain.NewPass(ticketID, eventID, "user-1", "tpl-1", domain.PlatformApple, 5)
	if err != nil {
		t.Fatalf("NewPass() error: %v", err)
	}
	pass.Status = status
	if err := env.passes.Create(context.Background(), pass); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return pass
}

func TestScheduleBulkUpdate(t *testing.T) {
	env := newOrchestratorEnv(t, nil)
	ok := env.addPass(t, "tkt-1", "evt-1", domain.PassStatusActive)
	revoked := env.addPass(t, "tkt-2", "evt-1", domain.PassStatusRevoked)

	result, err := env.orch.ScheduleBulkUpdate(context.Background(),
		[]string{ok.ID, "missing-pass", revoked.ID},
		domain.UpdateKindField, map[string]interface{}{"gate": "B"}, domain.PriorityNormal, time.Time{})
	if err != nil {
		t.Fatalf("ScheduleBulkUpdate() error: %v", err)
	}

	if result.Requested != 3 || result.Accepted != 1 || result.Rejected != 2 {
		t.Fatalf("result = %+v, want 1 accepted / 2 rejected of 3", result)
	}
	if result.BatchID == "" {
		t.Fatal("bulk result must carry a batch id")
	}
	for _, item := range result.Items {
		switch item.PassID {
		case ok.ID:
			if !item.Accepted || item.JobID == "" {
				t.Errorf("live pass item = %+v, want accepted with a job id", item)
			}
		default:
			if item.Accepted || item.Error == "" {
				t.Errorf("rejected item = %+v, want error detail", item)
			}
		}
	}

	jobs, err := env.jobs.ListByBatch(context.Background(), result.BatchID)
	if err != nil {
		t.Fatalf("ListByBatch() error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("persisted jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Kind != domain.UpdateKindField || jobs[0].Priority != domain.PriorityNormal {
		t.Errorf("job = %+v, want field-update at normal priority", jobs[0])
	}
}

func TestScheduleBulkUpdate_StatusKindReachesTerminalPasses(t *testing.T) {
	env := newOrchestratorEnv(t, nil)
	expired := env.addPass(t, "tkt-1", "evt-1", domain.PassStatusExpired)

	result, err := env.orch.ScheduleBulkUpdate(context.Background(),
		[]string{expired.ID}, domain.UpdateKindStatus,
		map[string]interface{}{"voided": true}, domain.PriorityUrgent, time.Time{})
	if err != nil {
		t.Fatalf("ScheduleBulkUpdate() error: %v", err)
	}
	if result.Accepted != 1 {
		t.Errorf("accepted = %d, status changes must reach terminal passes", result.Accepted)
	}
}

func TestScheduleBulkUpdate_Rejections(t *testing.T) {
	env := newOrchestratorEnv(t, nil)
	pass := env.addPass(t, "tkt-1", "evt-1", domain.PassStatusActive)

	if _, err := env.orch.ScheduleBulkUpdate(context.Background(), nil,
		domain.UpdateKindField, nil, domain.PriorityNormal, time.Time{}); !errors.Is(err, domain.ErrRenderDataInvalid) {
		t.Errorf("empty pass list error = %v, want %v", err, domain.ErrRenderDataInvalid)
	}
	if _, err := env.orch.ScheduleBulkUpdate(context.Background(), []string{pass.ID},
		domain.UpdateKind("bogus"), nil, domain.PriorityNormal, time.Time{}); !errors.Is(err, domain.ErrInvalidUpdateKind) {
		t.Errorf("unknown kind error = %v, want %v", err, domain.ErrInvalidUpdateKind)
	}
}

func TestHandleBusinessEvent_Mapping(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		eventType    BusinessEventType
		wantKind     domain.UpdateKind
		wantPriority domain.JobPriority
		wantDelay    time.Duration
	}{
		{"cancellation preempts", BusinessEventCancelled, domain.UpdateKindStatus, domain.PriorityUrgent, 0},
		{"postponement preempts", BusinessEventPostponed, domain.UpdateKindStatus, domain.PriorityUrgent, 0},
		{"venue change runs next", BusinessEventVenueChanged, domain.UpdateKindLocation, domain.PriorityHigh, 0},
		{"reschedule coalesces", BusinessEventRescheduled, domain.UpdateKindField, domain.PriorityNormal, 5 * time.Minute},
		{"field edits coalesce", BusinessEventFieldsEdited, domain.UpdateKindField, domain.PriorityNormal, 5 * time.Minute},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newOrchestratorEnv(t, nil)
			env.orch.WithClock(func() time.Time { return now })
			eventID := fmt.Sprintf("evt-%d", i)
			env.addPass(t, fmt.Sprintf("tkt-%d", i), eventID, domain.PassStatusActive)

			result, err := env.orch.HandleBusinessEvent(context.Background(), &BusinessEvent{
				EventID: eventID,
				Type:    tt.eventType,
				Changes: map[string]interface{}{"venue": "New Hall"},
			})
			if err != nil {
				t.Fatalf("HandleBusinessEvent() error: %v", err)
			}
			if result.Accepted != 1 {
				t.Fatalf("accepted = %d, want 1", result.Accepted)
			}

			jobs, err := env.jobs.ListByBatch(context.Background(), result.BatchID)
			if err != nil {
				t.Fatalf("ListByBatch() error: %v", err)
			}
			job := jobs[0]
			if job.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", job.Kind, tt.wantKind)
			}
			if job.Priority != tt.wantPriority {
				t.Errorf("priority = %s, want %s", job.Priority, tt.wantPriority)
			}
			if !job.ScheduledFor.Equal(now.Add(tt.wantDelay)) {
				t.Errorf("scheduled for %s, want %s", job.ScheduledFor, now.Add(tt.wantDelay))
			}
			if tt.wantKind == domain.UpdateKindStatus {
				if voided, _ := job.Delta["voided"].(bool); !voided {
					t.Error("status-change delta must carry the voided flag")
				}
				if job.Delta["reason"] != string(tt.eventType) {
					t.Errorf("delta reason = %v, want %s", job.Delta["reason"], tt.eventType)
				}
			}
		})
	}
}

func TestHandleBusinessEvent_Rejections(t *testing.T) {
	env := newOrchestratorEnv(t, nil)

	if _, err := env.orch.HandleBusinessEvent(context.Background(), nil); !errors.Is(err, domain.ErrInvalidEventID) {
		t.Errorf("nil event error = %v, want %v", err, domain.ErrInvalidEventID)
	}
	if _, err := env.orch.HandleBusinessEvent(context.Background(), &BusinessEvent{
		EventID: "evt-1", Type: "seating-reshuffled",
	}); !errors.Is(err, domain.ErrInvalidUpdateKind) {
		t.Errorf("unknown type error = %v, want %v", err, domain.ErrInvalidUpdateKind)
	}
}

func TestHandleBusinessEvent_NoPasses(t *testing.T) {
	env := newOrchestratorEnv(t, nil)

	result, err := env.orch.HandleBusinessEvent(context.Background(), &BusinessEvent{
		EventID: "evt-empty", Type: BusinessEventCancelled,
	})
	if err != nil {
		t.Fatalf("HandleBusinessEvent() error: %v", err)
	}
	if result.Requested != 0 || result.Accepted != 0 {
		t.Errorf("result = %+v, want empty batch", result)
	}
}

func TestBatchStatus_Rollup(t *testing.T) {
	env := newOrchestratorEnv(t, nil)
	passIDs := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		pass := env.addPass(t, fmt.Sprintf("tkt-%d", i), "evt-1", domain.PassStatusActive)
		passIDs = append(passIDs, pass.ID)
	}

	result, err := env.orch.ScheduleBulkUpdate(context.Background(), passIDs,
		domain.UpdateKindField, map[string]interface{}{"gate": "B"}, domain.PriorityNormal, time.Time{})
	if err != nil {
		t.Fatalf("ScheduleBulkUpdate() error: %v", err)
	}

	// Jobs 3 and 7 fail terminally, the rest complete
	jobs, err := env.jobs.ListByBatch(context.Background(), result.BatchID)
	if err != nil {
		t.Fatalf("ListByBatch() error: %v", err)
	}
	for i, job := range jobs {
		if err := job.MarkProcessing(); err != nil {
			t.Fatalf("MarkProcessing() error: %v", err)
		}
		if i == 2 || i == 6 {
			job.RetryCount = job.MaxRetries
			if _, err := job.MarkFailed("generator unavailable", 0); err != nil {
				t.Fatalf("MarkFailed() error: %v", err)
			}
		} else if err := job.MarkCompleted(); err != nil {
			t.Fatalf("MarkCompleted() error: %v", err)
		}
		if err := env.jobs.Update(context.Background(), job); err != nil {
			t.Fatalf("Update() error: %v", err)
		}
	}

	summary, err := env.orch.BatchStatus(context.Background(), result.BatchID)
	if err != nil {
		t.Fatalf("BatchStatus() error: %v", err)
	}
	if summary.Status != domain.BatchStatusPartial {
		t.Errorf("rollup status = %s, want %s", summary.Status, domain.BatchStatusPartial)
	}
	if summary.Total != 10 {
		t.Errorf("total = %d, want 10", summary.Total)
	}
	if summary.Counts[string(domain.JobStatusCompleted)] != 8 ||
		summary.Counts[string(domain.JobStatusFailed)] != 2 {
		t.Errorf("counts = %v, want 8 completed / 2 failed", summary.Counts)
	}
}

func TestBatchStatus_UnknownBatch(t *testing.T) {
	env := newOrchestratorEnv(t, nil)

	if _, err := env.orch.BatchStatus(context.Background(), "missing"); !errors.Is(err, domain.ErrBatchNotFound) {
		t.Errorf("BatchStatus() error = %v, want %v", err, domain.ErrBatchNotFound)
	}
}

func TestCancelBatch(t *testing.T) {
	env := newOrchestratorEnv(t, nil)
	passIDs := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		pass := env.addPass(t, fmt.Sprintf("tkt-%d", i), "evt-1", domain.PassStatusActive)
		passIDs = append(passIDs, pass.ID)
	}

	result, err := env.orch.ScheduleBulkUpdate(context.Background(), passIDs,
		domain.UpdateKindField, nil, domain.PriorityNormal, time.Time{})
	if err != nil {
		t.Fatalf("ScheduleBulkUpdate() error: %v", err)
	}

	// One job has already started; it must run to completion
	jobs, _ := env.jobs.ListByBatch(context.Background(), result.BatchID)
	if err := jobs[0].MarkProcessing(); err != nil {
		t.Fatalf("MarkProcessing() error: %v", err)
	}
	if err := env.jobs.Update(context.Background(), jobs[0]); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	cancelled, err := env.orch.CancelBatch(context.Background(), result.BatchID)
	if err != nil {
		t.Fatalf("CancelBatch() error: %v", err)
	}
	if cancelled != 2 {
		t.Errorf("cancelled = %d, want 2", cancelled)
	}

	if _, err := env.orch.CancelBatch(context.Background(), "missing"); !errors.Is(err, domain.ErrBatchNotFound) {
		t.Errorf("unknown batch error = %v, want %v", err, domain.ErrBatchNotFound)
	}
}

func TestCancelJob(t *testing.T) {
	env := newOrchestratorEnv(t, nil)
	pass := env.addPass(t, "tkt-1", "evt-1", domain.PassStatusActive)

	result, err := env.orch.ScheduleBulkUpdate(context.Background(), []string{pass.ID},
		domain.UpdateKindField, nil, domain.PriorityNormal, time.Time{})
	if err != nil {
		t.Fatalf("ScheduleBulkUpdate() error: %v", err)
	}
	jobID := result.Items[0].JobID

	if err := env.orch.CancelJob(context.Background(), jobID); err != nil {
		t.Fatalf("CancelJob() error: %v", err)
	}
	job, err := env.orch.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if job.Status != domain.JobStatusCancelled {
		t.Errorf("status = %s, want cancelled", job.Status)
	}

	// Cancelled jobs cannot be cancelled again
	if err := env.orch.CancelJob(context.Background(), jobID); !errors.Is(err, domain.ErrJobNotCancellable) {
		t.Errorf("double cancel error = %v, want %v", err, domain.ErrJobNotCancellable)
	}
}
