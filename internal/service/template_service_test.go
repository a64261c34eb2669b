package service

import (
	"context"
	"errors"
	"testing"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
)

type templateEnv struct {
	templates *repository.MemoryTemplateRepository
	passes    *repository.MemoryPassRepository
	svc       *TemplateService
}

func newTemplateEnv(t *testing.T) *templateEnv {
	t.Helper()
	env := &templateEnv{
		templates: repository.NewMemoryTemplateRepository(),
		passes:    repository.NewMemoryPassRepository(),
	}
	env.svc = NewTemplateService(env.templates, env.passes)
	return env
}

func draftTemplate() *domain.Template {
	return &domain.Template{
		OrganizerID: "org-1",
		Platform:    domain.PlatformApple,
		Name:        "Event Ticket",
		Fields: domain.FieldGroups{
			Primary: []domain.FieldDef{{Key: "event", ValueTemplate: "{{event_name}}"}},
		},
		Barcode: domain.BarcodeSpec{
			Enabled:         true,
			Format:          domain.BarcodeFormatQR,
			MessageTemplate: "{{ticket_id}}",
		},
	}
}

func TestTemplateCreate(t *testing.T) {
	env := newTemplateEnv(t)

	created, err := env.svc.Create(context.Background(), draftTemplate())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if created.Status != domain.TemplateStatusDraft {
		t.Errorf("status = %s, new templates always start as drafts", created.Status)
	}
	if created.Version != 1 {
		t.Errorf("version = %d, want 1", created.Version)
	}
	if !created.Sharing.Enabled {
		t.Error("sharing must default to enabled")
	}

	if _, err := env.svc.Create(context.Background(), &domain.Template{Platform: domain.PlatformApple, Name: "x"}); !errors.Is(err, domain.ErrInvalidOrganizerID) {
		t.Errorf("missing organizer error = %v, want %v", err, domain.ErrInvalidOrganizerID)
	}
}

func TestTemplateActivate(t *testing.T) {
	env := newTemplateEnv(t)

	created, err := env.svc.Create(context.Background(), draftTemplate())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	activated, result, err := env.svc.Activate(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	if activated.Status != domain.TemplateStatusActive {
		t.Errorf("status = %s, want active", activated.Status)
	}
	if !result.Valid {
		t.Errorf("validation result = %+v, want valid", result)
	}
}

func TestTemplateActivate_InvalidBlocks(t *testing.T) {
	env := newTemplateEnv(t)

	broken := draftTemplate()
	broken.Barcode.MessageTemplate = ""
	created, err := env.svc.Create(context.Background(), broken)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	_, result, err := env.svc.Activate(context.Background(), created.ID)
	if !errors.Is(err, domain.ErrTemplateInvalid) {
		t.Fatalf("Activate() error = %v, want %v", err, domain.ErrTemplateInvalid)
	}
	if result == nil || result.Valid || len(result.Errors) == 0 {
		t.Errorf("validation result = %+v, want the blocking errors", result)
	}

	stored, _ := env.templates.GetByID(context.Background(), created.ID)
	if stored.Status != domain.TemplateStatusDraft {
		t.Errorf("status = %s, a failed activation must not change it", stored.Status)
	}
}

func TestTemplateUpdate(t *testing.T) {
	env := newTemplateEnv(t)

	created, err := env.svc.Create(context.Background(), draftTemplate())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	edited := draftTemplate()
	edited.ID = created.ID
	edited.Name = "Event Ticket v2"
	updated, err := env.svc.Update(context.Background(), edited)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Name != "Event Ticket v2" {
		t.Errorf("name = %q, want the edited name", updated.Name)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, every update bumps it", updated.Version)
	}

	if _, _, err := env.svc.Activate(context.Background(), created.ID); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	if _, err := env.svc.Update(context.Background(), edited); !errors.Is(err, domain.ErrTemplateNotEditable) {
		t.Errorf("active update error = %v, want %v", err, domain.ErrTemplateNotEditable)
	}

	// Deactivation reopens editing
	if _, err := env.svc.Deactivate(context.Background(), created.ID); err != nil {
		t.Fatalf("Deactivate() error: %v", err)
	}
	if _, err := env.svc.Update(context.Background(), edited); err != nil {
		t.Errorf("inactive update error = %v, want nil", err)
	}
}

func TestTemplateSetDefault(t *testing.T) {
	env := newTemplateEnv(t)

	activate := func(t *testing.T) *domain.Template {
		t.Helper()
		created, err := env.svc.Create(context.Background(), draftTemplate())
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		activated, _, err := env.svc.Activate(context.Background(), created.ID)
		if err != nil {
			t.Fatalf("Activate() error: %v", err)
		}
		return activated
	}

	first := activate(t)
	second := activate(t)

	if _, err := env.svc.SetDefault(context.Background(), first.ID); err != nil {
		t.Fatalf("SetDefault() error: %v", err)
	}
	if _, err := env.svc.SetDefault(context.Background(), second.ID); err != nil {
		t.Fatalf("SetDefault() error: %v", err)
	}

	demoted, _ := env.templates.GetByID(context.Background(), first.ID)
	if demoted.IsDefault {
		t.Error("promoting a new default must demote the previous one")
	}
	current, err := env.templates.GetDefault(context.Background(), "org-1", domain.PlatformApple)
	if err != nil {
		t.Fatalf("GetDefault() error: %v", err)
	}
	if current.ID != second.ID {
		t.Errorf("default = %s, want %s", current.ID, second.ID)
	}

	draft, err := env.svc.Create(context.Background(), draftTemplate())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := env.svc.SetDefault(context.Background(), draft.ID); !errors.Is(err, domain.ErrTemplateInvalid) {
		t.Errorf("draft default error = %v, want %v", err, domain.ErrTemplateInvalid)
	}
}

func TestTemplateDelete(t *testing.T) {
	env := newTemplateEnv(t)

	created, err := env.svc.Create(context.Background(), draftTemplate())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	pass, err := domain.NewPass("tkt-1", "evt-1", "user-1", created.ID, domain.PlatformApple, 5)
	if err != nil {
		t.Fatalf("NewPass() error: %v", err)
	}
	if err := env.passes.Create(context.Background(), pass); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := env.svc.Delete(context.Background(), created.ID); !errors.Is(err, domain.ErrTemplateInUse) {
		t.Errorf("in-use delete error = %v, want %v", err, domain.ErrTemplateInUse)
	}

	unused, err := env.svc.Create(context.Background(), draftTemplate())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := env.svc.Delete(context.Background(), unused.ID); err != nil {
		t.Errorf("Delete() error = %v, want nil", err)
	}
	if _, err := env.svc.Get(context.Background(), unused.ID); !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Errorf("Get() after delete error = %v, want %v", err, domain.ErrTemplateNotFound)
	}
}

func TestTemplatePreview(t *testing.T) {
	env := newTemplateEnv(t)

	created, err := env.svc.Create(context.Background(), draftTemplate())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	rendered, err := env.svc.Preview(context.Background(), created.ID,
		map[string]string{"event_name": "Go Conf 2026", "ticket_id": "tkt-42"})
	if err != nil {
		t.Fatalf("Preview() error: %v", err)
	}
	if len(rendered.Primary) != 1 || rendered.Primary[0].Value != "Go Conf 2026" {
		t.Errorf("primary fields = %+v, want the substituted event name", rendered.Primary)
	}
	if rendered.BarcodeMessage != "tkt-42" {
		t.Errorf("barcode message = %q, want tkt-42", rendered.BarcodeMessage)
	}
}
