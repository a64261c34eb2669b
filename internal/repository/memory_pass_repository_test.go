package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
)

func newTestPass(t *testing.T, ticketID string) *domain.Pass {
	t.Helper()
	pass, err := domain.NewPass(ticketID, "evt-1", "user-1", "tpl-1", domain.PlatformApple, 5)
	if err != nil {
		t.Fatalf("NewPass() error: %v", err)
	}
	return pass
}

func TestMemoryPassRepository_Uniqueness(t *testing.T) {
	repo := NewMemoryPassRepository()
	pass := newTestPass(t, "tkt-1")
	if err := repo.Create(context.Background(), pass); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	dup := newTestPass(t, "tkt-1")
	if err := repo.Create(context.Background(), dup); !errors.Is(err, domain.ErrTicketAlreadyHasPass) {
		t.Errorf("duplicate ticket error = %v, want %v", err, domain.ErrTicketAlreadyHasPass)
	}

	clash := newTestPass(t, "tkt-2")
	clash.SerialNumber = pass.SerialNumber
	if err := repo.Create(context.Background(), clash); !errors.Is(err, domain.ErrSerialNumberTaken) {
		t.Errorf("duplicate serial error = %v, want %v", err, domain.ErrSerialNumberTaken)
	}
}

func TestMemoryPassRepository_VersionConflict(t *testing.T) {
	repo := NewMemoryPassRepository()
	pass := newTestPass(t, "tkt-1")
	if err := repo.Create(context.Background(), pass); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	first, _ := repo.GetByID(context.Background(), pass.ID)
	second, _ := repo.GetByID(context.Background(), pass.ID)

	if err := repo.Update(context.Background(), first); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	// The second reader still holds the old content version
	if err := repo.Update(context.Background(), second); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale update error = %v, want %v", err, ErrVersionConflict)
	}
}

func TestMemoryPassRepository_RevokeFreesTicket(t *testing.T) {
	repo := NewMemoryPassRepository()
	pass := newTestPass(t, "tkt-1")
	if err := repo.Create(context.Background(), pass); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), pass.ID)
	stored.Status = domain.PassStatusRevoked
	if err := repo.Update(context.Background(), stored); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	if _, err := repo.GetByTicket(context.Background(), "tkt-1"); !errors.Is(err, domain.ErrPassNotFound) {
		t.Errorf("GetByTicket() error = %v, revoked passes must not hold the slot", err)
	}

	reissued := newTestPass(t, "tkt-1")
	if err := repo.Create(context.Background(), reissued); err != nil {
		t.Errorf("reissue after revoke error = %v, want nil", err)
	}
}

func TestMemoryPassRepository_CountByStatus(t *testing.T) {
	repo := NewMemoryPassRepository()

	active := newTestPass(t, "tkt-1")
	active.Status = domain.PassStatusActive
	alsoActive := newTestPass(t, "tkt-2")
	alsoActive.Status = domain.PassStatusActive
	revoked := newTestPass(t, "tkt-3")
	revoked.Status = domain.PassStatusRevoked

	for _, pass := range []*domain.Pass{active, alsoActive, revoked} {
		if err := repo.Create(context.Background(), pass); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus() error: %v", err)
	}
	if counts[domain.PassStatusActive] != 2 || counts[domain.PassStatusRevoked] != 1 {
		t.Errorf("counts = %v, want 2 active and 1 revoked", counts)
	}
}

func TestMemoryPassRepository_ListByTemplate(t *testing.T) {
	repo := NewMemoryPassRepository()

	matching := newTestPass(t, "tkt-1")
	other := newTestPass(t, "tkt-2")
	other.TemplateID = "tpl-other"

	for _, pass := range []*domain.Pass{matching, other} {
		if err := repo.Create(context.Background(), pass); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	passes, err := repo.ListByTemplate(context.Background(), "tpl-1")
	if err != nil {
		t.Fatalf("ListByTemplate() error: %v", err)
	}
	if len(passes) != 1 || passes[0].ID != matching.ID {
		t.Errorf("passes = %v, want only the tpl-1 pass", passes)
	}
}

func TestMemoryPassRepository_ListExpired(t *testing.T) {
	repo := NewMemoryPassRepository()
	now := time.Now().UTC()

	overdue := newTestPass(t, "tkt-1")
	overdue.Status = domain.PassStatusActive
	past := now.Add(-time.Hour)
	overdue.ExpiresAt = &past

	current := newTestPass(t, "tkt-2")
	current.Status = domain.PassStatusActive
	future := now.Add(time.Hour)
	current.ExpiresAt = &future

	revoked := newTestPass(t, "tkt-3")
	revoked.Status = domain.PassStatusRevoked
	revoked.ExpiresAt = &past

	for _, pass := range []*domain.Pass{overdue, current, revoked} {
		if err := repo.Create(context.Background(), pass); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	expired, err := repo.ListExpired(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("ListExpired() error: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != overdue.ID {
		t.Errorf("expired = %v, want only the overdue active pass", expired)
	}
}
