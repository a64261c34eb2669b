package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
)

type deviceEnv struct {
	*passEnv
	devices *repository.MemoryDeviceRepository
	svc     *DeviceService
}

func newDeviceEnv(t *testing.T) *deviceEnv {
	t.Helper()
	base := newPassEnv(t)
	env := &deviceEnv{
		passEnv: base,
		devices: repository.NewMemoryDeviceRepository(),
	}
	env.svc = NewDeviceService(env.devices, base.passes, base.templates,
		base.svc.wallets, base.svc)
	return env
}

// issueDelivered cuts a pass and walks it to delivered, where wallet apps
// start registering
func (env *deviceEnv) issueDelivered(t *testing.T, ticketID string) *domain.Pass {
	t.Helper()
	tpl := env.addTemplate(t, nil)
	result, err := env.passEnv.svc.IssuePass(context.Background(), issueRequest(tpl, ticketID))
	if err != nil {
		t.Fatalf("IssuePass() error: %v", err)
	}
	pass, _, err := env.passEnv.svc.DownloadPass(context.Background(), result.Pass.ID)
	if err != nil {
		t.Fatalf("DownloadPass() error: %v", err)
	}
	return pass
}

func TestRegister(t *testing.T) {
	env := newDeviceEnv(t)
	pass := env.issueDelivered(t, "tkt-1")

	created, err := env.svc.Register(context.Background(),
		"device-1", pass.PassTypeIdentifier, pass.SerialNumber, pass.AuthenticationToken, "push-token-1")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if !created {
		t.Error("first registration must report created")
	}

	// First registration walks the pass to active
	stored, _ := env.passes.GetByID(context.Background(), pass.ID)
	if stored.Status != domain.PassStatusActive {
		t.Errorf("status after registration = %s, want active", stored.Status)
	}

	created, err = env.svc.Register(context.Background(),
		"device-1", pass.PassTypeIdentifier, pass.SerialNumber, pass.AuthenticationToken, "push-token-2")
	if err != nil {
		t.Fatalf("re-Register() error: %v", err)
	}
	if created {
		t.Error("re-registration must not report created")
	}

	regs, err := env.devices.DevicesForPass(context.Background(), pass.PassTypeIdentifier, pass.SerialNumber)
	if err != nil {
		t.Fatalf("DevicesForPass() error: %v", err)
	}
	if len(regs) != 1 || regs[0].PushToken != "push-token-2" {
		t.Errorf("registrations = %+v, want one with the refreshed push token", regs)
	}
}

func TestRegister_Rejections(t *testing.T) {
	env := newDeviceEnv(t)
	pass := env.issueDelivered(t, "tkt-1")

	if _, err := env.svc.Register(context.Background(),
		"device-1", pass.PassTypeIdentifier, pass.SerialNumber, "wrong-token", "push"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("bad token error = %v, want %v", err, domain.ErrUnauthorized)
	}

	if _, err := env.svc.Register(context.Background(),
		"device-1", pass.PassTypeIdentifier, "unknown-serial", pass.AuthenticationToken, "push"); !errors.Is(err, domain.ErrPassNotFound) {
		t.Errorf("unknown serial error = %v, want %v", err, domain.ErrPassNotFound)
	}
}

func TestChangedSerials(t *testing.T) {
	env := newDeviceEnv(t)
	pass := env.issueDelivered(t, "tkt-1")

	if _, err := env.svc.Register(context.Background(),
		"device-1", pass.PassTypeIdentifier, pass.SerialNumber, pass.AuthenticationToken, "push"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	touchedAt := time.Now().UTC()
	env.devices.TouchSerial(pass.SerialNumber, touchedAt)

	serials, lastUpdated, err := env.svc.ChangedSerials(context.Background(),
		"device-1", pass.PassTypeIdentifier, touchedAt.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ChangedSerials() error: %v", err)
	}
	if len(serials) != 1 || serials[0] != pass.SerialNumber {
		t.Errorf("serials = %v, want the touched serial", serials)
	}
	if !lastUpdated.Equal(touchedAt) {
		t.Errorf("last updated = %v, want %v", lastUpdated, touchedAt)
	}

	// Nothing changed since the tag
	serials, _, err = env.svc.ChangedSerials(context.Background(),
		"device-1", pass.PassTypeIdentifier, touchedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("ChangedSerials() error: %v", err)
	}
	if len(serials) != 0 {
		t.Errorf("serials = %v, want none after the tag", serials)
	}
}

func TestLatestPass(t *testing.T) {
	env := newDeviceEnv(t)
	pass := env.issueDelivered(t, "tkt-1")

	deliverable, modifiedAt, err := env.svc.LatestPass(context.Background(),
		pass.PassTypeIdentifier, pass.SerialNumber, pass.AuthenticationToken)
	if err != nil {
		t.Fatalf("LatestPass() error: %v", err)
	}
	if len(deliverable.Data) == 0 {
		t.Error("deliverable must carry the archive bytes")
	}
	if !modifiedAt.Equal(pass.UpdatedAt) {
		t.Errorf("modified at = %v, want the pass update instant %v", modifiedAt, pass.UpdatedAt)
	}

	if _, _, err := env.svc.LatestPass(context.Background(),
		pass.PassTypeIdentifier, pass.SerialNumber, "wrong-token"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("bad token error = %v, want %v", err, domain.ErrUnauthorized)
	}
}

func TestUnregister(t *testing.T) {
	env := newDeviceEnv(t)
	pass := env.issueDelivered(t, "tkt-1")

	if _, err := env.svc.Register(context.Background(),
		"device-1", pass.PassTypeIdentifier, pass.SerialNumber, pass.AuthenticationToken, "push"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if err := env.svc.Unregister(context.Background(),
		"device-1", pass.PassTypeIdentifier, pass.SerialNumber, pass.AuthenticationToken); err != nil {
		t.Fatalf("Unregister() error: %v", err)
	}

	regs, _ := env.devices.DevicesForPass(context.Background(), pass.PassTypeIdentifier, pass.SerialNumber)
	if len(regs) != 0 {
		t.Errorf("registrations = %d, want none after unregister", len(regs))
	}

	err := env.svc.Unregister(context.Background(),
		"device-1", pass.PassTypeIdentifier, pass.SerialNumber, pass.AuthenticationToken)
	if !errors.Is(err, domain.ErrDeviceNotFound) {
		t.Errorf("repeat unregister error = %v, want %v", err, domain.ErrDeviceNotFound)
	}
}
