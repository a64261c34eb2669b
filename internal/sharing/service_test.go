package sharing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/token"
)

type sharingEnv struct {
	passes    *repository.MemoryPassRepository
	analytics *repository.MemoryAnalyticsRepository
	tokens    *token.Service
	svc       *Service
}

func newSharingEnv(t *testing.T) *sharingEnv {
	t.Helper()
	tokens, err := token.NewService(&token.Config{Secret: "test-signing-secret"})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	env := &sharingEnv{
		passes:    repository.NewMemoryPassRepository(),
		analytics: repository.NewMemoryAnalyticsRepository(),
		tokens:    tokens,
	}
	env.svc = New(env.passes, env.analytics, tokens, &Config{
		ShareBaseURL: "https://wallet.example.com",
	})
	return env
}

func (env *sharingEnv) addPass(t *testing.T, ticketID string, mutate func(*domain.Pass)) *domain.Pass {
	t.Helper()
	pass, err := domain.NewPass(ticketID, "evt-1", "owner-1", "tpl-1", domain.PlatformApple, 5)
	if err != nil {
		t.Fatalf("NewPass() error: %v", err)
	}
	pass.Status = domain.PassStatusActive
	if mutate != nil {
		mutate(pass)
	}
	if err := env.passes.Create(context.Background(), pass); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return pass
}

func TestShare(t *testing.T) {
	env := newSharingEnv(t)
	pass := env.addPass(t, "tkt-1", nil)

	grant, err := env.svc.Share(context.Background(), pass.ID,
		[]string{"friend@example.com"}, "see you there", time.Hour, 0)
	if err != nil {
		t.Fatalf("Share() error: %v", err)
	}

	if !strings.HasPrefix(grant.ShareURL, "https://wallet.example.com/shared/") {
		t.Errorf("share url = %q, want base-prefixed link", grant.ShareURL)
	}
	payload, err := env.tokens.VerifyShare(grant.ShareToken)
	if err != nil {
		t.Fatalf("issued token must verify: %v", err)
	}
	if payload.PassID != pass.ID || payload.OwnerID != "owner-1" {
		t.Errorf("payload = %+v, want pass and owner identity", payload)
	}

	stored, _ := env.passes.GetByID(context.Background(), pass.ID)
	if stored.Sharing.ShareCount != 1 {
		t.Errorf("share count = %d, want 1", stored.Sharing.ShareCount)
	}
	if stored.Sharing.ActiveToken != grant.ShareToken {
		t.Error("pass must record the active share token")
	}
	if !stored.Sharing.IsRecipient("friend@example.com") {
		t.Error("recipient must be recorded on the pass")
	}

	shares, err := env.analytics.CountSince(context.Background(), pass.ID, domain.EventPassShared, time.Time{})
	if err != nil {
		t.Fatalf("CountSince() error: %v", err)
	}
	if shares != 1 {
		t.Errorf("shared events = %d, want 1", shares)
	}
}

func TestShare_CeilingCountsHistory(t *testing.T) {
	env := newSharingEnv(t)
	pass := env.addPass(t, "tkt-1", nil)

	for i := 0; i < 2; i++ {
		recipient := fmt.Sprintf("friend-%d@example.com", i)
		if _, err := env.svc.Share(context.Background(), pass.ID, []string{recipient}, "", 0, 2); err != nil {
			t.Fatalf("share %d: error: %v", i+1, err)
		}
	}

	// The third share exceeds the ceiling even though earlier links superseded
	// each other
	_, err := env.svc.Share(context.Background(), pass.ID, []string{"friend-3@example.com"}, "", 0, 2)
	if !errors.Is(err, domain.ErrShareLimitReached) {
		t.Errorf("third share error = %v, want %v", err, domain.ErrShareLimitReached)
	}
}

func TestShare_Rejections(t *testing.T) {
	env := newSharingEnv(t)

	tests := []struct {
		name    string
		mutate  func(*domain.Pass)
		wantErr error
	}{
		{"sharing disabled", func(p *domain.Pass) { p.Sharing.Enabled = false }, domain.ErrSharingDisabled},
		{"sharing revoked", func(p *domain.Pass) { p.Sharing.Revoked = true }, domain.ErrShareRevoked},
		{"pass not active", func(p *domain.Pass) { p.Status = domain.PassStatusGenerated }, domain.ErrPassNotActive},
		{"pass expired", func(p *domain.Pass) {
			past := time.Now().UTC().Add(-time.Hour)
			p.ExpiresAt = &past
		}, domain.ErrPassExpired},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pass := env.addPass(t, fmt.Sprintf("tkt-%d", i), tt.mutate)
			_, err := env.svc.Share(context.Background(), pass.ID, []string{"friend@example.com"}, "", 0, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Share() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("no recipients", func(t *testing.T) {
		pass := env.addPass(t, "tkt-norecipients", nil)
		_, err := env.svc.Share(context.Background(), pass.ID, nil, "", 0, 0)
		if !errors.Is(err, domain.ErrRenderDataInvalid) {
			t.Errorf("Share() error = %v, want %v", err, domain.ErrRenderDataInvalid)
		}
	})

	t.Run("unknown pass", func(t *testing.T) {
		_, err := env.svc.Share(context.Background(), "missing", []string{"friend@example.com"}, "", 0, 0)
		if !errors.Is(err, domain.ErrPassNotFound) {
			t.Errorf("Share() error = %v, want %v", err, domain.ErrPassNotFound)
		}
	})
}

func TestAccessShared(t *testing.T) {
	env := newSharingEnv(t)
	pass := env.addPass(t, "tkt-1", nil)

	grant, err := env.svc.Share(context.Background(), pass.ID, []string{"friend@example.com"}, "", time.Hour, 0)
	if err != nil {
		t.Fatalf("Share() error: %v", err)
	}

	shared, err := env.svc.AccessShared(context.Background(), grant.ShareToken, "Friend@Example.com")
	if err != nil {
		t.Fatalf("AccessShared() error: %v", err)
	}
	if shared.ID != pass.ID {
		t.Errorf("accessed pass = %s, want %s", shared.ID, pass.ID)
	}

	stored, _ := env.passes.GetByID(context.Background(), pass.ID)
	if len(stored.Sharing.AccessHistory) != 1 {
		t.Fatalf("access history = %d entries, want 1", len(stored.Sharing.AccessHistory))
	}

	// Non-recipients never get through, even with a valid token
	if _, err := env.svc.AccessShared(context.Background(), grant.ShareToken, "stranger@example.com"); !errors.Is(err, domain.ErrNotRecipient) {
		t.Errorf("stranger access error = %v, want %v", err, domain.ErrNotRecipient)
	}

	if _, err := env.svc.AccessShared(context.Background(), "not-a-token", "friend@example.com"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("garbage token error = %v, want %v", err, domain.ErrTokenInvalid)
	}
}

func TestAccessShared_SupersededToken(t *testing.T) {
	env := newSharingEnv(t)
	pass := env.addPass(t, "tkt-1", nil)

	first, err := env.svc.Share(context.Background(), pass.ID, []string{"friend@example.com"}, "", time.Hour, 0)
	if err != nil {
		t.Fatalf("Share() error: %v", err)
	}
	if _, err := env.svc.Share(context.Background(), pass.ID, []string{"other@example.com"}, "", time.Hour, 0); err != nil {
		t.Fatalf("Share() error: %v", err)
	}

	// Only the latest token resolves
	if _, err := env.svc.AccessShared(context.Background(), first.ShareToken, "friend@example.com"); !errors.Is(err, domain.ErrShareRevoked) {
		t.Errorf("superseded token error = %v, want %v", err, domain.ErrShareRevoked)
	}
}

func TestRevoke(t *testing.T) {
	env := newSharingEnv(t)
	pass := env.addPass(t, "tkt-1", nil)

	grant, err := env.svc.Share(context.Background(), pass.ID, []string{"friend@example.com"}, "", time.Hour, 0)
	if err != nil {
		t.Fatalf("Share() error: %v", err)
	}

	// Plain revoke blocks new shares; the existing link keeps working
	if err := env.svc.Revoke(context.Background(), pass.ID, false); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if _, err := env.svc.AccessShared(context.Background(), grant.ShareToken, "friend@example.com"); err != nil {
		t.Errorf("existing link must survive a plain revoke, got %v", err)
	}
	if _, err := env.svc.Share(context.Background(), pass.ID, []string{"other@example.com"}, "", 0, 0); !errors.Is(err, domain.ErrSharingDisabled) {
		t.Errorf("new share after revoke error = %v, want %v", err, domain.ErrSharingDisabled)
	}

	// revokeAll kills the live token immediately
	if err := env.svc.Revoke(context.Background(), pass.ID, true); err != nil {
		t.Fatalf("Revoke(all) error: %v", err)
	}
	if _, err := env.svc.AccessShared(context.Background(), grant.ShareToken, "friend@example.com"); !errors.Is(err, domain.ErrShareRevoked) {
		t.Errorf("access after revokeAll error = %v, want %v", err, domain.ErrShareRevoked)
	}

	if err := env.svc.Revoke(context.Background(), "missing", true); !errors.Is(err, domain.ErrPassNotFound) {
		t.Errorf("unknown pass error = %v, want %v", err, domain.ErrPassNotFound)
	}
}
