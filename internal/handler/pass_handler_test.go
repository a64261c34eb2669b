package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/service"
	"github.com/passmint/wallet-service/internal/token"
	"github.com/passmint/wallet-service/internal/wallet"
	"github.com/passmint/wallet-service/pkg/response"
)

type passHandlerEnv struct {
	passes    *repository.MemoryPassRepository
	templates *repository.MemoryTemplateRepository
	analytics *repository.MemoryAnalyticsRepository
	tokens    *token.Service
	apple     *wallet.MockGenerator
	google    *wallet.MockGenerator
	passSvc   *service.PassService
	appleTpl  *domain.Template
	googleTpl *domain.Template
	router    *gin.Engine
}

func newPassHandlerEnv(t *testing.T) *passHandlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := token.NewService(&token.Config{Secret: "test-signing-secret"})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}

	env := &passHandlerEnv{
		passes:    repository.NewMemoryPassRepository(),
		templates: repository.NewMemoryTemplateRepository(),
		analytics: repository.NewMemoryAnalyticsRepository(),
		tokens:    tokens,
		apple:     wallet.NewMockGenerator(domain.PlatformApple),
		google:    wallet.NewMockGenerator(domain.PlatformGoogle),
	}
	env.passSvc = service.NewPassService(
		env.passes,
		env.templates,
		env.analytics,
		tokens,
		wallet.NewRegistry(env.apple, env.google),
		&service.PassServiceConfig{PassTypeIdentifier: "pass.com.passmint.event"},
	)
	env.appleTpl = env.addTemplate(t, domain.PlatformApple)
	env.googleTpl = env.addTemplate(t, domain.PlatformGoogle)

	h := NewPassHandler(env.passSvc)
	env.router = gin.New()
	v1 := env.router.Group("/api/v1")
	passes := v1.Group("/passes")
	{
		passes.POST("", h.Issue)
		passes.GET("/:id", h.Get)
		passes.GET("/:id/download", h.Download)
		passes.POST("/:id/revoke", h.Revoke)
		passes.GET("/:id/qr", h.RotatingQR)
		passes.POST("/:id/events", h.RecordEngagement)
	}
	v1.POST("/qr/verify", h.VerifyQR)

	return env
}

func (env *passHandlerEnv) addTemplate(t *testing.T, platform domain.Platform) *domain.Template {
	t.Helper()
	tpl, err := domain.NewTemplate("org-1", platform, "Event Ticket")
	if err != nil {
		t.Fatalf("NewTemplate() error: %v", err)
	}
	tpl.Status = domain.TemplateStatusActive
	tpl.Fields.Primary = []domain.FieldDef{{Key: "event", ValueTemplate: "{{event_name}}"}}
	if err := env.templates.Create(context.Background(), tpl); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return tpl
}

func (env *passHandlerEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *passHandlerEnv) issue(t *testing.T, ticketID string, platform domain.Platform) *domain.Pass {
	t.Helper()
	tpl := env.appleTpl
	if platform == domain.PlatformGoogle {
		tpl = env.googleTpl
	}
	result, err := env.passSvc.IssuePass(context.Background(), &service.IssueRequest{
		TicketID:    ticketID,
		EventID:     "evt-1",
		UserID:      "user-1",
		OrganizerID: "org-1",
		TemplateID:  tpl.ID,
		Platform:    platform,
		Data:        map[string]string{"event_name": "Go Conf 2026"},
	})
	if err != nil {
		t.Fatalf("IssuePass() error: %v", err)
	}
	return result.Pass
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) *response.Response {
	t.Helper()
	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, w.Body.String())
	}
	return &resp
}

func dataField(t *testing.T, resp *response.Response, key string) interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("envelope data = %T, want an object", resp.Data)
	}
	return data[key]
}

func TestPassHandler_Issue(t *testing.T) {
	env := newPassHandlerEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/passes", gin.H{
		"ticket_id":   "tkt-1",
		"event_id":    "evt-1",
		"user_id":     "user-1",
		"template_id": env.appleTpl.ID,
		"platform":    "apple",
		"data":        gin.H{"event_name": "Go Conf 2026"},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	resp := decodeEnvelope(t, w)
	if !resp.Success {
		t.Error("envelope must report success")
	}
	if dataField(t, resp, "status") != "generated" {
		t.Errorf("pass status = %v, want generated", dataField(t, resp, "status"))
	}
	download, _ := dataField(t, resp, "download_url").(string)
	if !strings.HasSuffix(download, "/download") {
		t.Errorf("download_url = %q, apple passes must link the archive", download)
	}
}

func TestPassHandler_Issue_Google(t *testing.T) {
	env := newPassHandlerEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/passes", gin.H{
		"ticket_id":   "tkt-1",
		"event_id":    "evt-1",
		"user_id":     "user-1",
		"template_id": env.googleTpl.ID,
		"platform":    "google",
		"data":        gin.H{"event_name": "Go Conf 2026"},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	resp := decodeEnvelope(t, w)
	saveURL, _ := dataField(t, resp, "save_url").(string)
	if !strings.HasPrefix(saveURL, "https://pay.google.com/gp/v/save/") {
		t.Errorf("save_url = %q, google passes must link the save flow", saveURL)
	}
}

func TestPassHandler_Issue_Rejections(t *testing.T) {
	env := newPassHandlerEnv(t)
	env.issue(t, "tkt-1", domain.PlatformApple)

	t.Run("duplicate ticket", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/api/v1/passes", gin.H{
			"ticket_id":   "tkt-1",
			"event_id":    "evt-1",
			"user_id":     "user-1",
			"template_id": env.appleTpl.ID,
			"platform":    "apple",
		})
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", w.Code)
		}
	})

	t.Run("missing required fields", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/api/v1/passes", gin.H{"ticket_id": "tkt-2"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("unknown template", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/api/v1/passes", gin.H{
			"ticket_id":   "tkt-3",
			"event_id":    "evt-1",
			"user_id":     "user-1",
			"template_id": "missing",
			"platform":    "apple",
		})
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestPassHandler_Get(t *testing.T) {
	env := newPassHandlerEnv(t)
	pass := env.issue(t, "tkt-1", domain.PlatformApple)

	w := env.request(t, http.MethodGet, "/api/v1/passes/"+pass.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeEnvelope(t, w)
	if dataField(t, resp, "id") != pass.ID {
		t.Errorf("pass id = %v, want %s", dataField(t, resp, "id"), pass.ID)
	}

	w = env.request(t, http.MethodGet, "/api/v1/passes/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPassHandler_Download(t *testing.T) {
	env := newPassHandlerEnv(t)

	t.Run("apple streams the archive", func(t *testing.T) {
		pass := env.issue(t, "tkt-1", domain.PlatformApple)
		w := env.request(t, http.MethodGet, "/api/v1/passes/"+pass.ID+"/download", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != wallet.PKPassContentType {
			t.Errorf("content type = %q, want %q", ct, wallet.PKPassContentType)
		}
		if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, ".pkpass") {
			t.Errorf("content disposition = %q, want a pkpass attachment", cd)
		}
		if w.Body.Len() == 0 {
			t.Error("response body must carry the archive")
		}
	})

	t.Run("google redirects to the save link", func(t *testing.T) {
		pass := env.issue(t, "tkt-2", domain.PlatformGoogle)
		w := env.request(t, http.MethodGet, "/api/v1/passes/"+pass.ID+"/download", nil)
		if w.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", w.Code)
		}
		if loc := w.Header().Get("Location"); !strings.Contains(loc, pass.ID) {
			t.Errorf("location = %q, want the pass save link", loc)
		}
	})
}

func TestPassHandler_Revoke(t *testing.T) {
	env := newPassHandlerEnv(t)
	pass := env.issue(t, "tkt-1", domain.PlatformApple)

	w := env.request(t, http.MethodPost, "/api/v1/passes/"+pass.ID+"/revoke",
		gin.H{"reason": "refunded"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	resp := decodeEnvelope(t, w)
	if dataField(t, resp, "status") != "revoked" {
		t.Errorf("status = %v, want revoked", dataField(t, resp, "status"))
	}
	if dataField(t, resp, "status_reason") != "refunded" {
		t.Errorf("status reason = %v, want the revocation reason", dataField(t, resp, "status_reason"))
	}
}

func TestPassHandler_VerifyQR(t *testing.T) {
	env := newPassHandlerEnv(t)
	pass := env.issue(t, "tkt-1", domain.PlatformApple)

	w := env.request(t, http.MethodPost, "/api/v1/qr/verify", gin.H{"token": pass.BarcodePayload})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	resp := decodeEnvelope(t, w)
	if dataField(t, resp, "valid") != true {
		t.Error("verified scan must report valid")
	}
	if dataField(t, resp, "ticket_id") != "tkt-1" {
		t.Errorf("ticket = %v, want tkt-1", dataField(t, resp, "ticket_id"))
	}

	w = env.request(t, http.MethodPost, "/api/v1/qr/verify", gin.H{"token": "garbage"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestPassHandler_RotatingQR(t *testing.T) {
	env := newPassHandlerEnv(t)
	pass := env.issue(t, "tkt-1", domain.PlatformApple)

	w := env.request(t, http.MethodGet, "/api/v1/passes/"+pass.ID+"/qr", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeEnvelope(t, w)
	rotating, _ := dataField(t, resp, "token").(string)
	if _, err := env.tokens.VerifyQR(rotating); err != nil {
		t.Errorf("rotating token must verify: %v", err)
	}
}

func TestPassHandler_RecordEngagement(t *testing.T) {
	env := newPassHandlerEnv(t)
	pass := env.issue(t, "tkt-1", domain.PlatformApple)

	path := fmt.Sprintf("/api/v1/passes/%s/events", pass.ID)
	w := env.request(t, http.MethodPost, path, gin.H{"kind": "opened", "device_id": "dev-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodPost, path, gin.H{"kind": "deleted"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, unknown kinds must be rejected", w.Code)
	}
}
