package pdfhttp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	metricsprom "github.com/goliatone/go-pdfgen/adapters/metrics/prom"
	pdftemplate "github.com/goliatone/go-pdfgen/adapters/template"
	"github.com/goliatone/go-pdfgen/pdfgen"
	"github.com/prometheus/client_golang/prometheus"
)

type testEnv struct {
	app    *fiber.App
	store  *pdfgen.MemoryStore
	ledger *pdfgen.MemoryLedger
	calls  *int32
	now    time.Time
}

func newTestEnv(t *testing.T, mode pdfgen.Mode, renderErr error, mutate func(*AppConfig)) testEnv {
	t.Helper()
	var calls int32
	now := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	store := pdfgen.NewMemoryStore()
	ledger := pdfgen.NewMemoryLedger()

	cfg := pdfgen.DefaultConfig()
	cfg.Mode = mode
	cfg.Location = time.UTC

	svc, err := pdfgen.NewService(pdfgen.ServiceConfig{
		Config: cfg,
		Renderer: pdfgen.RendererFunc(func(ctx context.Context, req pdfgen.RenderRequest) ([]byte, error) {
			atomic.AddInt32(&calls, 1)
			if renderErr != nil {
				return nil, renderErr
			}
			return append([]byte("%PDF-1.4\n"), req.HTML...), nil
		}),
		Templates: pdftemplate.DefaultSource(),
		Templater: pdftemplate.PlaceholderTemplate{},
		Store:     store,
		Ledger:    ledger,
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	appCfg := AppConfig{Service: svc, Store: store}
	if mutate != nil {
		mutate(&appCfg)
	}
	app, err := NewApp(appCfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return testEnv{app: app, store: store, ledger: ledger, calls: &calls, now: now}
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func postJSON(t *testing.T, app *fiber.App, payload string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, body := doRequest(t, app, req)
	return resp, decode(t, body)
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, pdfgen.ModeLink, nil, nil)
	resp, body := doRequest(t, env.app, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "charset=utf-8") {
		t.Fatalf("expected utf-8 json, got %q", resp.Header.Get("Content-Type"))
	}
	payload := decode(t, body)
	if payload["code"] != float64(200) || payload["msg"] != pdfgen.MsgHealthy {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["time"] != "2024/3/5 09:30:00" {
		t.Fatalf("unexpected time: %v", payload["time"])
	}
}

func TestGenerate_LinkModeRoundTrip(t *testing.T) {
	env := newTestEnv(t, pdfgen.ModeLink, nil, nil)

	resp, payload := postJSON(t, env.app, `{"content":"Hello World"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if payload["code"] != float64(200) || payload["msg"] != pdfgen.MsgGenerated {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, ok := payload["pdf_base64"]; ok {
		t.Fatalf("link mode must not include pdf_base64")
	}
	link, _ := payload["pdf_url"].(string)
	if !strings.HasPrefix(link, "http://example.com/pdfs/") || !strings.HasSuffix(link, ".pdf") {
		t.Fatalf("unexpected pdf_url: %q", link)
	}

	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	resp, body := doRequest(t, env.app, httptest.NewRequest(http.MethodGet, parsed.Path, nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected download 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected content type: %q", resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		t.Fatalf("expected pdf bytes")
	}
	if !bytes.Contains(body, []byte("Hello World")) || !bytes.Contains(body, []byte("2024/3/5 09:30:00")) {
		t.Fatalf("expected content and timestamp in rendered document")
	}
}

func TestGenerate_ForwardedProto(t *testing.T) {
	env := newTestEnv(t, pdfgen.ModeLink, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"content":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Host = "pdf.example.org"
	_, body := doRequest(t, env.app, req)
	link, _ := decode(t, body)["pdf_url"].(string)
	if !strings.HasPrefix(link, "https://pdf.example.org/pdfs/") {
		t.Fatalf("unexpected pdf_url: %q", link)
	}
}

func TestGenerate_MissingContent(t *testing.T) {
	env := newTestEnv(t, pdfgen.ModeLink, nil, nil)

	for _, payload := range []string{`{}`, `{"content":""}`, `{"content":"  \n\t"}`, ``, `not json`} {
		resp, out := postJSON(t, env.app, payload)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%q: expected HTTP 200, got %d", payload, resp.StatusCode)
		}
		if out["code"] != float64(400) || out["msg"] != pdfgen.MsgMissingContent {
			t.Fatalf("%q: unexpected payload: %v", payload, out)
		}
		if link, ok := out["pdf_url"]; !ok || link != "" {
			t.Fatalf("%q: expected empty pdf_url, got %v", payload, link)
		}
	}
	if atomic.LoadInt32(env.calls) != 0 {
		t.Fatalf("renderer must not be called for invalid input")
	}
	refs, _ := env.store.List(context.Background())
	if len(refs) != 0 || env.ledger.Len() != 0 {
		t.Fatalf("expected no side effects, got %d files %d records", len(refs), env.ledger.Len())
	}
}

func TestGenerate_FormBody(t *testing.T) {
	env := newTestEnv(t, pdfgen.ModeLink, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader("content=from+a+form"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, body := doRequest(t, env.app, req)
	if out := decode(t, body); out["code"] != float64(200) {
		t.Fatalf("unexpected payload: %v", out)
	}
}

func TestGenerate_RendererFailure(t *testing.T) {
	env := newTestEnv(t, pdfgen.ModeLink, errors.New("browser crashed"), nil)
	resp, out := postJSON(t, env.app, `{"content":"Hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", resp.StatusCode)
	}
	if out["code"] != float64(500) || out["msg"] != pdfgen.MsgFailed {
		t.Fatalf("unexpected payload: %v", out)
	}
	if out["pdf_url"] != "" {
		t.Fatalf("expected empty pdf_url, got %v", out["pdf_url"])
	}
	if _, ok := out["error"]; ok {
		t.Fatalf("error detail must be hidden by default")
	}
}

func TestGenerate_InlineMode(t *testing.T) {
	env := newTestEnv(t, pdfgen.ModeInline, nil, nil)
	_, out := postJSON(t, env.app, `{"content":"Hello World"}`)
	if out["code"] != float64(200) {
		t.Fatalf("unexpected payload: %v", out)
	}
	if _, ok := out["pdf_url"]; ok {
		t.Fatalf("inline mode must not include pdf_url")
	}
	encoded, _ := out["pdf_base64"].(string)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("expected pdf bytes")
	}

	resp, body := doRequest(t, env.app, httptest.NewRequest(http.MethodGet, "/pdfs/anything.pdf", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected download route to be absent, got %d", resp.StatusCode)
	}
	if payload := decode(t, body); payload["code"] != float64(404) {
		t.Fatalf("expected json 404, got %v", payload)
	}
}

func TestDownload_NotFoundAndExpired(t *testing.T) {
	env := newTestEnv(t, pdfgen.ModeLink, nil, nil)

	resp, _ := doRequest(t, env.app, httptest.NewRequest(http.MethodGet, "/pdfs/missing.pdf", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing file, got %d", resp.StatusCode)
	}

	_, err := env.store.Put(context.Background(), "old.pdf", bytes.NewBufferString("%PDF-1.4"), pdfgen.ArtifactMeta{
		ContentType: "application/pdf",
		ExpiresAt:   env.now.Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp, _ = doRequest(t, env.app, httptest.NewRequest(http.MethodGet, "/pdfs/old.pdf", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for expired file, got %d", resp.StatusCode)
	}
}

func TestBodyLimit(t *testing.T) {
	var calls int32
	cfg := pdfgen.DefaultConfig()
	cfg.Mode = pdfgen.ModeInline
	cfg.MaxBodyBytes = 64
	svc, err := pdfgen.NewService(pdfgen.ServiceConfig{
		Config: cfg,
		Renderer: pdfgen.RendererFunc(func(ctx context.Context, req pdfgen.RenderRequest) ([]byte, error) {
			atomic.AddInt32(&calls, 1)
			return []byte("%PDF-1.4"), nil
		}),
		Templates: pdftemplate.DefaultSource(),
		Templater: pdftemplate.PlaceholderTemplate{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	app, err := NewApp(AppConfig{Service: svc})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	payload := `{"content":"` + strings.Repeat("x", 200) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := doRequest(t, app, req)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("renderer must not run for oversized bodies")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	hook := metricsprom.NewHook(reg)
	env := newTestEnv(t, pdfgen.ModeLink, nil, func(cfg *AppConfig) {
		cfg.HTTPMetrics = metricsprom.NewMetricsBuilder(reg)
		cfg.Gatherer = reg
	})
	_ = hook.Emit(context.Background(), pdfgen.MetricsEvent{Mode: pdfgen.ModeLink, Outcome: pdfgen.OutcomeSucceeded})

	postJSON(t, env.app, `{"content":"Hello"}`)
	resp, body := doRequest(t, env.app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{"pdfgen_generations_total", "http_requests_total"} {
		if !bytes.Contains(body, []byte(name)) {
			t.Fatalf("expected %s in exposition", name)
		}
	}
}

func TestGenerate_PassesUserContextToRenderer(t *testing.T) {
	var sawCanceled atomic.Bool
	cfg := pdfgen.DefaultConfig()
	cfg.Mode = pdfgen.ModeInline
	svc, err := pdfgen.NewService(pdfgen.ServiceConfig{
		Config: cfg,
		Renderer: pdfgen.RendererFunc(func(ctx context.Context, req pdfgen.RenderRequest) ([]byte, error) {
			if errors.Is(ctx.Err(), context.Canceled) {
				sawCanceled.Store(true)
				return nil, ctx.Err()
			}
			return []byte("%PDF-1.4"), nil
		}),
		Templates: pdftemplate.DefaultSource(),
		Templater: pdftemplate.PlaceholderTemplate{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		ctx, cancel := context.WithCancel(c.UserContext())
		cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})
	RegisterRoutes(app, NewHandler(svc, nil, nil), nil)

	_, payload := postJSON(t, app, `{"content":"Hello"}`)
	if !sawCanceled.Load() {
		t.Fatalf("expected the request context to reach the renderer")
	}
	if payload["code"] != float64(500) || payload["pdf_base64"] != "" {
		t.Fatalf("expected failure envelope, got %v", payload)
	}
}

func TestRecoverReturnsJSON(t *testing.T) {
	env := newTestEnv(t, pdfgen.ModeLink, nil, nil)
	env.app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})
	resp, body := doRequest(t, env.app, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	payload := decode(t, body)
	if payload["code"] != float64(500) || payload["msg"] != pdfgen.MsgFailed {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestNewApp_RequiresStoreInLinkMode(t *testing.T) {
	cfg := pdfgen.DefaultConfig()
	cfg.Mode = pdfgen.ModeInline
	svc, err := pdfgen.NewService(pdfgen.ServiceConfig{
		Config:    cfg,
		Renderer:  pdfgen.RendererFunc(func(context.Context, pdfgen.RenderRequest) ([]byte, error) { return nil, nil }),
		Templates: pdftemplate.DefaultSource(),
		Templater: pdftemplate.PlaceholderTemplate{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := NewApp(AppConfig{Service: svc}); err != nil {
		t.Fatalf("inline mode should not need a store: %v", err)
	}
	if _, err := NewApp(AppConfig{}); !pdfgen.IsValidation(err) {
		t.Fatalf("expected validation error without service, got %v", err)
	}
}
