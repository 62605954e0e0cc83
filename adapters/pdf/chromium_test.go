package pdfengine

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-pdfgen/pdfgen"
)

func chromeBinaryPath(t *testing.T) string {
	t.Helper()

	chromePath := os.Getenv("CHROME_BIN")
	if chromePath == "" {
		for _, candidate := range []string{"google-chrome", "chromium", "chromium-browser"} {
			if path, err := exec.LookPath(candidate); err == nil {
				chromePath = path
				break
			}
		}
	}
	if chromePath == "" {
		t.Skip("chromium binary not found; set CHROME_BIN to run this test")
	}
	return chromePath
}

func newTestEngine(t *testing.T) *ChromiumEngine {
	t.Helper()
	engine := &ChromiumEngine{
		BrowserPath: chromeBinaryPath(t),
		Headless:    true,
		Timeout:     10 * time.Second,
		Args:        []string{"--no-sandbox", "--disable-dev-shm-usage"},
		DefaultPDF:  pdfgen.DefaultPDFOptions(),
	}
	t.Cleanup(func() {
		_ = engine.Close()
	})
	return engine
}

func TestParseLengthInches(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{input: "1in", want: 1},
		{input: "25.4mm", want: 1},
		{input: "2.54cm", want: 1},
		{input: "72pt", want: 1},
		{input: "96px", want: 1},
		{input: "2", want: 2},
		{input: " 20MM ", want: 20 / 25.4},
	}

	for _, tc := range tests {
		got, err := ParseLengthInches(tc.input)
		if err != nil {
			t.Fatalf("ParseLengthInches(%q): %v", tc.input, err)
		}
		if diff := got - tc.want; diff > 0.0001 || diff < -0.0001 {
			t.Fatalf("ParseLengthInches(%q): expected %f, got %f", tc.input, tc.want, got)
		}
	}
}

func TestParseLengthInches_Invalid(t *testing.T) {
	for _, input := range []string{"", "abc", "10em", "-5mm"} {
		_, err := ParseLengthInches(input)
		if err == nil {
			t.Fatalf("ParseLengthInches(%q): expected error", input)
		}
		if !pdfgen.IsValidation(err) {
			t.Fatalf("ParseLengthInches(%q): expected validation error, got %v", input, err)
		}
	}
}

func TestBuildPrintToPDFParams_Defaults(t *testing.T) {
	params, err := buildPrintToPDFParams(pdfgen.DefaultPDFOptions())
	if err != nil {
		t.Fatalf("buildPrintToPDFParams: %v", err)
	}
	if params.PaperWidth != 8.27 || params.PaperHeight != 11.69 {
		t.Fatalf("expected A4 paper, got width=%f height=%f", params.PaperWidth, params.PaperHeight)
	}
	want := 20 / 25.4
	for name, got := range map[string]float64{
		"top":    params.MarginTop,
		"bottom": params.MarginBottom,
		"left":   params.MarginLeft,
		"right":  params.MarginRight,
	} {
		if diff := got - want; diff > 0.0001 || diff < -0.0001 {
			t.Fatalf("expected %s margin %f, got %f", name, want, got)
		}
	}
	if !params.PrintBackground {
		t.Fatalf("expected print background true")
	}
	if params.PreferCSSPageSize {
		t.Fatalf("expected explicit page size to win over css page size")
	}
}

func TestBuildPrintToPDFParams_Rejects(t *testing.T) {
	cases := map[string]pdfgen.PDFOptions{
		"page size": {PageSize: "B9"},
		"margin":    {MarginLeft: "wide"},
		"scale":     {Scale: 3},
	}
	for name, opts := range cases {
		if _, err := buildPrintToPDFParams(opts); err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if err := ValidateOptions(opts); !pdfgen.IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestMergePDFOptions(t *testing.T) {
	base := pdfgen.DefaultPDFOptions()
	merged := MergePDFOptions(base, pdfgen.PDFOptions{PageSize: "Letter", MarginTop: "1in"})
	if merged.PageSize != "Letter" {
		t.Fatalf("expected override page size, got %q", merged.PageSize)
	}
	if merged.MarginTop != "1in" || merged.MarginBottom != "20mm" {
		t.Fatalf("unexpected margins: top=%q bottom=%q", merged.MarginTop, merged.MarginBottom)
	}
	if merged.PrintBackground == nil || !*merged.PrintBackground {
		t.Fatalf("expected print background to carry over")
	}
}

func TestInjectBaseURL(t *testing.T) {
	input := []byte("<html><head><title>Test</title></head><body>ok</body></html>")
	out := injectBaseURL(input, "https://assets.local/")
	if !bytes.Contains(out, []byte(`<head><base href="https://assets.local/">`)) {
		t.Fatalf("expected base tag after head, got %s", out)
	}

	existing := []byte(`<html><head><base href="/x/"></head></html>`)
	if got := injectBaseURL(existing, "https://assets.local/"); !bytes.Equal(got, existing) {
		t.Fatalf("expected existing base tag to be kept, got %s", got)
	}

	bare := injectBaseURL([]byte("<p>hi</p>"), "https://assets.local/")
	if !strings.HasPrefix(string(bare), "<base") {
		t.Fatalf("expected base tag prefix, got %s", bare)
	}
}

func TestAllocatorOptionsFromArgs(t *testing.T) {
	opts := allocatorOptionsFromArgs([]string{"--no-sandbox", " ", "--window-size=800,600"})
	if len(opts) != 2 {
		t.Fatalf("expected 2 allocator options, got %d", len(opts))
	}
}

func TestChromiumEngine_Render_Smoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chromium smoke test in short mode")
	}
	engine := newTestEngine(t)

	pdf, err := engine.Render(context.Background(), pdfgen.RenderRequest{
		HTML: []byte("<html><body><h1>Hello World</h1></body></html>"),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("expected pdf output, got %q", pdf[:min(len(pdf), 8)])
	}

	info, err := NewInspector().Inspect(context.Background(), pdf)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.Pages != 1 {
		t.Fatalf("expected 1 page, got %d", info.Pages)
	}
}

func TestChromiumEngine_Render_Canceled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chromium cancel test in short mode")
	}
	engine := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Render(ctx, pdfgen.RenderRequest{HTML: []byte("<p>late</p>")})
	if err == nil {
		t.Fatalf("expected error for canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestChromiumEngine_Render_BlocksExternalAssets(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chromium external asset test in short mode")
	}
	engine := newTestEngine(t)

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	html := []byte("<html><body><img src=\"" + server.URL + "/asset.png\"></body></html>")
	_, err := engine.Render(context.Background(), pdfgen.RenderRequest{
		HTML: html,
		Options: pdfgen.PDFOptions{
			ExternalAssetsPolicy: pdfgen.PDFExternalAssetsBlock,
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	time.Sleep(500 * time.Millisecond)

	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected external assets to be blocked, got %d request(s)", hits)
	}
}
