package pdftemplate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-pdfgen/pdfgen"
)

func TestFileSource_ReadsEachLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.html")
	if err := os.WriteFile(path, []byte("v1 {{content}} {{time}}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := FileSource{Path: path}

	got, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "v1 {{content}} {{time}}" {
		t.Fatalf("unexpected template: %q", got)
	}

	if err := os.WriteFile(path, []byte("v2 {{content}} {{time}}"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got, err = src.Load(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got != "v2 {{content}} {{time}}" {
		t.Fatalf("expected updated template, got %q", got)
	}
}

func TestFileSource_Missing(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "nope.html")}.Load(context.Background())
	if pdfgen.KindFromError(err) != pdfgen.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestSourceFor(t *testing.T) {
	if _, ok := SourceFor("").(StringSource); !ok {
		t.Fatalf("expected embedded source for empty path")
	}
	if src, ok := SourceFor("/tmp/x.html").(FileSource); !ok || src.Path != "/tmp/x.html" {
		t.Fatalf("expected file source")
	}
	got, err := DefaultSource().Load(context.Background())
	if err != nil || got != DefaultTemplate() {
		t.Fatalf("default source mismatch: %v", err)
	}
	if _, err := StringSource("  ").Load(context.Background()); err == nil {
		t.Fatalf("expected error for empty template")
	}
}
