package pdfengine

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
)

// minimalPDF builds a valid document with empty letter-sized pages.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", i+3))
	}
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << >> >>", strings.Join(kids, " "), pages),
	}
	for i := 0; i < pages; i++ {
		objects = append(objects, "<< /Type /Page /Parent 2 0 R >>")
	}

	offsets := make([]int, 0, len(objects))
	for i, body := range objects {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestInspector_CountsPages(t *testing.T) {
	inspector := NewInspector()
	for _, pages := range []int{1, 3} {
		doc := minimalPDF(pages)
		info, err := inspector.Inspect(context.Background(), doc)
		if err != nil {
			t.Fatalf("inspect %d pages: %v", pages, err)
		}
		if info.Pages != pages {
			t.Fatalf("expected %d pages, got %d", pages, info.Pages)
		}
		if info.Bytes != int64(len(doc)) {
			t.Fatalf("expected %d bytes, got %d", len(doc), info.Bytes)
		}
	}
}

func TestInspector_RejectsGarbage(t *testing.T) {
	inspector := NewInspector()
	if _, err := inspector.Inspect(context.Background(), []byte("hello")); err == nil {
		t.Fatalf("expected error for missing header")
	}
	if _, err := inspector.Inspect(context.Background(), []byte("%PDF-1.4\nnot really a pdf")); err == nil {
		t.Fatalf("expected error for truncated pdf")
	}
}

func TestInspector_MaxPages(t *testing.T) {
	inspector := NewInspector()
	inspector.MaxPages = 2
	if _, err := inspector.Inspect(context.Background(), minimalPDF(3)); err == nil {
		t.Fatalf("expected page limit error")
	}
	if _, err := inspector.Inspect(context.Background(), minimalPDF(2)); err != nil {
		t.Fatalf("expected 2 pages to pass: %v", err)
	}
}

func TestInspector_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewInspector().Inspect(ctx, minimalPDF(1)); err == nil {
		t.Fatalf("expected error for canceled context")
	}
}
