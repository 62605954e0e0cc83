package pdfengine

import (
	"bytes"
	"context"
	"sync"

	"github.com/goliatone/go-pdfgen/pdfgen"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// Inspector parses rendered output with pdfcpu and reports its page count.
type Inspector struct {
	// MaxPages rejects documents longer than this. Zero means unlimited.
	MaxPages int

	conf *model.Configuration
}

// NewInspector creates an inspector using relaxed validation. pdfcpu's user
// config directory is disabled so inspection never touches the filesystem.
func NewInspector() *Inspector {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Inspector{conf: conf}
}

// Inspect validates pdf and counts its pages.
func (i *Inspector) Inspect(ctx context.Context, pdf []byte) (pdfgen.PDFInfo, error) {
	if i == nil || i.conf == nil {
		return pdfgen.PDFInfo{}, pdfgen.NewError(pdfgen.KindRender, "inspector not initialized", nil)
	}
	if err := ctx.Err(); err != nil {
		return pdfgen.PDFInfo{}, err
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		return pdfgen.PDFInfo{}, pdfgen.NewError(pdfgen.KindRender, "missing pdf header", nil)
	}

	pages, err := api.PageCount(bytes.NewReader(pdf), i.conf)
	if err != nil {
		return pdfgen.PDFInfo{}, pdfgen.NewError(pdfgen.KindRender, "pdf validation failed", err)
	}
	if pages < 1 {
		return pdfgen.PDFInfo{}, pdfgen.NewError(pdfgen.KindRender, "pdf has no pages", nil)
	}
	if i.MaxPages > 0 && pages > i.MaxPages {
		return pdfgen.PDFInfo{}, pdfgen.NewError(pdfgen.KindRender, "pdf exceeds page limit", nil)
	}
	return pdfgen.PDFInfo{Pages: pages, Bytes: int64(len(pdf))}, nil
}
