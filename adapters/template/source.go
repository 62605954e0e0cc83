package pdftemplate

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/goliatone/go-pdfgen/pdfgen"
)

//go:embed assets/report.html
var defaultTemplate string

// DefaultTemplate returns the embedded report template.
func DefaultTemplate() string {
	return defaultTemplate
}

// StringSource serves a fixed template.
type StringSource string

// Load returns the template.
func (s StringSource) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(string(s)) == "" {
		return "", pdfgen.NewError(pdfgen.KindValidation, "template is empty", nil)
	}
	return string(s), nil
}

// DefaultSource serves the embedded report template.
func DefaultSource() StringSource {
	return StringSource(defaultTemplate)
}

// FileSource reads the template from disk on every Load, so edits are picked
// up without a restart.
type FileSource struct {
	Path string
}

// Load reads the template file.
func (s FileSource) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(s.Path) == "" {
		return "", pdfgen.NewError(pdfgen.KindValidation, "template path is required", nil)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", pdfgen.NewError(pdfgen.KindNotFound, fmt.Sprintf("template %s not found", s.Path), err)
		}
		return "", pdfgen.NewError(pdfgen.KindTemplate, fmt.Sprintf("read template %s", s.Path), err)
	}
	return string(data), nil
}

// SourceFor returns a FileSource when path is set and the embedded template
// otherwise.
func SourceFor(path string) pdfgen.TemplateSource {
	if strings.TrimSpace(path) == "" {
		return DefaultSource()
	}
	return FileSource{Path: path}
}
