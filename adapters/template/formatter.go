package pdftemplate

import (
	"bytes"
	"html"
	"strings"

	"github.com/goliatone/go-pdfgen/pdfgen"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Formatter names accepted by FormatterFor.
const (
	FormatRaw      = "raw"
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// RawFormatter injects content verbatim.
type RawFormatter struct{}

func (RawFormatter) Format(content string) (string, error) {
	return content, nil
}

// TextFormatter escapes content and turns newlines into <br>.
type TextFormatter struct{}

func (TextFormatter) Format(content string) (string, error) {
	escaped := html.EscapeString(content)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", "<br>\n"), nil
}

// MarkdownFormatter converts GitHub-flavoured markdown to HTML. Raw HTML in
// the input is dropped.
type MarkdownFormatter struct {
	md goldmark.Markdown
}

// NewMarkdownFormatter creates a formatter with the GFM extensions enabled.
func NewMarkdownFormatter() MarkdownFormatter {
	return MarkdownFormatter{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

func (f MarkdownFormatter) Format(content string) (string, error) {
	md := f.md
	if md == nil {
		md = goldmark.New(goldmark.WithExtensions(extension.GFM))
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return "", pdfgen.NewError(pdfgen.KindTemplate, "markdown convert failed", err)
	}
	return buf.String(), nil
}

// FormatterFor resolves a content formatter by name. The empty name is raw.
func FormatterFor(name string) (pdfgen.ContentFormatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FormatRaw:
		return RawFormatter{}, nil
	case FormatText:
		return TextFormatter{}, nil
	case FormatMarkdown, "md":
		return NewMarkdownFormatter(), nil
	default:
		return nil, pdfgen.NewError(pdfgen.KindValidation, "unsupported content format: "+name, nil)
	}
}
