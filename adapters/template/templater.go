package pdftemplate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/goliatone/go-pdfgen/pdfgen"
)

const (
	ContentPlaceholder = "{{content}}"
	TimePlaceholder    = "{{time}}"
)

// Engine names accepted by TemplaterFor.
const (
	EnginePlaceholder = "placeholder"
	EnginePongo2      = "pongo2"
)

// PlaceholderTemplate substitutes the two placeholders literally.
type PlaceholderTemplate struct{}

// Render checks the placeholder contract and substitutes data in one pass.
func (PlaceholderTemplate) Render(template string, data pdfgen.TemplateData) (string, error) {
	if err := CheckPlaceholders(template); err != nil {
		return "", err
	}
	replacer := strings.NewReplacer(
		ContentPlaceholder, data.Content,
		TimePlaceholder, data.Time,
	)
	return replacer.Replace(template), nil
}

// CheckPlaceholders verifies that each placeholder occurs exactly once.
func CheckPlaceholders(template string) error {
	for _, placeholder := range []string{ContentPlaceholder, TimePlaceholder} {
		if n := strings.Count(template, placeholder); n != 1 {
			return pdfgen.NewError(pdfgen.KindValidation,
				fmt.Sprintf("template must contain %s exactly once, found %d", placeholder, n), nil)
		}
	}
	return nil
}

// Pongo2Template renders templates with pongo2. Compiled templates are
// cached by source text.
type Pongo2Template struct {
	mu    sync.RWMutex
	cache map[string]*pongo2.Template
}

// NewPongo2Template creates a pongo2 templater.
func NewPongo2Template() *Pongo2Template {
	return &Pongo2Template{cache: make(map[string]*pongo2.Template)}
}

// Render substitutes every occurrence of content and time.
func (p *Pongo2Template) Render(template string, data pdfgen.TemplateData) (string, error) {
	tpl, err := p.compile(template)
	if err != nil {
		return "", err
	}
	out, err := tpl.Execute(pongo2.Context{
		"content": pongo2.AsSafeValue(data.Content),
		"time":    data.Time,
	})
	if err != nil {
		return "", pdfgen.NewError(pdfgen.KindTemplate, "pongo2 execute failed", err)
	}
	return out, nil
}

func (p *Pongo2Template) compile(template string) (*pongo2.Template, error) {
	p.mu.RLock()
	tpl, ok := p.cache[template]
	p.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	tpl, err := pongo2.FromString(template)
	if err != nil {
		return nil, pdfgen.NewError(pdfgen.KindValidation, "pongo2 template parse failed", err)
	}

	p.mu.Lock()
	if p.cache == nil {
		p.cache = make(map[string]*pongo2.Template)
	}
	p.cache[template] = tpl
	p.mu.Unlock()
	return tpl, nil
}

// TemplaterFor resolves a templater by engine name.
func TemplaterFor(engine string) (pdfgen.Templater, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EnginePlaceholder:
		return PlaceholderTemplate{}, nil
	case EnginePongo2:
		return NewPongo2Template(), nil
	default:
		return nil, pdfgen.NewError(pdfgen.KindValidation, "unsupported template engine: "+engine, nil)
	}
}
