package pdfgen

import (
	"context"
	"io"
	"time"
)

// Mode selects how generated documents are handed back to callers.
type Mode string

const (
	// ModeLink persists the PDF and responds with a download URL.
	ModeLink Mode = "link"
	// ModeInline responds with the Base64 encoded PDF.
	ModeInline Mode = "inline"
)

// ParseMode validates a configured mode name.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeLink:
		return ModeLink, nil
	case ModeInline:
		return ModeInline, nil
	default:
		return "", NewError(KindValidation, "unsupported persist mode: "+value, nil)
	}
}

// Result codes carried in the response body.
const (
	CodeOK           = 200
	CodeBadRequest   = 400
	CodeServerFailed = 500
)

// PDFExternalAssetsPolicy controls remote asset loading during rendering.
type PDFExternalAssetsPolicy string

const (
	PDFExternalAssetsAllow PDFExternalAssetsPolicy = "allow"
	PDFExternalAssetsBlock PDFExternalAssetsPolicy = "block"
)

// PDFOptions configures page geometry for headless engines.
type PDFOptions struct {
	PageSize             string
	Landscape            *bool
	PrintBackground      *bool
	Scale                float64
	MarginTop            string
	MarginBottom         string
	MarginLeft           string
	MarginRight          string
	PreferCSSPageSize    *bool
	BaseURL              string
	ExternalAssetsPolicy PDFExternalAssetsPolicy
}

// UniformMargin sets all four margins to the same length.
func (o PDFOptions) UniformMargin(length string) PDFOptions {
	o.MarginTop = length
	o.MarginBottom = length
	o.MarginLeft = length
	o.MarginRight = length
	return o
}

// DefaultPDFOptions returns A4 with printed backgrounds and 20mm margins.
func DefaultPDFOptions() PDFOptions {
	printBackground := true
	return PDFOptions{
		PageSize:        "A4",
		PrintBackground: &printBackground,
	}.UniformMargin("20mm")
}

// RenderRequest contains HTML input and page options for a renderer.
type RenderRequest struct {
	HTML    []byte
	Options PDFOptions
}

// Renderer converts an HTML document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(ctx context.Context, req RenderRequest) ([]byte, error)

func (f RendererFunc) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	if f == nil {
		return nil, NewError(KindInternal, "renderer func is nil", nil)
	}
	return f(ctx, req)
}

// PDFInfo describes a rendered document.
type PDFInfo struct {
	Pages int
	Bytes int64
}

// Inspector checks renderer output before it is handed back.
type Inspector interface {
	Inspect(ctx context.Context, pdf []byte) (PDFInfo, error)
}

// TemplateData is substituted into the HTML template.
type TemplateData struct {
	Content string
	Time    string
}

// TemplateSource yields the raw HTML template.
type TemplateSource interface {
	Load(ctx context.Context) (string, error)
}

// Templater merges TemplateData into a raw template.
type Templater interface {
	Render(template string, data TemplateData) (string, error)
}

// ContentFormatter turns submitted text into the HTML fragment placed in the template.
type ContentFormatter interface {
	Format(content string) (string, error)
}

// ArtifactMeta captures stored artifact metadata.
type ArtifactMeta struct {
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	Filename    string    `json:"filename,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ArtifactRef references a stored artifact.
type ArtifactRef struct {
	Key  string
	Meta ArtifactMeta
}

// ArtifactStore stores generated documents for link mode.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]ArtifactRef, error)
}

// RecordStatus is the outcome stored in the ledger.
type RecordStatus string

const (
	StatusSucceeded RecordStatus = "succeeded"
	StatusFailed    RecordStatus = "failed"
)

// GenerationRecord is one render attempt.
type GenerationRecord struct {
	ID          string
	Mode        Mode
	Status      RecordStatus
	ArtifactKey string
	Bytes       int64
	Pages       int
	Error       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Ledger keeps track of render attempts and the artifacts they produced.
type Ledger interface {
	Record(ctx context.Context, record GenerationRecord) error
	Expired(ctx context.Context, now time.Time) ([]GenerationRecord, error)
	HasArtifact(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// Logger provides logging hooks.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// Outcome labels a generation attempt for metrics.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// MetricsEvent describes a generation lifecycle observation.
type MetricsEvent struct {
	Name      string
	Mode      Mode
	Outcome   Outcome
	ErrorKind ErrorKind
	Bytes     int64
	Pages     int
	Duration  time.Duration
	Timestamp time.Time
}

// MetricsHook emits metrics-friendly lifecycle observations.
type MetricsHook interface {
	Emit(ctx context.Context, evt MetricsEvent) error
}

// GenerateRequest is the validated input to Service.Generate.
type GenerateRequest struct {
	Content string
	// BaseURL is the scheme and host the request arrived on. Link mode uses
	// it when no public base URL is configured.
	BaseURL string
}

// Result is the response envelope. Exactly one of PDFURL or PDFBase64 is set,
// depending on the service mode; an empty string is still serialized so
// callers can rely on the field being present.
type Result struct {
	Code      int     `json:"code"`
	Msg       string  `json:"msg"`
	PDFURL    *string `json:"pdf_url,omitempty"`
	PDFBase64 *string `json:"pdf_base64,omitempty"`
	Pages     int     `json:"pages,omitempty"`
	ExpiresAt string  `json:"expires_at,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Reference returns the document reference for the active mode.
func (r Result) Reference() string {
	switch {
	case r.PDFURL != nil:
		return *r.PDFURL
	case r.PDFBase64 != nil:
		return *r.PDFBase64
	default:
		return ""
	}
}
