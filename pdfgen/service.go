package pdfgen

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRenderTimeout bounds a single render call.
	DefaultRenderTimeout = 15 * time.Second
	// DefaultMaxBodyBytes is the accepted request body size.
	DefaultMaxBodyBytes = 10 * 1024 * 1024
	// DefaultPublicPath is the URL prefix link-mode files are served under.
	DefaultPublicPath = "/pdfs"

	pdfContentType = "application/pdf"
	dataURIPrefix  = "data:application/pdf;base64,"
)

var pdfMagic = []byte("%PDF-")

// Config is the explicit process configuration passed to the service.
type Config struct {
	Mode          Mode
	PDF           PDFOptions
	RenderTimeout time.Duration
	MaxBodyBytes  int64
	// PublicBaseURL overrides the request host when building download URLs.
	PublicBaseURL string
	PublicPath    string
	InlineDataURI bool
	ExposeErrors  bool
	Location      *time.Location
}

// DefaultConfig returns link mode with A4 pages, 20mm margins and a 15s render timeout.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeLink,
		PDF:           DefaultPDFOptions(),
		RenderTimeout: DefaultRenderTimeout,
		MaxBodyBytes:  DefaultMaxBodyBytes,
		PublicPath:    DefaultPublicPath,
		Location:      time.Local,
	}
}

// ServiceConfig supplies dependencies for Service.
type ServiceConfig struct {
	Config      Config
	Renderer    Renderer
	Templates   TemplateSource
	Templater   Templater
	Formatter   ContentFormatter
	Inspector   Inspector
	Store       ArtifactStore
	Ledger      Ledger
	Retention   RetentionPolicy
	Metrics     MetricsHook
	Logger      Logger
	Now         func() time.Time
	IDGenerator func() string
}

// Service turns submitted text into a PDF document reference.
type Service struct {
	cfg         Config
	renderer    Renderer
	templates   TemplateSource
	templater   Templater
	formatter   ContentFormatter
	inspector   Inspector
	store       ArtifactStore
	ledger      Ledger
	retention   RetentionPolicy
	metrics     MetricsHook
	logger      Logger
	now         func() time.Time
	idGenerator func() string
}

// NewService validates dependencies and creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	conf := cfg.Config
	if conf.Mode == "" {
		conf.Mode = ModeLink
	}
	if conf.RenderTimeout <= 0 {
		conf.RenderTimeout = DefaultRenderTimeout
	}
	if conf.MaxBodyBytes <= 0 {
		conf.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if conf.PublicPath == "" {
		conf.PublicPath = DefaultPublicPath
	}
	if conf.Location == nil {
		conf.Location = time.Local
	}
	if err := ValidateConfig(conf); err != nil {
		return nil, err
	}

	if cfg.Renderer == nil {
		return nil, NewError(KindValidation, "service requires renderer", nil)
	}
	if cfg.Templates == nil {
		return nil, NewError(KindValidation, "service requires template source", nil)
	}
	if cfg.Templater == nil {
		return nil, NewError(KindValidation, "service requires templater", nil)
	}
	if conf.Mode == ModeLink && cfg.Store == nil {
		return nil, NewError(KindValidation, "link mode requires artifact store", nil)
	}

	svc := &Service{
		cfg:         conf,
		renderer:    cfg.Renderer,
		templates:   cfg.Templates,
		templater:   cfg.Templater,
		formatter:   cfg.Formatter,
		inspector:   cfg.Inspector,
		store:       cfg.Store,
		ledger:      cfg.Ledger,
		retention:   cfg.Retention,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         cfg.Now,
		idGenerator: cfg.IDGenerator,
	}
	if svc.logger == nil {
		svc.logger = NopLogger{}
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.idGenerator == nil {
		svc.idGenerator = uuid.NewString
	}
	if svc.retention == nil {
		svc.retention = RetentionRules{DefaultTTL: DefaultRetentionTTL}
	}
	return svc, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Mode returns the configured persist mode.
func (s *Service) Mode() Mode {
	return s.cfg.Mode
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Timestamp returns the current time formatted for documents and health checks.
func (s *Service) Timestamp() string {
	return FormatTimestamp(s.now(), s.cfg.Location)
}

// Generate validates the request, renders the document and returns the
// response envelope. Failures are reported through the envelope code; the
// method never returns an error.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	started := s.now()

	if err := ValidateRequest(req); err != nil {
		s.logger.Debugf("generate rejected: %v", err)
		s.emit(ctx, MetricsEvent{Name: "generate.rejected", Outcome: OutcomeRejected, ErrorKind: KindValidation}, started)
		return s.failure(ResultCode(err), MsgMissingContent, nil)
	}

	result, record, err := s.generate(ctx, req, started)
	if s.ledger != nil && record.ID != "" {
		if lerr := s.ledger.Record(ctx, record); lerr != nil {
			s.logger.Errorf("ledger record %s failed: %v", record.ID, lerr)
		}
	}
	if err != nil {
		s.logger.Errorf("PDF生成失败 [%s]: %v", TextCode(err), err)
		s.emit(ctx, MetricsEvent{Name: "generate.failed", Outcome: OutcomeFailed, ErrorKind: KindFromError(err)}, started)
		return s.failure(ResultCode(err), MsgFailed, err)
	}

	s.emit(ctx, MetricsEvent{
		Name:    "generate.completed",
		Outcome: OutcomeSucceeded,
		Bytes:   record.Bytes,
		Pages:   record.Pages,
	}, started)
	return result
}

func (s *Service) generate(ctx context.Context, req GenerateRequest, started time.Time) (Result, GenerationRecord, error) {
	record := GenerationRecord{
		ID:        s.idGenerator(),
		Mode:      s.cfg.Mode,
		Status:    StatusFailed,
		CreatedAt: started,
	}

	// Records expire regardless of outcome or mode.
	ttl, err := s.retention.TTL(ctx, s.cfg.Mode)
	if err != nil {
		err = NewError(KindNotConfigured, "retention ttl unavailable", err)
		record.Error = err.Error()
		return Result{}, record, err
	}
	if ttl > 0 {
		record.ExpiresAt = started.Add(ttl)
	}

	baseURL := ""
	if s.cfg.Mode == ModeLink {
		baseURL = s.publicBaseURL(req)
		if baseURL == "" {
			err = NewError(KindNotConfigured, "public base url unavailable", nil)
			record.Error = err.Error()
			return Result{}, record, err
		}
	}

	html, err := s.buildHTML(ctx, req.Content, started)
	if err != nil {
		record.Error = err.Error()
		return Result{}, record, err
	}

	pdf, info, err := s.render(ctx, html)
	if err != nil {
		record.Error = err.Error()
		return Result{}, record, err
	}
	record.Bytes = info.Bytes
	record.Pages = info.Pages

	switch s.cfg.Mode {
	case ModeInline:
		encoded := base64.StdEncoding.EncodeToString(pdf)
		if s.cfg.InlineDataURI {
			encoded = dataURIPrefix + encoded
		}
		record.Status = StatusSucceeded
		return Result{
			Code:      CodeOK,
			Msg:       MsgGenerated,
			PDFBase64: &encoded,
			Pages:     info.Pages,
		}, record, nil
	default:
		ref, err := s.persist(ctx, record.ID, pdf, started, record.ExpiresAt)
		if err != nil {
			record.Error = err.Error()
			return Result{}, record, err
		}
		record.Status = StatusSucceeded
		record.ArtifactKey = ref.Key

		link := joinURL(baseURL, s.cfg.PublicPath, ref.Key)
		result := Result{
			Code:   CodeOK,
			Msg:    MsgGenerated,
			PDFURL: &link,
			Pages:  info.Pages,
		}
		if !ref.Meta.ExpiresAt.IsZero() {
			result.ExpiresAt = ref.Meta.ExpiresAt.UTC().Format(time.RFC3339)
		}
		return result, record, nil
	}
}

func (s *Service) buildHTML(ctx context.Context, content string, now time.Time) (string, error) {
	tmpl, err := s.templates.Load(ctx)
	if err != nil {
		return "", NewError(KindTemplate, "template load failed", err)
	}

	fragment := content
	if s.formatter != nil {
		fragment, err = s.formatter.Format(content)
		if err != nil {
			return "", NewError(KindTemplate, "content format failed", err)
		}
	}

	html, err := s.templater.Render(tmpl, TemplateData{
		Content: fragment,
		Time:    FormatTimestamp(now, s.cfg.Location),
	})
	if err != nil {
		return "", NewError(KindTemplate, "template render failed", err)
	}
	return html, nil
}

func (s *Service) render(ctx context.Context, html string) ([]byte, PDFInfo, error) {
	renderCtx, cancel := context.WithTimeout(ctx, s.cfg.RenderTimeout)
	defer cancel()

	pdf, err := s.renderer.Render(renderCtx, RenderRequest{
		HTML:    []byte(html),
		Options: s.cfg.PDF,
	})
	if err != nil {
		return nil, PDFInfo{}, NewError(KindRender, "pdf render failed", err)
	}
	if !bytes.HasPrefix(pdf, pdfMagic) {
		return nil, PDFInfo{}, NewError(KindRender, "renderer returned non-pdf output", nil)
	}

	info := PDFInfo{Bytes: int64(len(pdf))}
	if s.inspector != nil {
		inspected, err := s.inspector.Inspect(ctx, pdf)
		if err != nil {
			return nil, PDFInfo{}, NewError(KindRender, "pdf inspection failed", err)
		}
		info.Pages = inspected.Pages
	}
	return pdf, info, nil
}

func (s *Service) persist(ctx context.Context, id string, pdf []byte, now, expiresAt time.Time) (ArtifactRef, error) {
	key := id + ".pdf"
	meta := ArtifactMeta{
		ContentType: pdfContentType,
		Filename:    key,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}

	ref, err := s.store.Put(ctx, key, bytes.NewReader(pdf), meta)
	if err != nil {
		return ArtifactRef{}, NewError(KindStorage, fmt.Sprintf("store %s failed", key), err)
	}
	return ref, nil
}

func (s *Service) publicBaseURL(req GenerateRequest) string {
	if base := strings.TrimSpace(s.cfg.PublicBaseURL); base != "" {
		return base
	}
	return strings.TrimSpace(req.BaseURL)
}

func (s *Service) failure(code int, msg string, err error) Result {
	empty := ""
	result := Result{Code: code, Msg: msg}
	if s.cfg.Mode == ModeInline {
		result.PDFBase64 = &empty
	} else {
		result.PDFURL = &empty
	}
	if err != nil && s.cfg.ExposeErrors {
		result.Error = err.Error()
	}
	return result
}

func (s *Service) emit(ctx context.Context, evt MetricsEvent, started time.Time) {
	if s.metrics == nil {
		return
	}
	evt.Mode = s.cfg.Mode
	evt.Timestamp = s.now()
	evt.Duration = evt.Timestamp.Sub(started)
	if err := s.metrics.Emit(ctx, evt); err != nil {
		s.logger.Debugf("metrics emit %s failed: %v", evt.Name, err)
	}
}

func joinURL(base, prefix, key string) string {
	base = strings.TrimRight(base, "/")
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	return base + prefix + "/" + key
}
