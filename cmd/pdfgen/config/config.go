package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	pdfengine "github.com/goliatone/go-pdfgen/adapters/pdf"
	pdftemplate "github.com/goliatone/go-pdfgen/adapters/template"
	"github.com/goliatone/go-pdfgen/pdfgen"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
)

// Engine names.
const (
	EngineChromium    = "chromium"
	EngineWKHTMLTOPDF = "wkhtmltopdf"
)

// Render timeout bounds accepted by Validate.
const (
	MinRenderTimeout = 10 * time.Second
	MaxRenderTimeout = 30 * time.Second
)

// Config holds the service configuration.
type Config struct {
	Server    ServerConfig
	Generator GeneratorConfig
	PDF       PDFConfig
	Template  TemplateConfig
	Storage   StorageConfig
	Retention RetentionConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string
	Port      string
	AccessLog bool
}

// GeneratorConfig holds request handling settings.
type GeneratorConfig struct {
	Mode          string
	PublicBaseURL string
	PublicPath    string
	RenderTimeout time.Duration
	MaxBodyBytes  int64
	InlineDataURI bool
	ExposeErrors  bool
	Timezone      string
}

// PDFConfig holds engine and page settings.
type PDFConfig struct {
	Engine               string
	ChromiumPath         string
	Headless             bool
	Args                 []string
	WKHTMLTOPDFPath      string
	PageSize             string
	Landscape            bool
	PrintBackground      bool
	Scale                float64
	MarginTop            string
	MarginBottom         string
	MarginLeft           string
	MarginRight          string
	ExternalAssetsPolicy string
	Inspect              bool
	MaxPages             int
}

// TemplateConfig selects the template file, engine and content format.
type TemplateConfig struct {
	Path          string
	Engine        string
	ContentFormat string
}

// StorageConfig holds link-mode storage and ledger settings.
type StorageConfig struct {
	OutputDir string
	LedgerDSN string
}

// RetentionConfig controls how long stored documents live.
type RetentionConfig struct {
	TTL      time.Duration
	Schedule string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string
	Development bool
}

// Defaults returns the stock configuration: link mode, A4 with 20mm margins,
// Chromium, a 15s render timeout and 24h retention.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      "3000",
			AccessLog: true,
		},
		Generator: GeneratorConfig{
			Mode:          string(pdfgen.ModeLink),
			PublicPath:    pdfgen.DefaultPublicPath,
			RenderTimeout: pdfgen.DefaultRenderTimeout,
			MaxBodyBytes:  pdfgen.DefaultMaxBodyBytes,
			Timezone:      "Asia/Shanghai",
		},
		PDF: PDFConfig{
			Engine:               EngineChromium,
			Headless:             true,
			Args:                 []string{"--no-sandbox", "--disable-dev-shm-usage"},
			WKHTMLTOPDFPath:      "wkhtmltopdf",
			PageSize:             "A4",
			PrintBackground:      true,
			Scale:                1,
			MarginTop:            "20mm",
			MarginBottom:         "20mm",
			MarginLeft:           "20mm",
			MarginRight:          "20mm",
			ExternalAssetsPolicy: string(pdfgen.PDFExternalAssetsAllow),
			Inspect:              true,
		},
		Template: TemplateConfig{
			Engine:        pdftemplate.EnginePlaceholder,
			ContentFormat: pdftemplate.FormatRaw,
		},
		Storage: StorageConfig{
			OutputDir: "./pdfs",
			LedgerDSN: "file:pdfgen.db?cache=shared",
		},
		Retention: RetentionConfig{
			TTL:      pdfgen.DefaultRetentionTTL,
			Schedule: "@every 10m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads .env when present, applies environment overrides and validates.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg, err := FromEnv(os.LookupEnv)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// FromEnv applies overrides from lookup on top of Defaults.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	env := envReader{lookup: lookup}

	env.str("HOST", &cfg.Server.Host)
	env.str("PORT", &cfg.Server.Port)
	env.boolean("PDFGEN_ACCESS_LOG", &cfg.Server.AccessLog)

	env.str("PDFGEN_MODE", &cfg.Generator.Mode)
	env.str("PDFGEN_PUBLIC_BASE_URL", &cfg.Generator.PublicBaseURL)
	if cfg.Generator.PublicBaseURL == "" {
		if host, ok := env.get("VERCEL_URL"); ok {
			cfg.Generator.PublicBaseURL = "https://" + strings.TrimPrefix(host, "https://")
		}
	}
	env.str("PDFGEN_PUBLIC_PATH", &cfg.Generator.PublicPath)
	env.duration("PDFGEN_RENDER_TIMEOUT", &cfg.Generator.RenderTimeout)
	env.int64("PDFGEN_MAX_BODY_BYTES", &cfg.Generator.MaxBodyBytes)
	env.boolean("PDFGEN_INLINE_DATA_URI", &cfg.Generator.InlineDataURI)
	env.boolean("PDFGEN_EXPOSE_ERRORS", &cfg.Generator.ExposeErrors)
	env.str("PDFGEN_TIMEZONE", &cfg.Generator.Timezone)

	env.str("PDFGEN_ENGINE", &cfg.PDF.Engine)
	env.str("PDFGEN_CHROMIUM_PATH", &cfg.PDF.ChromiumPath)
	env.boolean("PDFGEN_HEADLESS", &cfg.PDF.Headless)
	if args, ok := env.get("PDFGEN_CHROMIUM_ARGS"); ok {
		cfg.PDF.Args = splitCSV(args)
	}
	env.str("PDFGEN_WKHTMLTOPDF_PATH", &cfg.PDF.WKHTMLTOPDFPath)
	env.str("PDFGEN_PAGE_SIZE", &cfg.PDF.PageSize)
	env.boolean("PDFGEN_LANDSCAPE", &cfg.PDF.Landscape)
	env.boolean("PDFGEN_PRINT_BACKGROUND", &cfg.PDF.PrintBackground)
	env.float("PDFGEN_SCALE", &cfg.PDF.Scale)
	if margin, ok := env.get("PDFGEN_MARGIN"); ok {
		cfg.PDF.MarginTop, cfg.PDF.MarginBottom, cfg.PDF.MarginLeft, cfg.PDF.MarginRight = margin, margin, margin, margin
	}
	env.str("PDFGEN_MARGIN_TOP", &cfg.PDF.MarginTop)
	env.str("PDFGEN_MARGIN_BOTTOM", &cfg.PDF.MarginBottom)
	env.str("PDFGEN_MARGIN_LEFT", &cfg.PDF.MarginLeft)
	env.str("PDFGEN_MARGIN_RIGHT", &cfg.PDF.MarginRight)
	env.str("PDFGEN_EXTERNAL_ASSETS_POLICY", &cfg.PDF.ExternalAssetsPolicy)
	env.boolean("PDFGEN_INSPECT", &cfg.PDF.Inspect)
	env.integer("PDFGEN_MAX_PAGES", &cfg.PDF.MaxPages)

	env.str("PDFGEN_TEMPLATE_PATH", &cfg.Template.Path)
	env.str("PDFGEN_TEMPLATE_ENGINE", &cfg.Template.Engine)
	env.str("PDFGEN_CONTENT_FORMAT", &cfg.Template.ContentFormat)

	env.str("PDFGEN_OUTPUT_DIR", &cfg.Storage.OutputDir)
	if dsn, ok := env.lookup("PDFGEN_LEDGER_DSN"); ok {
		// an explicit empty value disables the ledger
		cfg.Storage.LedgerDSN = strings.TrimSpace(dsn)
	}

	env.duration("PDFGEN_RETENTION_TTL", &cfg.Retention.TTL)
	env.str("PDFGEN_RETENTION_SCHEDULE", &cfg.Retention.Schedule)

	env.str("PDFGEN_LOG_LEVEL", &cfg.Log.Level)
	env.boolean("PDFGEN_LOG_DEVELOPMENT", &cfg.Log.Development)

	return cfg, errors.Join(env.errs...)
}

// Validate checks every setting that would otherwise fail at first request.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if _, err := pdfgen.ParseMode(c.Generator.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.Generator.RenderTimeout < MinRenderTimeout || c.Generator.RenderTimeout > MaxRenderTimeout {
		errs = append(errs, fmt.Errorf("render timeout %s outside %s-%s", c.Generator.RenderTimeout, MinRenderTimeout, MaxRenderTimeout))
	}
	if c.Generator.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max body bytes must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	switch c.PDF.Engine {
	case EngineChromium, EngineWKHTMLTOPDF:
	default:
		errs = append(errs, fmt.Errorf("unsupported pdf engine: %s", c.PDF.Engine))
	}
	switch pdfgen.PDFExternalAssetsPolicy(c.PDF.ExternalAssetsPolicy) {
	case pdfgen.PDFExternalAssetsAllow, pdfgen.PDFExternalAssetsBlock:
	default:
		errs = append(errs, fmt.Errorf("unsupported external assets policy: %s", c.PDF.ExternalAssetsPolicy))
	}
	if err := pdfengine.ValidateOptions(c.PDFOptions()); err != nil {
		errs = append(errs, err)
	}
	if c.PDF.MaxPages < 0 {
		errs = append(errs, errors.New("max pages must not be negative"))
	}

	if _, err := pdftemplate.TemplaterFor(c.Template.Engine); err != nil {
		errs = append(errs, err)
	}
	if _, err := pdftemplate.FormatterFor(c.Template.ContentFormat); err != nil {
		errs = append(errs, err)
	}

	if c.Generator.Mode == string(pdfgen.ModeLink) && strings.TrimSpace(c.Storage.OutputDir) == "" {
		errs = append(errs, errors.New("link mode requires an output directory"))
	}
	if c.Retention.TTL < 0 {
		errs = append(errs, errors.New("retention ttl must not be negative"))
	}
	if c.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("retention schedule: %w", err))
		}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves the configured timezone. Empty means the process local zone.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Generator.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Generator.Timezone)
}

// PDFOptions builds page options from the PDF settings.
func (c Config) PDFOptions() pdfgen.PDFOptions {
	landscape := c.PDF.Landscape
	printBackground := c.PDF.PrintBackground
	return pdfgen.PDFOptions{
		PageSize:             c.PDF.PageSize,
		Landscape:            &landscape,
		PrintBackground:      &printBackground,
		Scale:                c.PDF.Scale,
		MarginTop:            c.PDF.MarginTop,
		MarginBottom:         c.PDF.MarginBottom,
		MarginLeft:           c.PDF.MarginLeft,
		MarginRight:          c.PDF.MarginRight,
		ExternalAssetsPolicy: pdfgen.PDFExternalAssetsPolicy(c.PDF.ExternalAssetsPolicy),
	}
}

// ServiceConfig translates the settings into pdfgen.Config.
func (c Config) ServiceConfig() (pdfgen.Config, error) {
	mode, err := pdfgen.ParseMode(c.Generator.Mode)
	if err != nil {
		return pdfgen.Config{}, err
	}
	loc, err := c.Location()
	if err != nil {
		return pdfgen.Config{}, err
	}
	return pdfgen.Config{
		Mode:          mode,
		PDF:           c.PDFOptions(),
		RenderTimeout: c.Generator.RenderTimeout,
		MaxBodyBytes:  c.Generator.MaxBodyBytes,
		PublicBaseURL: strings.TrimRight(c.Generator.PublicBaseURL, "/"),
		PublicPath:    c.Generator.PublicPath,
		InlineDataURI: c.Generator.InlineDataURI,
		ExposeErrors:  c.Generator.ExposeErrors,
		Location:      loc,
	}, nil
}

// Addr returns host:port for the listener.
func (c Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

// get returns a trimmed, non-empty value.
func (r *envReader) get(key string) (string, bool) {
	if r.lookup == nil {
		return "", false
	}
	value, ok := r.lookup(key)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func (r *envReader) str(key string, dst *string) {
	if value, ok := r.get(key); ok {
		*dst = value
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	value, ok := r.get(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func (r *envReader) integer(key string, dst *int) {
	value, ok := r.get(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func (r *envReader) int64(key string, dst *int64) {
	value, ok := r.get(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func (r *envReader) float(key string, dst *float64) {
	value, ok := r.get(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

// duration accepts Go durations ("15s") or bare seconds ("15").
func (r *envReader) duration(key string, dst *time.Duration) {
	value, ok := r.get(key)
	if !ok {
		return
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		*dst = time.Duration(seconds) * time.Second
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = parsed
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
