package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gofiber/fiber/v2"
	pdfhttp "github.com/goliatone/go-pdfgen/adapters/fiber"
	ledgerbun "github.com/goliatone/go-pdfgen/adapters/ledger/bun"
	metricsprom "github.com/goliatone/go-pdfgen/adapters/metrics/prom"
	pdfengine "github.com/goliatone/go-pdfgen/adapters/pdf"
	storefs "github.com/goliatone/go-pdfgen/adapters/store/fs"
	pdftemplate "github.com/goliatone/go-pdfgen/adapters/template"
	"github.com/goliatone/go-pdfgen/cmd/pdfgen/config"
	"github.com/goliatone/go-pdfgen/pdfgen"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// App holds the wired service and its resources.
type App struct {
	cfg      config.Config
	logger   *zap.SugaredLogger
	renderer pdfgen.Renderer
	db       *bun.DB
	store    pdfgen.ArtifactStore
	ledger   pdfgen.Ledger
	service  *pdfgen.Service
	sweeper  *pdfgen.Sweeper
	cron     *cron.Cron
	registry *prometheus.Registry
	server   *fiber.App

	closeOnce sync.Once
}

// NewApp wires engine, template, storage, ledger, metrics and HTTP server.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	app := &App{cfg: cfg, logger: logger}

	serviceCfg, err := cfg.ServiceConfig()
	if err != nil {
		return nil, err
	}

	app.renderer, err = buildRenderer(cfg)
	if err != nil {
		return nil, err
	}

	source := pdftemplate.SourceFor(cfg.Template.Path)
	templater, err := pdftemplate.TemplaterFor(cfg.Template.Engine)
	if err != nil {
		return nil, err
	}
	formatter, err := pdftemplate.FormatterFor(cfg.Template.ContentFormat)
	if err != nil {
		return nil, err
	}
	if err := checkTemplate(ctx, source, templater); err != nil {
		return nil, err
	}

	var inspector pdfgen.Inspector
	if cfg.PDF.Inspect {
		ins := pdfengine.NewInspector()
		ins.MaxPages = cfg.PDF.MaxPages
		inspector = ins
	}

	if cfg.Storage.LedgerDSN != "" {
		app.db, err = ledgerbun.Open(ctx, cfg.Storage.LedgerDSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		ledger := ledgerbun.NewLedger(app.db)
		if err := ledger.CreateSchema(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("create ledger schema: %w", err)
		}
		app.ledger = ledger
	}

	if serviceCfg.Mode == pdfgen.ModeLink {
		app.store = storefs.NewStore(cfg.Storage.OutputDir)
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.service, err = pdfgen.NewService(pdfgen.ServiceConfig{
		Config:    serviceCfg,
		Renderer:  app.renderer,
		Templates: source,
		Templater: templater,
		Formatter: formatter,
		Inspector: inspector,
		Store:     app.store,
		Ledger:    app.ledger,
		Retention: pdfgen.RetentionRules{DefaultTTL: cfg.Retention.TTL},
		Metrics:   metricsprom.NewHook(app.registry),
		Logger:    logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	if (app.store != nil || app.ledger != nil) && cfg.Retention.TTL > 0 {
		app.sweeper = &pdfgen.Sweeper{
			Store:     app.store,
			Ledger:    app.ledger,
			Logger:    logger,
			OrphanTTL: cfg.Retention.TTL,
		}
		if cfg.Retention.Schedule != "" {
			app.cron = cron.New(cron.WithChain(
				cron.Recover(cron.DefaultLogger),
				cron.SkipIfStillRunning(cron.DefaultLogger),
			))
			if _, err := app.cron.AddFunc(cfg.Retention.Schedule, app.sweep); err != nil {
				app.Close()
				return nil, fmt.Errorf("schedule retention sweep: %w", err)
			}
		}
	}

	app.server, err = pdfhttp.NewApp(pdfhttp.AppConfig{
		AppName:     "pdfgen",
		Service:     app.service,
		Store:       app.store,
		Logger:      logger,
		HTTPMetrics: metricsprom.NewMetricsBuilder(app.registry),
		Gatherer:    app.registry,
		AccessLog:   cfg.Server.AccessLog,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// Start runs one retention sweep, starts the scheduler and blocks serving HTTP.
func (a *App) Start(ctx context.Context, addr string) error {
	_ = ctx
	if a.sweeper != nil {
		a.sweep()
	}
	if a.cron != nil {
		a.cron.Start()
	}
	return a.server.Listen(addr)
}

// Shutdown stops the scheduler and drains in-flight requests.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.cron != nil {
		select {
		case <-a.cron.Stop().Done():
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	if a.server != nil {
		if err := a.server.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the browser and the ledger database.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if closer, ok := a.renderer.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				a.logger.Errorf("close renderer: %v", err)
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.logger.Errorf("close ledger: %v", err)
			}
		}
	})
}

// Server exposes the Fiber app.
func (a *App) Server() *fiber.App {
	return a.server
}

func (a *App) sweep() {
	removed, err := a.sweeper.Sweep(context.Background())
	if err != nil {
		a.logger.Errorf("retention sweep failed after removing %d artifact(s): %v", removed, err)
	}
}

func buildRenderer(cfg config.Config) (pdfgen.Renderer, error) {
	switch cfg.PDF.Engine {
	case config.EngineChromium:
		return &pdfengine.ChromiumEngine{
			BrowserPath: cfg.PDF.ChromiumPath,
			Headless:    cfg.PDF.Headless,
			Timeout:     cfg.Generator.RenderTimeout,
			Args:        cfg.PDF.Args,
			DefaultPDF:  cfg.PDFOptions(),
		}, nil
	case config.EngineWKHTMLTOPDF:
		return pdfengine.WKHTMLTOPDFEngine{
			Command:    cfg.PDF.WKHTMLTOPDFPath,
			Timeout:    cfg.Generator.RenderTimeout,
			DefaultPDF: cfg.PDFOptions(),
		}, nil
	default:
		return nil, pdfgen.NewError(pdfgen.KindValidation, "unsupported pdf engine: "+cfg.PDF.Engine, nil)
	}
}

// checkTemplate fails startup when the template cannot be loaded or rendered.
func checkTemplate(ctx context.Context, source pdfgen.TemplateSource, templater pdfgen.Templater) error {
	raw, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	if _, err := templater.Render(raw, pdfgen.TemplateData{Content: "check", Time: "check"}); err != nil {
		return fmt.Errorf("template check: %w", err)
	}
	return nil
}
