package pdfhttp

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	metricsprom "github.com/goliatone/go-pdfgen/adapters/metrics/prom"
	"github.com/goliatone/go-pdfgen/pdfgen"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AppConfig configures NewApp.
type AppConfig struct {
	AppName string
	Service *pdfgen.Service
	Store   pdfgen.ArtifactStore
	Logger  pdfgen.Logger
	// HTTPMetrics records request metrics when set.
	HTTPMetrics *metricsprom.MetricsBuilder
	// Gatherer backs GET /metrics when set.
	Gatherer  prometheus.Gatherer
	AccessLog bool
}

// NewApp builds a Fiber app with middleware and routes registered.
func NewApp(cfg AppConfig) (*fiber.App, error) {
	if cfg.Service == nil {
		return nil, pdfgen.NewError(pdfgen.KindValidation, "http app requires service", nil)
	}
	if cfg.Service.Mode() == pdfgen.ModeLink && cfg.Store == nil {
		return nil, pdfgen.NewError(pdfgen.KindValidation, "link mode requires artifact store", nil)
	}
	if cfg.AppName == "" {
		cfg.AppName = "pdfgen"
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		BodyLimit:             int(cfg.Service.Config().MaxBodyBytes),
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(cfg.Logger),
	})

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.HTTPMetrics != nil {
		app.Use(cfg.HTTPMetrics.Build())
	}

	RegisterRoutes(app, NewHandler(cfg.Service, cfg.Store, cfg.Logger), cfg.Gatherer)
	return app, nil
}

// RegisterRoutes mounts the handler. The download route exists only in link mode.
func RegisterRoutes(router fiber.Router, h *Handler, gatherer prometheus.Gatherer) {
	router.Get("/health", h.Health)
	router.Post("/api/generate", h.Generate)

	if h.service.Mode() == pdfgen.ModeLink {
		prefix := "/" + strings.Trim(h.service.Config().PublicPath, "/")
		if prefix == "/" {
			prefix = ""
		}
		router.Get(prefix+"/:filename", h.Download)
	}
	if gatherer != nil {
		router.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// errorHandler answers escaped errors and recovered panics with JSON.
func errorHandler(log pdfgen.Logger) fiber.ErrorHandler {
	if log == nil {
		log = pdfgen.NopLogger{}
	}
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		msg := pdfgen.MsgFailed
		textCode := ""

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
			msg = fiberErr.Message
		} else {
			ge := pdfgen.AsGoError(err)
			textCode = ge.TextCode
			if pdfgen.KindFromError(err) == pdfgen.KindNotFound {
				status = fiber.StatusNotFound
				msg = pdfgen.MsgNotFound
			}
		}
		if status >= fiber.StatusInternalServerError {
			log.Errorf("%s %s failed: %v", c.Method(), c.Path(), err)
		}
		return writeJSON(c, status, errorResponse{Code: status, Msg: msg, TextCode: textCode})
	}
}
