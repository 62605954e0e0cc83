package metricsprom

import (
	"context"

	"github.com/goliatone/go-pdfgen/pdfgen"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hook records generation events as Prometheus metrics.
type Hook struct {
	generations    *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	outputBytes    *prometheus.CounterVec
	outputPages    *prometheus.CounterVec
}

var _ pdfgen.MetricsHook = (*Hook)(nil)

// NewHook registers the generation metrics with reg. A nil reg uses the
// default registerer.
func NewHook(reg prometheus.Registerer) *Hook {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Hook{
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfgen_generations_total",
				Help: "Generation attempts by persist mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		renderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdfgen_render_duration_seconds",
				Help:    "Time spent producing a document, validation to response",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
			},
			[]string{"mode"},
		),
		outputBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfgen_output_bytes_total",
				Help: "Bytes of PDF output produced",
			},
			[]string{"mode"},
		),
		outputPages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfgen_output_pages_total",
				Help: "Pages of PDF output produced",
			},
			[]string{"mode"},
		),
	}
}

// Emit records evt.
func (h *Hook) Emit(ctx context.Context, evt pdfgen.MetricsEvent) error {
	_ = ctx
	if h == nil {
		return nil
	}
	mode := string(evt.Mode)
	h.generations.WithLabelValues(mode, string(evt.Outcome)).Inc()

	// rejected requests never reach the renderer
	if evt.Outcome == pdfgen.OutcomeRejected {
		return nil
	}
	h.renderDuration.WithLabelValues(mode).Observe(evt.Duration.Seconds())
	if evt.Outcome == pdfgen.OutcomeSucceeded {
		h.outputBytes.WithLabelValues(mode).Add(float64(evt.Bytes))
		h.outputPages.WithLabelValues(mode).Add(float64(evt.Pages))
	}
	return nil
}
