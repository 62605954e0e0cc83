// Package metricsprom exposes pdfgen metrics through Prometheus.
//
// Hook implements pdfgen.MetricsHook. MetricsBuilder produces a Fiber
// middleware with request counters and latency summaries labelled by method,
// route and status code.
package metricsprom
