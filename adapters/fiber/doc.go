// Package pdfhttp exposes pdfgen over Fiber.
//
// Routes:
//
//	GET  /health           liveness and server time
//	POST /api/generate     {"content": "..."} as JSON or form data
//	GET  /pdfs/:filename   stored documents, link mode only
//	GET  /metrics          Prometheus exposition, when a gatherer is set
//
// Generate always answers with HTTP 200; the outcome is carried in the body
// code (200, 400 or 500).
package pdfhttp
