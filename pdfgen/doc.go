// Package pdfgen turns a block of text into a PDF document.
//
// Service.Generate validates the submitted content, merges it into an HTML
// template together with a generation timestamp, renders the HTML through an
// injected Renderer and hands the result back either as a download URL (link
// mode, backed by an ArtifactStore) or as a Base64 payload (inline mode).
// Every outcome is reported through a Result envelope carrying an application
// code: 200 on success, 400 for missing content, 500 for any generation failure.
//
// Link-mode artifacts expire according to a RetentionPolicy; a Sweeper removes
// them once their TTL has passed.
package pdfgen
