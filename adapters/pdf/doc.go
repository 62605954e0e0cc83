// Package pdfengine provides HTML-to-PDF engines for pdfgen.
//
// ChromiumEngine drives a shared headless Chromium through chromedp and
// prints each document in its own tab. WKHTMLTOPDFEngine shells out to
// wkhtmltopdf. Both accept pdfgen.PDFOptions; lengths may be given in in, cm,
// mm, pt or px. Inspector checks engine output with pdfcpu before it is
// stored or encoded.
package pdfengine
