// Package pdftemplate provides template sources, templaters and content
// formatters for pdfgen.
//
// Templates carry two placeholders, {{content}} and {{time}}. The default
// PlaceholderTemplate requires each to appear exactly once and substitutes
// them literally in a single pass, so submitted text containing a
// placeholder is never expanded again. Pongo2Template treats the template as
// a pongo2 document: every occurrence is substituted and the content is
// marked safe so HTML passes through unchanged.
//
// Formatters decide how submitted text becomes HTML: RawFormatter injects it
// verbatim, TextFormatter escapes it and keeps line breaks, MarkdownFormatter
// converts it with goldmark.
package pdftemplate
