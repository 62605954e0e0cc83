package pdfgen

import (
	"context"
	"errors"

	errorslib "github.com/goliatone/go-errors"
)

// ErrorKind classifies where a generation failed.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindTemplate      ErrorKind = "template"
	KindRender        ErrorKind = "render"
	KindStorage       ErrorKind = "storage"
	KindTimeout       ErrorKind = "timeout"
	KindCanceled      ErrorKind = "canceled"
	KindNotConfigured ErrorKind = "not_configured"
	KindInternal      ErrorKind = "internal"
)

// Error wraps errors with a kind.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new generation error.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

type kindMapping struct {
	category errorslib.Category
	textCode string
	severity errorslib.Severity
	// result is the envelope code: client mistakes are 400, everything else
	// is a generation failure.
	result int
}

var kindMappings = map[ErrorKind]kindMapping{
	KindValidation:    {errorslib.CategoryBadInput, "invalid_content", errorslib.SeverityInfo, CodeBadRequest},
	KindNotFound:      {errorslib.CategoryNotFound, "artifact_not_found", errorslib.SeverityInfo, CodeServerFailed},
	KindTemplate:      {errorslib.CategoryInternal, "template_failed", errorslib.SeverityError, CodeServerFailed},
	KindRender:        {errorslib.CategoryExternal, "render_failed", errorslib.SeverityError, CodeServerFailed},
	KindStorage:       {errorslib.CategoryInternal, "storage_failed", errorslib.SeverityError, CodeServerFailed},
	KindTimeout:       {errorslib.CategoryOperation, "render_timeout", errorslib.SeverityWarning, CodeServerFailed},
	KindCanceled:      {errorslib.CategoryOperation, "render_canceled", errorslib.SeverityWarning, CodeServerFailed},
	KindNotConfigured: {errorslib.CategoryInternal, "not_configured", errorslib.SeverityCritical, CodeServerFailed},
	KindInternal:      {errorslib.CategoryInternal, "generation_failed", errorslib.SeverityError, CodeServerFailed},
}

func mappingFor(kind ErrorKind) kindMapping {
	if m, ok := kindMappings[kind]; ok {
		return m
	}
	return kindMappings[KindInternal]
}

// AsGoError maps an error into a go-errors error carrying the category,
// text code, severity and envelope code of its kind.
func AsGoError(err error) *errorslib.Error {
	if err == nil {
		return nil
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		return ge
	}

	msg := err.Error()
	var genErr *Error
	if errors.As(err, &genErr) && genErr.Msg != "" {
		msg = genErr.Msg
	}

	m := mappingFor(KindFromError(err))
	return errorslib.Wrap(err, m.category, msg).
		WithTextCode(m.textCode).
		WithSeverity(m.severity).
		WithCode(m.result)
}

// TextCode returns the stable text code for the kind.
func (k ErrorKind) TextCode() string {
	return mappingFor(k).textCode
}

// TextCode returns the stable text code for err's kind.
func TextCode(err error) string {
	if err == nil {
		return ""
	}
	return KindFromError(err).TextCode()
}

// ResultCode maps err onto the response envelope code.
func ResultCode(err error) int {
	if err == nil {
		return CodeOK
	}
	return mappingFor(KindFromError(err)).result
}

// KindFromError maps an error to its kind. Deadline and cancellation errors
// win over the wrapping kind so render timeouts are reported as such.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindInternal
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	return KindFromError(err) == KindValidation
}
