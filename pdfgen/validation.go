package pdfgen

import "strings"

// ValidateRequest checks that content is present after trimming whitespace.
func ValidateRequest(req GenerateRequest) error {
	if strings.TrimSpace(req.Content) == "" {
		return NewError(KindValidation, "content is required", nil)
	}
	return nil
}

// ValidateConfig checks geometry and limit settings.
func ValidateConfig(cfg Config) error {
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return err
	}
	if cfg.RenderTimeout < 0 {
		return NewError(KindValidation, "render timeout must not be negative", nil)
	}
	if cfg.MaxBodyBytes < 0 {
		return NewError(KindValidation, "max body bytes must not be negative", nil)
	}
	if cfg.PDF.Scale != 0 && (cfg.PDF.Scale < 0.1 || cfg.PDF.Scale > 2.0) {
		return NewError(KindValidation, "pdf scale must be between 0.1 and 2.0", nil)
	}
	return nil
}
