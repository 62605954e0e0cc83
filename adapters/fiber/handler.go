package pdfhttp

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-pdfgen/pdfgen"
)

// Handler serves the pdfgen routes.
type Handler struct {
	service *pdfgen.Service
	store   pdfgen.ArtifactStore
	logger  pdfgen.Logger
}

// NewHandler creates a handler. store may be nil in inline mode.
func NewHandler(service *pdfgen.Service, store pdfgen.ArtifactStore, logger pdfgen.Logger) *Handler {
	if logger == nil {
		logger = pdfgen.NopLogger{}
	}
	return &Handler{service: service, store: store, logger: logger}
}

// Health reports liveness with the current server time.
func (h *Handler) Health(c *fiber.Ctx) error {
	return writeJSON(c, fiber.StatusOK, healthResponse{
		Code: pdfgen.CodeOK,
		Msg:  pdfgen.MsgHealthy,
		Time: h.service.Timestamp(),
	})
}

// Generate renders the submitted content. Bodies that cannot be parsed are
// treated as missing content.
func (h *Handler) Generate(c *fiber.Ctx) error {
	var body generateBody
	if err := c.BodyParser(&body); err != nil {
		h.logger.Debugf("generate body parse failed: %v", err)
		body = generateBody{}
	}

	result := h.service.Generate(c.UserContext(), pdfgen.GenerateRequest{
		Content: body.Content,
		BaseURL: requestBaseURL(c),
	})
	return writeJSON(c, fiber.StatusOK, result)
}

// Download streams a stored document.
func (h *Handler) Download(c *fiber.Ctx) error {
	if h.store == nil {
		return notFound(c)
	}
	key := c.Params("filename")
	reader, meta, err := h.store.Open(c.UserContext(), key)
	if err != nil {
		switch pdfgen.KindFromError(err) {
		case pdfgen.KindNotFound, pdfgen.KindValidation:
			h.logger.Debugf("download %q: %v", key, err)
			return notFound(c)
		default:
			return err
		}
	}
	defer reader.Close()

	if !meta.ExpiresAt.IsZero() && !meta.ExpiresAt.After(h.service.Now()) {
		// expired but not swept yet
		return notFound(c)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+key+`"`)
	return c.Status(fiber.StatusOK).Send(data)
}

func notFound(c *fiber.Ctx) error {
	return writeJSON(c, fiber.StatusNotFound, errorResponse{
		Code:     fiber.StatusNotFound,
		Msg:      pdfgen.MsgNotFound,
		TextCode: pdfgen.KindNotFound.TextCode(),
	})
}

func writeJSON(c *fiber.Ctx, status int, payload any) error {
	if err := c.Status(status).JSON(payload); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return nil
}

// requestBaseURL derives scheme and host from the request, honouring
// X-Forwarded-Proto and the Host header.
func requestBaseURL(c *fiber.Ctx) string {
	host := strings.TrimSpace(c.Hostname())
	if host == "" {
		return ""
	}
	return c.Protocol() + "://" + host
}
