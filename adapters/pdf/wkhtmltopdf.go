package pdfengine

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-pdfgen/pdfgen"
)

// WKHTMLTOPDFEngine invokes wkhtmltopdf for HTML-to-PDF conversion.
type WKHTMLTOPDFEngine struct {
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration

	DefaultPDF pdfgen.PDFOptions
}

// Render executes wkhtmltopdf using stdin/stdout for HTML/PDF.
func (e WKHTMLTOPDFEngine) Render(ctx context.Context, req pdfgen.RenderRequest) ([]byte, error) {
	cmdPath := strings.TrimSpace(e.Command)
	if cmdPath == "" {
		cmdPath = "wkhtmltopdf"
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cmdCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	optionArgs, err := wkhtmltopdfArgs(MergePDFOptions(e.DefaultPDF, req.Options))
	if err != nil {
		return nil, err
	}

	args := append([]string{"--quiet"}, optionArgs...)
	args = append(args, e.Args...)
	args = append(args, "-", "-")
	cmd := exec.CommandContext(cmdCtx, cmdPath, args...)
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	cmd.Stdin = bytes.NewReader(req.HTML)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = "wkhtmltopdf failed"
		}
		if ctxErr := cmdCtx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, pdfgen.NewError(pdfgen.KindRender, message, err)
	}
	return stdout.Bytes(), nil
}

// wkhtmltopdfArgs maps page options onto wkhtmltopdf flags. Margins are
// normalized to millimetres since wkhtmltopdf does not accept px.
func wkhtmltopdfArgs(opts pdfgen.PDFOptions) ([]string, error) {
	var args []string
	if opts.PageSize != "" {
		if _, _, err := PageSizeInches(opts.PageSize); err != nil {
			return nil, err
		}
		args = append(args, "--page-size", strings.ToUpper(opts.PageSize))
	}
	if opts.Landscape != nil && *opts.Landscape {
		args = append(args, "--orientation", "Landscape")
	}
	if opts.PrintBackground != nil {
		if *opts.PrintBackground {
			args = append(args, "--background")
		} else {
			args = append(args, "--no-background")
		}
	}

	margins := []struct {
		flag  string
		value string
	}{
		{"--margin-top", opts.MarginTop},
		{"--margin-bottom", opts.MarginBottom},
		{"--margin-left", opts.MarginLeft},
		{"--margin-right", opts.MarginRight},
	}
	for _, margin := range margins {
		if margin.value == "" {
			continue
		}
		inches, err := ParseLengthInches(margin.value)
		if err != nil {
			return nil, err
		}
		args = append(args, margin.flag, strconv.FormatFloat(inches*25.4, 'f', 2, 64)+"mm")
	}
	if opts.Scale != 0 && opts.Scale != defaultPDFScale {
		args = append(args, "--zoom", strconv.FormatFloat(opts.Scale, 'f', 2, 64))
	}
	return args, nil
}
