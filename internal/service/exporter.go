package service

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
	"github.com/Strob0t/CodeTutor/internal/port/export"
)

// Export formats.
const (
	FormatMarkdown = "markdown"
	FormatPDF      = "pdf"
)

var formatAliases = map[string]string{
	"markdown": FormatMarkdown,
	"md":       FormatMarkdown,
	"pdf":      FormatPDF,
}

type format struct {
	renderer    export.Renderer
	contentType string
	ext         string
}

// Document is a rendered export ready to be served as a download.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Exporter renders finished tutorials into downloadable documents.
type Exporter struct {
	formats map[string]format
}

// NewExporter creates an Exporter that always supports Markdown and
// supports PDF when pdf is non-nil.
func NewExporter(pdf export.Renderer) *Exporter {
	e := &Exporter{formats: map[string]format{
		FormatMarkdown: {renderer: MarkdownRenderer{}, contentType: "text/markdown; charset=utf-8", ext: "md"},
	}}
	if pdf != nil {
		e.formats[FormatPDF] = format{renderer: pdf, contentType: "application/pdf", ext: "pdf"}
	}
	return e
}

// Formats returns the canonical names of the supported formats.
func (e *Exporter) Formats() []string {
	out := []string{FormatMarkdown}
	if _, ok := e.formats[FormatPDF]; ok {
		out = append(out, FormatPDF)
	}
	return out
}

// Export renders t in the named format.
func (e *Exporter) Export(t *tutorial.Tutorial, name string) (*Document, error) {
	canonical, ok := formatAliases[strings.ToLower(name)]
	f, supported := e.formats[canonical]
	if !ok || !supported {
		return nil, domain.Errorf(domain.KindExportFormatUnsupported,
			"export format %q is not supported (use %s)", name, strings.Join(e.Formats(), " or "))
	}

	var buf bytes.Buffer
	if err := f.renderer.Render(&buf, t); err != nil {
		return nil, fmt.Errorf("render %s: %w", canonical, err)
	}
	return &Document{
		Filename:    fmt.Sprintf("%s-tutorial.%s", fileSafe(t.Metadata.Repository), f.ext),
		ContentType: f.contentType,
		Data:        buf.Bytes(),
	}, nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileSafe(name string) string {
	s := strings.Trim(unsafeFilename.ReplaceAllString(name, "_"), "_.")
	if s == "" {
		return "repository"
	}
	return s
}
