// Package pdf renders tutorials as PDF documents with go-pdf/fpdf.
package pdf

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-pdf/fpdf"

	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

const (
	bodySize = 10.5
	lineH    = 5.2
	codeSize = 8.5
	codeH    = 4.2
)

var (
	boldRe   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe = regexp.MustCompile(`(^|\s)[*_]([^*_\s][^*_]*)[*_]($|\s|[.,;:!?])`)
	codeRe   = regexp.MustCompile("`([^`]+)`")
	linkRe   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	olRe     = regexp.MustCompile(`^\d+\.\s+`)
)

// Renderer implements export.Renderer. Markdown in fragment content is
// flattened: headings, lists and code blocks keep their layout, inline
// emphasis is dropped. Text outside cp1252 is replaced.
type Renderer struct{}

// New returns a PDF renderer.
func New() *Renderer { return &Renderer{} }

// Render implements export.Renderer.
func (*Renderer) Render(w io.Writer, t *tutorial.Tutorial) error {
	d := newDoc(t)

	d.title(t)
	d.heading(1, "Overview", 0)
	d.markdown(t.Overview.Content)
	d.languages(t.Metadata.Languages)

	if t.GettingStarted != "" {
		d.heading(1, "Getting Started", 0)
		d.markdown(t.GettingStarted)
	}
	if len(t.LearningPath) > 0 {
		d.heading(1, "Learning Path", 0)
		for i, step := range t.LearningPath {
			line := fmt.Sprintf("%d. %s: %s", i+1, step.Title, step.Description)
			if len(step.Files) > 0 {
				line += " (" + strings.Join(step.Files, ", ") + ")"
			}
			d.paragraph(line, 4)
		}
	}
	if t.Diagram != "" {
		d.heading(1, "Architecture", 0)
		d.code(strings.Split(strings.TrimRight(t.Diagram, "\n"), "\n"))
	}

	d.heading(1, "Walkthrough", 0)
	for _, s := range t.Sections {
		title := strings.Join(strings.Fields(s.Title), " ")
		if title == "" {
			title = s.Subject
		}
		d.heading(min(2+s.Depth, 4), title, s.Depth+1)
		if s.Description != "" {
			d.pdf.SetFont("Helvetica", "I", bodySize)
			d.pdf.MultiCell(0, lineH, d.tr(s.Description), "", "L", false)
			d.pdf.Ln(1)
		}
		d.markdown(s.Content)
	}

	if err := d.pdf.Error(); err != nil {
		return fmt.Errorf("pdf: render: %w", err)
	}
	if err := d.pdf.Output(w); err != nil {
		return fmt.Errorf("pdf: write: %w", err)
	}
	return nil
}

type doc struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newDoc(t *tutorial.Tutorial) *doc {
	p := fpdf.New("P", "mm", "A4", "")
	p.SetMargins(18, 18, 18)
	p.SetAutoPageBreak(true, 18)
	p.SetCatalogSort(true)
	p.SetCreationDate(t.Metadata.GeneratedAt)
	p.SetModificationDate(t.Metadata.GeneratedAt)
	p.SetTitle(t.Title(), true)
	p.SetSubject(t.Metadata.Repository, true)
	p.SetCreator("codetutor", true)
	p.AliasNbPages("")

	d := &doc{pdf: p, tr: p.UnicodeTranslatorFromDescriptor("")}
	p.SetFooterFunc(func() {
		p.SetY(-12)
		p.SetFont("Helvetica", "I", 8)
		p.SetTextColor(120, 120, 120)
		p.CellFormat(0, 6, d.tr(t.Metadata.Repository), "", 0, "L", false, 0, "")
		p.CellFormat(0, 6, fmt.Sprintf("%d / {nb}", p.PageNo()), "", 0, "R", false, 0, "")
		p.SetTextColor(0, 0, 0)
	})
	p.AddPage()
	return d
}

func (d *doc) title(t *tutorial.Tutorial) {
	m := t.Metadata
	d.pdf.SetFont("Helvetica", "B", 20)
	d.pdf.MultiCell(0, 9, d.tr(t.Title()), "", "L", false)
	d.pdf.Ln(2)
	if t.Overview.Description != "" {
		d.pdf.SetFont("Helvetica", "I", 12)
		d.pdf.MultiCell(0, 6, d.tr(t.Overview.Description), "", "L", false)
		d.pdf.Ln(2)
	}

	info := fmt.Sprintf("Generated %s from %s", m.GeneratedAt.Format("2006-01-02 15:04 MST"), m.URL)
	if m.Commit != "" {
		commit := m.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info += " at " + commit
	}
	info += fmt.Sprintf(". %d files included (%s)", m.FilesIncluded, humanize.Bytes(uint64(max(m.BytesIncluded, 0))))
	if m.Truncated {
		info += ", truncated to the size budget"
	}
	d.pdf.SetFont("Helvetica", "", 9)
	d.pdf.SetTextColor(90, 90, 90)
	d.pdf.MultiCell(0, 4.5, d.tr(info+"."), "", "L", false)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.Ln(4)
}

// heading writes a heading and registers it in the document outline.
func (d *doc) heading(level int, text string, outline int) {
	sizes := map[int]float64{1: 16, 2: 13.5, 3: 12, 4: 11}
	d.pdf.Ln(2)
	d.pdf.Bookmark(d.tr(text), outline, -1)
	d.pdf.SetFont("Helvetica", "B", sizes[level])
	d.pdf.MultiCell(0, sizes[level]*0.5, d.tr(text), "", "L", false)
	d.pdf.Ln(1.5)
}

func (d *doc) paragraph(text string, indent float64) {
	d.pdf.SetFont("Helvetica", "", bodySize)
	left, _, _, _ := d.pdf.GetMargins()
	d.pdf.SetX(left + indent)
	d.pdf.MultiCell(0, lineH, d.tr(inline(text)), "", "L", false)
}

func (d *doc) code(lines []string) {
	d.pdf.SetFont("Courier", "", codeSize)
	d.pdf.SetFillColor(244, 244, 244)
	for _, l := range lines {
		d.pdf.MultiCell(0, codeH, d.tr(strings.ReplaceAll(l, "\t", "    ")), "", "L", true)
	}
	d.pdf.Ln(2)
}

func (d *doc) languages(stats []tutorial.LanguageStat) {
	if len(stats) == 0 {
		return
	}
	d.pdf.Ln(2)
	d.pdf.SetFont("Helvetica", "B", 9.5)
	d.pdf.SetFillColor(230, 230, 230)
	d.pdf.CellFormat(70, 6, "Language", "1", 0, "L", true, 0, "")
	d.pdf.CellFormat(30, 6, "Files", "1", 0, "R", true, 0, "")
	d.pdf.CellFormat(35, 6, "Size", "1", 1, "R", true, 0, "")
	d.pdf.SetFont("Helvetica", "", 9.5)
	for _, l := range stats {
		d.pdf.CellFormat(70, 6, d.tr(l.Language), "1", 0, "L", false, 0, "")
		d.pdf.CellFormat(30, 6, fmt.Sprint(l.Files), "1", 0, "R", false, 0, "")
		d.pdf.CellFormat(35, 6, humanize.Bytes(uint64(max(l.Bytes, 0))), "1", 1, "R", false, 0, "")
	}
	d.pdf.Ln(3)
}

// markdown lays out the block structure of a Markdown fragment.
func (d *doc) markdown(src string) {
	var para, fence []string
	inFence := false
	flush := func() {
		if len(para) > 0 {
			d.paragraph(strings.Join(para, " "), 0)
			d.pdf.Ln(1.5)
			para = nil
		}
	}

	for _, line := range strings.Split(strings.TrimSpace(src), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				d.code(fence)
				fence = nil
			} else {
				flush()
			}
			inFence = !inFence
			continue
		}
		if inFence {
			fence = append(fence, line)
			continue
		}

		switch {
		case trimmed == "":
			flush()
		case strings.HasPrefix(trimmed, "#"):
			flush()
			level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
			d.pdf.SetFont("Helvetica", "B", bodySize+max(0, 4-float64(level)))
			d.pdf.MultiCell(0, lineH+0.8, d.tr(inline(strings.TrimSpace(trimmed[level:]))), "", "L", false)
			d.pdf.Ln(1)
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			flush()
			d.paragraph("- "+trimmed[2:], 4)
		case olRe.MatchString(trimmed):
			flush()
			d.paragraph(trimmed, 4)
		case strings.HasPrefix(trimmed, ">"):
			flush()
			d.paragraph(strings.TrimSpace(strings.TrimPrefix(trimmed, ">")), 6)
		default:
			para = append(para, trimmed)
		}
	}
	if inFence && len(fence) > 0 {
		d.code(fence)
	}
	flush()
}

// inline drops Markdown emphasis and link targets.
func inline(s string) string {
	s = linkRe.ReplaceAllString(s, "$1")
	s = boldRe.ReplaceAllString(s, "$1")
	s = codeRe.ReplaceAllString(s, "$1")
	return italicRe.ReplaceAllString(s, "$1$2$3")
}
