package service

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"

	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

// MarkdownRenderer writes a tutorial as a single GitHub-flavoured Markdown
// document with a linked table of contents.
type MarkdownRenderer struct{}

// Render implements export.Renderer.
func (MarkdownRenderer) Render(w io.Writer, t *tutorial.Tutorial) error {
	bw := bufio.NewWriter(w)
	slug := newSlugger()
	m := t.Metadata

	type heading struct {
		level  int
		title  string
		anchor string
	}
	var toc []heading
	add := func(level int, title string) heading {
		h := heading{level: level, title: title, anchor: slug.slug(title)}
		toc = append(toc, h)
		return h
	}

	overview := add(2, "Overview")
	var started, arch, path heading
	if t.GettingStarted != "" {
		started = add(2, "Getting Started")
	}
	if t.Diagram != "" {
		arch = add(2, "Architecture")
	}
	if len(t.LearningPath) > 0 {
		path = add(2, "Learning Path")
	}
	walk := add(2, "Walkthrough")
	sections := make([]heading, len(t.Sections))
	for i, s := range t.Sections {
		sections[i] = add(min(3+s.Depth, 6), sectionTitle(s))
	}

	fmt.Fprintf(bw, "# %s\n\n", t.Title())
	if t.Overview.Description != "" {
		fmt.Fprintf(bw, "> %s\n\n", t.Overview.Description)
	}
	fmt.Fprintf(bw, "_Generated %s from [%s](%s)", m.GeneratedAt.Format("2006-01-02 15:04 MST"), m.Repository, m.URL)
	if m.Commit != "" {
		fmt.Fprintf(bw, " at `%s`", shortCommit(m.Commit))
	}
	fmt.Fprintf(bw, ". %d files included (%s)", m.FilesIncluded, humanize.Bytes(uint64(max(m.BytesIncluded, 0))))
	if m.Truncated {
		bw.WriteString(", truncated to the size budget")
	}
	bw.WriteString("._\n\n")

	bw.WriteString("## Table of Contents\n\n")
	for _, h := range toc {
		indent := strings.Repeat("  ", max(h.level-2, 0))
		fmt.Fprintf(bw, "%s- [%s](#%s)\n", indent, h.title, h.anchor)
	}
	bw.WriteString("\n")

	fmt.Fprintf(bw, "## %s\n\n%s\n\n", overview.title, strings.TrimSpace(t.Overview.Content))
	if len(m.Languages) > 0 {
		bw.WriteString("| Language | Files | Size |\n|---|---|---|\n")
		for _, l := range m.Languages {
			fmt.Fprintf(bw, "| %s | %d | %s |\n", l.Language, l.Files, humanize.Bytes(uint64(max(l.Bytes, 0))))
		}
		bw.WriteString("\n")
	}

	if started.title != "" {
		fmt.Fprintf(bw, "## %s\n\n%s\n\n", started.title, strings.TrimSpace(t.GettingStarted))
	}
	if arch.title != "" {
		fmt.Fprintf(bw, "## %s\n\n```mermaid\n%s\n```\n\n", arch.title, strings.TrimRight(t.Diagram, "\n"))
	}
	if path.title != "" {
		fmt.Fprintf(bw, "## %s\n\n", path.title)
		for i, step := range t.LearningPath {
			fmt.Fprintf(bw, "%d. **%s**: %s", i+1, step.Title, step.Description)
			if len(step.Files) > 0 {
				bw.WriteString(" (`" + strings.Join(step.Files, "`, `") + "`)")
			}
			bw.WriteString("\n")
		}
		bw.WriteString("\n")
	}

	fmt.Fprintf(bw, "## %s\n\n", walk.title)
	for i, s := range t.Sections {
		h := sections[i]
		fmt.Fprintf(bw, "%s %s\n\n", strings.Repeat("#", h.level), h.title)
		if s.Description != "" {
			fmt.Fprintf(bw, "_%s_\n\n", s.Description)
		}
		fmt.Fprintf(bw, "%s\n\n", strings.TrimSpace(s.Content))
	}
	return bw.Flush()
}

func sectionTitle(s tutorial.Section) string {
	if title := strings.Join(strings.Fields(s.Title), " "); title != "" {
		return title
	}
	return s.Subject
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

// slugger produces GitHub-style heading anchors, suffixing duplicates.
type slugger struct {
	seen map[string]int
}

func newSlugger() *slugger { return &slugger{seen: make(map[string]int)} }

func (s *slugger) slug(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	base := b.String()
	n := s.seen[base]
	s.seen[base] = n + 1
	if n == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}
