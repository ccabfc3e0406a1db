package service

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

// systemPrompt is sent with every completion.
const systemPrompt = `You are an expert software engineer writing a tutorial that teaches newcomers how a codebase works.
Answer with a single JSON object of the form {"title": "...", "description": "...", "content": "..."}.
"description" is one sentence. "content" is GitHub-flavoured Markdown without top-level headings.
Do not wrap the JSON in code fences.`

var promptFuncs = template.FuncMap{
	"join": strings.Join,
}

var overviewTmpl = template.Must(template.New("overview").Funcs(promptFuncs).Parse(
	`Write the overview section of a tutorial for the repository {{.Name}}.
{{- with .Description}}
Host description: {{.}}
{{- end}}

Languages (files, bytes):
{{- range .Languages}}
- {{.Language}}: {{.Files}} files, {{.Bytes}} bytes
{{- else}}
- none detected
{{- end}}
Included files: {{.FileCount}}{{if .Truncated}} (the file list was truncated to stay within the size budget){{end}}
{{- range $eco, $deps := .Dependencies}}
{{$eco}} dependencies: {{join $deps ", "}}
{{- end}}

Top-level layout: {{if .Layout}}{{.Layout}}{{else}}(empty){{end}}
{{- with .Readme}}

README excerpt:
"""
{{.}}
"""
{{- end}}

Explain what the project does, who it is for, and how its main parts fit together.
Use "title" for the tutorial's title.`))

var directoryTmpl = template.Must(template.New("directory").Parse(
	`Write the tutorial section for the directory "{{.Path}}" of the repository {{.Repository}}.

Its immediate children: {{.Children}}

Explain the responsibility of this directory, how its children relate, and when a reader should look here.
Use the directory path as the basis for "title".`))

var fileTmpl = template.Must(template.New("file").Parse(
	`Write the tutorial section for the {{.Language}} file "{{.Path}}" of the repository {{.Repository}}.

Structure (best-effort scan, may be incomplete):
{{.Summary}}

Source{{if .Truncated}} (truncated){{end}}:
"""
{{.Excerpt}}
"""

Explain what the file does, its key functions or types, and how it connects to the rest of the project.
Use the file name as the basis for "title".`))

// OverviewInput feeds the repository overview prompt.
type OverviewInput struct {
	Name         string
	Description  string
	Languages    []tutorial.LanguageStat
	FileCount    int
	Truncated    bool
	Dependencies map[string][]string
	Layout       string
	Readme       string
}

func renderOverviewPrompt(in OverviewInput) (string, error) {
	return render(overviewTmpl, in)
}

func renderDirectoryPrompt(repo string, d DirectoryAnalysis) (string, error) {
	return render(directoryTmpl, map[string]string{
		"Repository": repo,
		"Path":       d.Path,
		"Children":   d.Summary(),
	})
}

func renderFilePrompt(repo string, f FileAnalysis) (string, error) {
	lang := f.Entry.Language
	if lang == "" {
		lang = "source"
	}
	return render(fileTmpl, map[string]any{
		"Repository": repo,
		"Path":       f.Entry.Path,
		"Language":   lang,
		"Summary":    f.Summary(),
		"Excerpt":    f.Excerpt,
		"Truncated":  f.Truncated,
	})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
