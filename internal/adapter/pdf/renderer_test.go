package pdf

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

func sampleTutorial() *tutorial.Tutorial {
	return &tutorial.Tutorial{
		Metadata: tutorial.Metadata{
			Repository:    "octo/hello",
			URL:           "https://github.com/octo/hello",
			Commit:        "0123456789abcdef0123",
			GeneratedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			FilesIncluded: 2,
			BytesIncluded: 2048,
			Languages:     []tutorial.LanguageStat{{Language: "Go", Files: 2, Bytes: 2048}},
		},
		Overview: tutorial.Fragment{
			Title:       "Hello – a greeting service",
			Description: "Says hello.",
			Content:     "# Intro\n\nThis is **hello**, see `main.go`.\n\n- one\n- two\n\n```go\nfunc main() {}\n```",
		},
		GettingStarted: "1. Clone\n2. Run `go run .`",
		Diagram:        "graph TD\n  root[\"hello\"]",
		LearningPath:   []tutorial.LearningStep{{Title: "Entry points", Description: "Start here", Files: []string{"main.go"}}},
		Sections: []tutorial.Section{
			{Fragment: tutorial.Fragment{Subject: "cmd", Title: "cmd/", Content: "Commands."}},
			{Fragment: tutorial.Fragment{Subject: "cmd/main.go", Title: "main.go", Description: "Entry", Content: "Starts the server."}, Depth: 1},
		},
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := New().Render(&buf, sampleTutorial()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "%PDF-") {
		t.Fatalf("missing PDF header: %q", out[:min(len(out), 16)])
	}
	if !strings.Contains(out, "%%EOF") {
		t.Fatal("missing PDF trailer")
	}
}

func TestRenderDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	if err := New().Render(&a, sampleTutorial()); err != nil {
		t.Fatal(err)
	}
	if err := New().Render(&b, sampleTutorial()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("rendering the same tutorial twice should produce identical bytes")
	}
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := New().Render(&buf, &tutorial.Tutorial{}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected output for empty tutorial")
	}
}

func TestInline(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"**bold** text", "bold text"},
		{"use `go test`", "use go test"},
		{"see [docs](https://x.y)", "see docs"},
		{"an *emphasis* word", "an emphasis word"},
		{"snake_case_name", "snake_case_name"},
	}
	for _, tt := range tests {
		if got := inline(tt.in); got != tt.want {
			t.Errorf("inline(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
