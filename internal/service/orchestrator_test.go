package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
	"github.com/Strob0t/CodeTutor/internal/port/llm"
	"github.com/Strob0t/CodeTutor/internal/resilience"
)

// fakeCompleter answers every prompt with a JSON fragment unless fail
// matches the prompt.
type fakeCompleter struct {
	calls atomic.Int64
	fail  func(prompt string) error
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, _ llm.Options) (string, error) {
	f.calls.Add(1)
	if f.fail != nil {
		if err := f.fail(prompt); err != nil {
			return "", err
		}
	}
	first, _, _ := strings.Cut(prompt, "\n")
	return fmt.Sprintf(`{"title": "T", "description": "D", "content": %q}`, first), nil
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]string)
	}
	c.m[key] = value
}

func testAnalysis() *RepositoryAnalysis {
	file := func(p string) FileAnalysis {
		return FileAnalysis{
			Entry:      repository.FileEntry{Path: p, Size: 10, Language: "python", Included: true},
			Excerpt:    "print('hi')",
			Structured: true,
		}
	}
	return &RepositoryAnalysis{
		Files: []FileAnalysis{file("main.py"), file("pkg/a.py"), file("pkg/b.py")},
		Directories: []DirectoryAnalysis{
			{Path: "pkg", Children: []Child{{Name: "a.py", Language: "python"}, {Name: "b.py", Language: "python"}}},
		},
		Root: DirectoryAnalysis{Children: []Child{{Name: "main.py", Language: "python"}, {Name: "pkg", IsDir: true}}},
	}
}

func testOrchestrator(maxCalls int) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		MaxCalls:    maxCalls,
		Concurrency: 2,
		Retry:       resilience.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, nil, nil, nil)
}

var overview = OverviewInput{Name: "octo/hello", FileCount: 3}

func TestGenerateAllFragments(t *testing.T) {
	c := &fakeCompleter{}
	var last [2]int
	frags, err := testOrchestrator(0).Generate(context.Background(), c, "octo/hello", overview, testAnalysis(),
		func(done, total int) { last = [2]int{done, total} })
	if err != nil {
		t.Fatal(err)
	}
	if frags.Overview.Status != tutorial.FragmentGenerated || frags.Overview.Title != "T" {
		t.Fatalf("overview = %+v", frags.Overview)
	}
	if len(frags.Directories) != 1 || len(frags.Files) != 3 {
		t.Fatalf("got %d dirs %d files", len(frags.Directories), len(frags.Files))
	}
	for p, f := range frags.Files {
		if f.Status != tutorial.FragmentGenerated {
			t.Errorf("%s status = %s", p, f.Status)
		}
		if !strings.Contains(f.Content, p) {
			t.Errorf("%s content %q does not come from its own prompt", p, f.Content)
		}
	}
	if got := c.calls.Load(); got != 5 {
		t.Errorf("calls = %d, want 5", got)
	}
	if last != [2]int{4, 4} {
		t.Errorf("final progress = %v", last)
	}
}

func TestGeneratePartialFailureBecomesPlaceholder(t *testing.T) {
	c := &fakeCompleter{fail: func(p string) error {
		if strings.Contains(p, `"pkg/b.py"`) {
			return errors.New("401 unauthorized")
		}
		return nil
	}}
	frags, err := testOrchestrator(0).Generate(context.Background(), c, "octo/hello", overview, testAnalysis(), nil)
	if err != nil {
		t.Fatal(err)
	}
	b := frags.Files["pkg/b.py"]
	if b.Status != tutorial.FragmentPlaceholder || b.Error == "" {
		t.Fatalf("pkg/b.py = %+v", b)
	}
	if frags.Files["pkg/a.py"].Status != tutorial.FragmentGenerated {
		t.Fatal("sibling fragment should still be generated")
	}
}

func TestGenerateOverviewFailureIsFatal(t *testing.T) {
	c := &fakeCompleter{fail: func(p string) error {
		if strings.Contains(p, "overview section") {
			return errors.New("invalid api key")
		}
		return nil
	}}
	_, err := testOrchestrator(0).Generate(context.Background(), c, "octo/hello", overview, testAnalysis(), nil)
	if domain.KindOf(err) != domain.KindLLMProviderError {
		t.Fatalf("kind = %s (%v)", domain.KindOf(err), err)
	}
	if got := c.calls.Load(); got != 1 {
		t.Errorf("fatal errors must not be retried, calls = %d", got)
	}
}

func TestGenerateRetriesTransientErrors(t *testing.T) {
	var n atomic.Int64
	c := &fakeCompleter{fail: func(string) error {
		if n.Add(1) == 1 {
			return errors.New("503 service unavailable")
		}
		return nil
	}}
	frags, err := testOrchestrator(0).Generate(context.Background(), c, "octo/hello", overview, &RepositoryAnalysis{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if frags.Overview.Status != tutorial.FragmentGenerated || c.calls.Load() != 2 {
		t.Fatalf("overview %+v after %d calls", frags.Overview, c.calls.Load())
	}
}

func TestGenerateBudgetFallsBackInPriorityOrder(t *testing.T) {
	c := &fakeCompleter{}
	frags, err := testOrchestrator(3).Generate(context.Background(), c, "octo/hello", overview, testAnalysis(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	// Overview, then the pkg directory, then the shallowest file.
	if frags.Directories["pkg"].Status != tutorial.FragmentGenerated {
		t.Error("directory should be generated first")
	}
	if frags.Files["main.py"].Status != tutorial.FragmentGenerated {
		t.Error("main.py should be generated before nested files")
	}
	for _, p := range []string{"pkg/a.py", "pkg/b.py"} {
		f := frags.Files[p]
		if f.Status != tutorial.FragmentFallback || !strings.Contains(f.Content, "python") {
			t.Errorf("%s = %+v", p, f)
		}
	}
}

func TestGenerateUsesCache(t *testing.T) {
	c := &fakeCompleter{}
	o := NewOrchestrator(OrchestratorConfig{Concurrency: 1}, nil, &mapCache{}, nil)
	for range 2 {
		if _, err := o.Generate(context.Background(), c, "octo/hello", overview, testAnalysis(), nil); err != nil {
			t.Fatal(err)
		}
	}
	if got := c.calls.Load(); got != 5 {
		t.Fatalf("calls = %d, want 5", got)
	}
}

func TestGenerateEmptyRepositoryIsOverviewOnly(t *testing.T) {
	c := &fakeCompleter{}
	frags, err := testOrchestrator(0).Generate(context.Background(), c, "octo/empty", overview, &RepositoryAnalysis{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags.Directories)+len(frags.Files) != 0 || c.calls.Load() != 1 {
		t.Fatalf("unexpected fragments: %+v", frags)
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testOrchestrator(0).Generate(ctx, &fakeCompleter{}, "octo/hello", overview, testAnalysis(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name, raw, title, content string
	}{
		{"plain", `{"title":"A","description":"d","content":"body"}`, "A", "body"},
		{"fenced", "```json\n{\"title\":\"A\",\"content\":\"body\"}\n```", "A", "body"},
		{"prose", "Sure! {\"title\":\"A\",\"content\":\"body\"} Hope it helps", "A", "body"},
		{"not json", "just markdown", "", "just markdown"},
		{"no content", `{"title":"A"}`, "", `{"title":"A"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, _, content := parseResponse(tt.raw)
			if title != tt.title || content != tt.content {
				t.Fatalf("got (%q, %q)", title, content)
			}
		})
	}
}

func singleFileAnalysis() *RepositoryAnalysis {
	return &RepositoryAnalysis{
		Files: []FileAnalysis{{
			Entry:      repository.FileEntry{Path: "main.py", Size: 10, Language: "python", Included: true},
			Excerpt:    "print('hi')",
			Structured: true,
		}},
	}
}

func TestGenerateBudgetCountsRetries(t *testing.T) {
	failFile := func(p string) error {
		if strings.Contains(p, `"main.py"`) {
			return errors.New("503 service unavailable")
		}
		return nil
	}
	tests := []struct {
		name      string
		maxCalls  int
		wantCalls int64
	}{
		{"no spare requests", 2, 2},
		{"spare requests feed retries", 4, 4},
		{"retries stop at the cap", 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCompleter{fail: failFile}
			frags, err := testOrchestrator(tt.maxCalls).Generate(context.Background(), c, "octo/hello", overview, singleFileAnalysis(), nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := c.calls.Load(); got != tt.wantCalls {
				t.Fatalf("provider requests = %d, want %d", got, tt.wantCalls)
			}
			if f := frags.Files["main.py"]; f.Status != tutorial.FragmentPlaceholder {
				t.Fatalf("main.py = %+v", f)
			}
		})
	}
}

func TestGenerateCacheHitsDoNotSpendBudget(t *testing.T) {
	shared := &mapCache{}
	warm := NewOrchestrator(OrchestratorConfig{Concurrency: 1}, nil, shared, nil)
	if _, err := warm.Generate(context.Background(), &fakeCompleter{}, "octo/hello", overview, testAnalysis(), nil); err != nil {
		t.Fatal(err)
	}

	c := &fakeCompleter{}
	capped := NewOrchestrator(OrchestratorConfig{Concurrency: 1, MaxCalls: 1}, nil, shared, nil)
	frags, err := capped.Generate(context.Background(), c, "octo/hello", overview, testAnalysis(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.calls.Load(); got != 0 {
		t.Fatalf("provider requests = %d, want 0", got)
	}
	for p, f := range frags.Files {
		if f.Status != tutorial.FragmentGenerated {
			t.Errorf("%s = %s, want generated from cache", p, f.Status)
		}
	}
}
