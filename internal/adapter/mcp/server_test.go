package mcp_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	ctmcp "github.com/Strob0t/CodeTutor/internal/adapter/mcp"
	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
	"github.com/Strob0t/CodeTutor/internal/service"
)

// --- Mocks ---

type mockTutorials struct {
	tasks map[string]task.Task
	calls []string
}

func newMock() *mockTutorials {
	src := repository.Source{Host: "github.com", Owner: "octo", Name: "hello"}
	done := task.New("done", src, time.Unix(0, 0))
	done.Status, done.Progress = task.StatusCompleted, 100
	done.Result = &tutorial.Tutorial{Metadata: tutorial.Metadata{Repository: "octo/hello"}}
	running := task.New("running", src, time.Unix(0, 0))
	running.Status, running.Progress = task.StatusGenerating, 80
	return &mockTutorials{tasks: map[string]task.Task{"done": done, "running": running}}
}

func (m *mockTutorials) Submit(_ context.Context, rawURL, ref string) (task.Task, error) {
	m.calls = append(m.calls, "submit "+rawURL+" "+ref)
	if !strings.HasPrefix(rawURL, "https://") {
		return task.Task{}, domain.Errorf(domain.KindInvalidRepositoryURL, "%q is not a repository URL", rawURL)
	}
	return task.New("new", repository.Source{}, time.Unix(0, 0)), nil
}

func (m *mockTutorials) Run(_ context.Context, rawURL, ref string) (task.Task, error) {
	m.calls = append(m.calls, "run "+rawURL+" "+ref)
	return m.tasks["done"], nil
}

func (m *mockTutorials) Status(id string) (task.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return task.Task{}, domain.Errorf(domain.KindTaskNotFound, "task %s not found", id)
	}
	return t, nil
}

func (m *mockTutorials) Result(id string) (*tutorial.Tutorial, error) {
	t, err := m.Status(id)
	if err != nil {
		return nil, err
	}
	if t.Result == nil {
		return nil, domain.Errorf(domain.KindTaskNotCompleted, "task %s is still %s", id, t.Status)
	}
	return t.Result, nil
}

func (m *mockTutorials) Export(id, _ string) (*service.Document, error) {
	if _, err := m.Result(id); err != nil {
		return nil, err
	}
	return &service.Document{Data: []byte("# octo/hello tutorial\n")}, nil
}

// --- Helpers ---

func call(t *testing.T, s *ctmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("%s tool not found", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func text(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	tc, ok := r.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return tc.Text
}

func newServer(m *mockTutorials) *ctmcp.Server {
	return ctmcp.NewServer(ctmcp.ServerConfig{Name: "codetutor", Version: "test"}, m)
}

// --- Tests ---

func TestToolRegistration(t *testing.T) {
	tools := newServer(newMock()).MCPServer().ListTools()
	want := []string{"analyze_repository", "get_task_status", "get_tutorial"}
	if len(tools) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(tools))
	}
	for _, name := range want {
		if _, ok := tools[name]; !ok {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestAnalyzeRepository(t *testing.T) {
	m := newMock()
	s := newServer(m)

	r := call(t, s, "analyze_repository", map[string]any{"repository_url": "https://github.com/octo/hello", "ref": "main"})
	if r.IsError {
		t.Fatalf("tool error: %s", text(t, r))
	}
	var got task.Task
	if err := json.Unmarshal([]byte(text(t, r)), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "new" || got.Status != task.StatusPending {
		t.Fatalf("task = %+v", got)
	}

	r = call(t, s, "analyze_repository", map[string]any{"repository_url": "https://github.com/octo/hello", "wait": true})
	if r.IsError || !strings.Contains(text(t, r), `"status":"completed"`) {
		t.Fatalf("wait: %s", text(t, r))
	}
	if strings.Join(m.calls, "|") != "submit https://github.com/octo/hello main|run https://github.com/octo/hello " {
		t.Fatalf("calls = %q", m.calls)
	}
}

func TestAnalyzeRepositoryErrors(t *testing.T) {
	s := newServer(newMock())

	if r := call(t, s, "analyze_repository", map[string]any{}); !r.IsError {
		t.Fatal("expected error for missing repository_url")
	}
	r := call(t, s, "analyze_repository", map[string]any{"repository_url": "ftp://nope"})
	if !r.IsError || !strings.Contains(text(t, r), "InvalidRepositoryURL") {
		t.Fatalf("expected InvalidRepositoryURL, got %s", text(t, r))
	}
}

func TestGetTaskStatus(t *testing.T) {
	s := newServer(newMock())

	r := call(t, s, "get_task_status", map[string]any{"task_id": "running"})
	if r.IsError || !strings.Contains(text(t, r), `"progress":80`) {
		t.Fatalf("status: %s", text(t, r))
	}
	r = call(t, s, "get_task_status", map[string]any{"task_id": "missing"})
	if !r.IsError || !strings.Contains(text(t, r), "TaskNotFound") {
		t.Fatalf("missing: %s", text(t, r))
	}
}

func TestGetTutorial(t *testing.T) {
	s := newServer(newMock())

	r := call(t, s, "get_tutorial", map[string]any{"task_id": "done"})
	if r.IsError || text(t, r) != "# octo/hello tutorial\n" {
		t.Fatalf("markdown: %s", text(t, r))
	}
	r = call(t, s, "get_tutorial", map[string]any{"task_id": "done", "format": "json"})
	if r.IsError || !strings.Contains(text(t, r), `"repository":"octo/hello"`) {
		t.Fatalf("json: %s", text(t, r))
	}
	r = call(t, s, "get_tutorial", map[string]any{"task_id": "running"})
	if !r.IsError || !strings.Contains(text(t, r), "TaskNotCompleted") {
		t.Fatalf("running: %s", text(t, r))
	}
}
