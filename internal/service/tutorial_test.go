package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/port/llm"
)

type staticCompleters struct {
	c   llm.TextCompleter
	err error
}

func (s staticCompleters) Completer() (llm.TextCompleter, error) { return s.c, s.err }

func newTestService(t *testing.T, c llm.TextCompleter, maxConcurrent int) (*TutorialService, *harness) {
	t.Helper()
	h := newHarness(t, sampleTree, 0)
	svc := NewTutorialService(h.store, h.pipeline, NewExporter(nil), staticCompleters{c: c}, []string{"github.com"}, maxConcurrent)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, h
}

func waitTerminal(t *testing.T, svc *TutorialService, id string) task.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tk, err := svc.Status(id)
		if err != nil {
			t.Fatal(err)
		}
		if tk.Status.Terminal() {
			return tk
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return task.Task{}
}

func TestServiceSubmitAndExport(t *testing.T) {
	svc, _ := newTestService(t, &fakeCompleter{}, 2)
	ctx := context.Background()

	tk, err := svc.Submit(ctx, "https://github.com/octo/hello", "")
	if err != nil {
		t.Fatal(err)
	}
	if tk.Status != task.StatusPending || tk.ID == "" {
		t.Fatalf("submitted = %+v", tk)
	}

	done := waitTerminal(t, svc, tk.ID)
	if done.Status != task.StatusCompleted {
		t.Fatalf("task = %+v", done)
	}
	res, err := svc.Result(tk.ID)
	if err != nil || len(res.Sections) != 4 {
		t.Fatalf("result = %v, %v", res, err)
	}
	doc, err := svc.Export(tk.ID, "markdown")
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Data) == 0 || doc.Filename != "octo_hello-tutorial.md" {
		t.Fatalf("doc = %s (%d bytes)", doc.Filename, len(doc.Data))
	}
	if _, err := svc.Export(tk.ID, "docx"); domain.KindOf(err) != domain.KindExportFormatUnsupported {
		t.Fatalf("docx: %v", err)
	}
}

func TestServiceRejectsBeforeWork(t *testing.T) {
	ctx := context.Background()
	svc, h := newTestService(t, &fakeCompleter{}, 1)

	if _, err := svc.Submit(ctx, "https://example.com/not/a/repo/at/all", ""); domain.KindOf(err) != domain.KindInvalidRepositoryURL {
		t.Fatalf("bad url: %v", err)
	}

	noKey := NewTutorialService(h.store, h.pipeline, NewExporter(nil),
		staticCompleters{err: domain.Errorf(domain.KindNoAPIKeyConfigured, "no key")}, []string{"github.com"}, 1)
	if _, err := noKey.Submit(ctx, "https://github.com/octo/hello", ""); domain.KindOf(err) != domain.KindNoAPIKeyConfigured {
		t.Fatalf("no key: %v", err)
	}
	if n := len(h.store.Counts()); n != 0 {
		t.Fatalf("rejected submissions created tasks: %v", h.store.Counts())
	}
}

func TestServiceResultBeforeCompletion(t *testing.T) {
	release := make(chan struct{})
	blocking := llm.CompleterFunc(func(ctx context.Context, _ string, _ llm.Options) (string, error) {
		select {
		case <-release:
			return `{"title":"T","content":"c"}`, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	svc, _ := newTestService(t, blocking, 1)
	tk, err := svc.Submit(context.Background(), "https://github.com/octo/hello", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Result(tk.ID); domain.KindOf(err) != domain.KindTaskNotCompleted {
		t.Fatalf("result early: %v", err)
	}
	if _, err := svc.Export(tk.ID, "markdown"); domain.KindOf(err) != domain.KindTaskNotCompleted {
		t.Fatalf("export early: %v", err)
	}
	if _, err := svc.Result("missing"); domain.KindOf(err) != domain.KindTaskNotFound {
		t.Fatalf("missing: %v", err)
	}

	close(release)
	if done := waitTerminal(t, svc, tk.ID); done.Status != task.StatusCompleted {
		t.Fatalf("task = %+v", done)
	}
}

func TestServiceShutdownFailsRunningTasks(t *testing.T) {
	blocking := llm.CompleterFunc(func(ctx context.Context, _ string, _ llm.Options) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	svc, _ := newTestService(t, blocking, 1)
	ctx := context.Background()

	running, err := svc.Submit(ctx, "https://github.com/octo/hello", "")
	if err != nil {
		t.Fatal(err)
	}
	queued, err := svc.Submit(ctx, "https://github.com/octo/hello", "")
	if err != nil {
		t.Fatal(err)
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(sctx); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{running.ID, queued.ID} {
		tk, _ := svc.Status(id)
		if tk.Status != task.StatusFailed {
			t.Errorf("%s status = %s", id, tk.Status)
		}
	}
	if _, err := svc.Submit(ctx, "https://github.com/octo/hello", ""); err == nil {
		t.Fatal("submit after shutdown should fail")
	}
}

func TestServiceRun(t *testing.T) {
	svc, _ := newTestService(t, &fakeCompleter{}, 1)
	tk, err := svc.Run(context.Background(), "https://github.com/octo/hello/tree/main", "")
	if err != nil {
		t.Fatal(err)
	}
	if tk.Status != task.StatusCompleted || tk.Source.Ref != "main" {
		t.Fatalf("task = %+v", tk)
	}
}

// parkedCompleter blocks every call until its context ends. entered
// receives once per call.
func parkedCompleter() (llm.TextCompleter, *atomic.Int64, chan struct{}) {
	var calls atomic.Int64
	entered := make(chan struct{}, 64)
	c := llm.CompleterFunc(func(ctx context.Context, _ string, _ llm.Options) (string, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})
	return c, &calls, entered
}

func awaitCall(t *testing.T, entered <-chan struct{}) {
	t.Helper()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("analysis never reached the model")
	}
}

func failureMessage(t *testing.T, err error) string {
	t.Helper()
	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *domain.Error", err)
	}
	return de.Message
}

func TestServiceRunWaitsForWorkerSlot(t *testing.T) {
	c, calls, entered := parkedCompleter()
	svc, _ := newTestService(t, c, 1)

	if _, err := svc.Submit(context.Background(), "https://github.com/octo/hello", ""); err != nil {
		t.Fatal(err)
	}
	awaitCall(t, entered)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := svc.Run(ctx, "https://github.com/octo/hello", "")
	if msg := failureMessage(t, err); !strings.Contains(msg, "cancelled") {
		t.Fatalf("message = %q", msg)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("model called %d times, Run must wait for the busy worker slot", n)
	}
	if n := svc.Counts()[task.StatusFailed]; n != 1 {
		t.Fatalf("failed tasks = %d, want the queued Run task recorded", n)
	}
}

func TestServiceRunInterruptions(t *testing.T) {
	tests := []struct {
		name      string
		interrupt func(svc *TutorialService, cancel context.CancelFunc)
		want      string
	}{
		{
			name:      "caller cancels",
			interrupt: func(_ *TutorialService, cancel context.CancelFunc) { cancel() },
			want:      "cancelled before it finished",
		},
		{
			name: "service shuts down",
			interrupt: func(svc *TutorialService, _ context.CancelFunc) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = svc.Shutdown(ctx)
			},
			want: "service is shutting down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, entered := parkedCompleter()
			svc, _ := newTestService(t, c, 1)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				<-entered
				tt.interrupt(svc, cancel)
			}()
			_, err := svc.Run(ctx, "https://github.com/octo/hello", "")
			if msg := failureMessage(t, err); !strings.Contains(msg, tt.want) {
				t.Fatalf("message = %q, want %q", msg, tt.want)
			}
			if domain.KindOf(err) != domain.KindInternal {
				t.Fatalf("kind = %s", domain.KindOf(err))
			}
		})
	}
}
