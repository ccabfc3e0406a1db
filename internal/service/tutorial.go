package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

// TutorialService is the entry point used by the HTTP, MCP and CLI
// surfaces. Submitted tasks run on a bounded pool of background workers and
// report through the TaskStore.
type TutorialService struct {
	store        *TaskStore
	pipeline     *Pipeline
	exporter     *Exporter
	completers   CompleterSource
	allowedHosts []string

	workers *semaphore.Weighted
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelCauseFunc
}

// NewTutorialService creates the service. maxConcurrent bounds how many
// tasks run at once; the rest wait as pending.
func NewTutorialService(store *TaskStore, pipeline *Pipeline, exporter *Exporter, completers CompleterSource, allowedHosts []string, maxConcurrent int) *TutorialService {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &TutorialService{
		store:        store,
		pipeline:     pipeline,
		exporter:     exporter,
		completers:   completers,
		allowedHosts: allowedHosts,
		workers:      semaphore.NewWeighted(int64(max(maxConcurrent, 1))),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Submit validates the request and starts a background task. URL and API
// key problems are reported here, before any network I/O.
func (s *TutorialService) Submit(ctx context.Context, rawURL, ref string) (task.Task, error) {
	src, err := repository.ParseSource(rawURL, ref, s.allowedHosts)
	if err != nil {
		return task.Task{}, err
	}
	if _, err := s.completers.Completer(); err != nil {
		return task.Task{}, err
	}
	if s.ctx.Err() != nil {
		return task.Task{}, domain.Errorf(domain.KindInternal, "service is shutting down")
	}

	t := s.store.Create(ctx, src)
	slog.InfoContext(ctx, "analysis submitted", "task_id", t.ID, "repository", src.FullName(), "ref", src.Ref)

	s.wg.Add(1)
	go s.work(t.ID, src)
	return t, nil
}

func (s *TutorialService) work(id string, src repository.Source) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("analysis worker panicked", "task_id", id, "panic", r, "stack", string(debug.Stack()))
			_ = s.store.Fail(context.Background(), id, domain.Errorf(domain.KindInternal, "internal error: %v", r))
		}
	}()

	if err := s.workers.Acquire(s.ctx, 1); err != nil {
		_ = s.store.Fail(context.Background(), id, interrupted(s.ctx, err))
		return
	}
	defer s.workers.Release(1)

	// Resolved per task so a key rotated since Submit is honoured.
	completer, err := s.completers.Completer()
	if err != nil {
		_ = s.store.Fail(context.Background(), id, err)
		return
	}
	_ = s.pipeline.Run(s.ctx, id, src, completer)
}

// Run processes a repository in the caller's goroutine. It shares the
// worker slots with Submit and ends early when either ctx is cancelled or
// the service shuts down.
func (s *TutorialService) Run(ctx context.Context, rawURL, ref string) (task.Task, error) {
	src, err := repository.ParseSource(rawURL, ref, s.allowedHosts)
	if err != nil {
		return task.Task{}, err
	}
	completer, err := s.completers.Completer()
	if err != nil {
		return task.Task{}, err
	}
	if s.ctx.Err() != nil {
		return task.Task{}, domain.Errorf(domain.KindInternal, "service is shutting down")
	}
	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(s.ctx, func() { cancel(errShuttingDown) })
	defer stop()

	t := s.store.Create(ctx, src)
	if err := s.workers.Acquire(ctx, 1); err != nil {
		err = interrupted(ctx, err)
		_ = s.store.Fail(context.WithoutCancel(ctx), t.ID, err)
		return task.Task{}, err
	}
	defer s.workers.Release(1)

	if err := s.pipeline.Run(ctx, t.ID, src, completer); err != nil {
		return task.Task{}, err
	}
	return s.store.Get(t.ID)
}

// Status returns the current task snapshot.
func (s *TutorialService) Status(id string) (task.Task, error) {
	return s.store.Get(id)
}

// Result returns the tutorial of a completed task.
func (s *TutorialService) Result(id string) (*tutorial.Tutorial, error) {
	t, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case task.StatusCompleted:
		return t.Result, nil
	case task.StatusFailed:
		return nil, domain.Errorf(domain.KindTaskNotCompleted, "task %s failed: %s", id, t.Error.Message)
	default:
		return nil, domain.Errorf(domain.KindTaskNotCompleted, "task %s is still %s (%d%%)", id, t.Status, t.Progress)
	}
}

// Export renders the tutorial of a completed task.
func (s *TutorialService) Export(id, format string) (*Document, error) {
	t, err := s.Result(id)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(t, format)
}

// Formats lists the supported export formats.
func (s *TutorialService) Formats() []string { return s.exporter.Formats() }

// Counts returns the number of tasks per status.
func (s *TutorialService) Counts() map[task.Status]int { return s.store.Counts() }

// Shutdown stops accepting work, cancels running tasks and waits for their
// workers to record a terminal state.
func (s *TutorialService) Shutdown(ctx context.Context) error {
	s.cancel(errShuttingDown)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for analysis workers: %w", ctx.Err())
	}
}
