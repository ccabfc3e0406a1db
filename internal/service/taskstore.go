package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
	"github.com/Strob0t/CodeTutor/internal/port/broadcast"
)

// TaskStore is the process-wide index of tasks. Entries are immutable
// snapshots replaced whole under the lock, so readers never observe a
// partially applied update. Each task has a single writer: the worker
// running it.
type TaskStore struct {
	mu        sync.RWMutex
	tasks     map[string]task.Task
	observers []*dispatcher
	retention time.Duration
	now       func() time.Time
}

// NewTaskStore creates an empty store. Observers receive every snapshot
// after it is stored, in order, on a goroutine of their own; Close stops
// them.
func NewTaskStore(retention time.Duration, observers ...broadcast.Broadcaster) *TaskStore {
	s := &TaskStore{
		tasks:     make(map[string]task.Task),
		retention: retention,
		now:       time.Now,
	}
	for _, o := range observers {
		s.observers = append(s.observers, newDispatcher(o))
	}
	return s
}

// AddObserver registers another snapshot observer. Call before tasks run.
func (s *TaskStore) AddObserver(o broadcast.Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, newDispatcher(o))
}

// Flush blocks until every observer has received the snapshots stored so far.
func (s *TaskStore) Flush() {
	for _, d := range s.dispatchers() {
		d.flush()
	}
}

// Close delivers pending snapshots and stops the observer goroutines.
func (s *TaskStore) Close() {
	s.mu.Lock()
	observers := s.observers
	s.observers = nil
	s.mu.Unlock()
	for _, d := range observers {
		d.close()
	}
}

// Create stores a new pending task for src.
func (s *TaskStore) Create(ctx context.Context, src repository.Source) task.Task {
	t := task.New(uuid.NewString(), src, s.now())
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	s.notify(ctx, t)
	return t
}

// Get returns the current snapshot of a task.
func (s *TaskStore) Get(id string) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, domain.Errorf(domain.KindTaskNotFound, "task %s not found", id)
	}
	return t, nil
}

// Update applies fn to the stored task and stores the result atomically.
func (s *TaskStore) Update(ctx context.Context, id string, fn func(task.Task) (task.Task, error)) (task.Task, error) {
	s.mu.Lock()
	cur, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return task.Task{}, domain.Errorf(domain.KindTaskNotFound, "task %s not found", id)
	}
	next, err := fn(cur)
	if err != nil {
		s.mu.Unlock()
		return cur, err
	}
	s.tasks[id] = next
	s.mu.Unlock()

	s.notify(ctx, next)
	return next, nil
}

// Advance moves a task to status with progress and message.
func (s *TaskStore) Advance(ctx context.Context, id string, status task.Status, progress int, message string) error {
	_, err := s.Update(ctx, id, func(t task.Task) (task.Task, error) {
		return t.Advance(status, progress, message, s.now())
	})
	return err
}

// Complete stores the tutorial and marks the task completed.
func (s *TaskStore) Complete(ctx context.Context, id string, result *tutorial.Tutorial, message string) error {
	_, err := s.Update(ctx, id, func(t task.Task) (task.Task, error) {
		return t.Complete(result, message, s.now())
	})
	return err
}

// Fail marks the task failed with cause.
func (s *TaskStore) Fail(ctx context.Context, id string, cause error) error {
	_, err := s.Update(ctx, id, func(t task.Task) (task.Task, error) {
		return t.Fail(cause, s.now())
	})
	return err
}

// Evict removes finished tasks older than the retention window and returns
// how many were removed.
func (s *TaskStore) Evict() int {
	if s.retention <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.tasks {
		if t.Status.Terminal() && t.FinishedAt.Before(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}
	return n
}

// Counts returns the number of stored tasks per status.
func (s *TaskStore) Counts() map[task.Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[task.Status]int)
	for _, t := range s.tasks {
		out[t.Status]++
	}
	return out
}

func (s *TaskStore) dispatchers() []*dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observers
}

// notify hands t to every observer without waiting for delivery.
func (s *TaskStore) notify(ctx context.Context, t task.Task) {
	for _, d := range s.dispatchers() {
		d.push(ctx, t)
	}
}
