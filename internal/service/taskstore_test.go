package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

type recordingObserver struct {
	mu    sync.Mutex
	snaps []task.Task
}

func (r *recordingObserver) BroadcastTask(_ context.Context, t task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, t)
}

func (r *recordingObserver) statuses() []task.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]task.Status, len(r.snaps))
	for i, t := range r.snaps {
		out[i] = t.Status
	}
	return out
}

func TestTaskStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	s := NewTaskStore(time.Hour, obs)
	defer s.Close()

	tk := s.Create(ctx, testSource)
	if tk.ID == "" || tk.Status != task.StatusPending {
		t.Fatalf("created = %+v", tk)
	}
	if err := s.Advance(ctx, tk.ID, task.StatusCloning, 5, "Cloning"); err != nil {
		t.Fatal(err)
	}
	if err := s.Advance(ctx, tk.ID, task.StatusAnalyzing, 40, "Analyzing"); err != nil {
		t.Fatal(err)
	}
	if err := s.Complete(ctx, tk.ID, &tutorial.Tutorial{}, "Done"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusCompleted || got.Progress != 100 || got.Result == nil {
		t.Fatalf("final = %+v", got)
	}

	if err := s.Fail(ctx, tk.ID, errors.New("late")); !errors.Is(err, task.ErrTerminal) {
		t.Fatalf("update after terminal: %v", err)
	}
	s.Flush()
	want := []task.Status{task.StatusPending, task.StatusCloning, task.StatusAnalyzing, task.StatusCompleted}
	if got := obs.statuses(); !slices.Equal(got, want) {
		t.Fatalf("observed %v, want %v", got, want)
	}
}

func TestTaskStoreUnknownTask(t *testing.T) {
	s := NewTaskStore(time.Hour)
	if _, err := s.Get("nope"); domain.KindOf(err) != domain.KindTaskNotFound {
		t.Fatalf("err = %v", err)
	}
	if err := s.Advance(context.Background(), "nope", task.StatusCloning, 1, ""); domain.KindOf(err) != domain.KindTaskNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestTaskStoreEvict(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewTaskStore(time.Hour)
	s.now = func() time.Time { return now }

	done := s.Create(ctx, testSource)
	running := s.Create(ctx, testSource)
	_ = s.Fail(ctx, done.ID, domain.Errorf(domain.KindCloneFailed, "gone"))
	_ = s.Advance(ctx, running.ID, task.StatusCloning, 1, "")

	now = now.Add(30 * time.Minute)
	if n := s.Evict(); n != 0 {
		t.Fatalf("evicted %d inside retention", n)
	}
	now = now.Add(2 * time.Hour)
	if n := s.Evict(); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if _, err := s.Get(running.ID); err != nil {
		t.Fatal("running task must never be evicted")
	}
}

// Concurrent readers must only ever see whole snapshots whose progress
// never goes backwards.
func TestTaskStoreConcurrentReadersSeeMonotonicProgress(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(time.Hour)
	tk := s.Create(ctx, testSource)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				select {
				case <-stop:
					return
				default:
				}
				cur, err := s.Get(tk.ID)
				if err != nil {
					errs <- err.Error()
					return
				}
				if cur.Progress < last {
					errs <- "progress went backwards"
					return
				}
				if lo, hi := cur.Status.Bounds(); cur.Status != task.StatusPending && (cur.Progress < lo || cur.Progress > hi) {
					errs <- "progress outside status bounds"
					return
				}
				last = cur.Progress
			}
		}()
	}

	for i := range 60 {
		_ = s.Advance(ctx, tk.ID, task.StatusAnalyzing, task.Scale(task.StatusAnalyzing, i, 60), "")
	}
	_ = s.Complete(ctx, tk.ID, &tutorial.Tutorial{}, "Done")
	close(stop)
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}

	counts := s.Counts()
	if counts[task.StatusCompleted] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

// blockingObserver holds every delivery until release is closed.
type blockingObserver struct {
	release chan struct{}
	seen    atomic.Int64
}

func newBlockingObserver(t *testing.T) *blockingObserver {
	o := &blockingObserver{release: make(chan struct{})}
	t.Cleanup(func() { close(o.release) })
	return o
}

func (o *blockingObserver) BroadcastTask(context.Context, task.Task) {
	<-o.release
	o.seen.Add(1)
}

func TestTaskStoreWritersDoNotWaitForObservers(t *testing.T) {
	ctx := context.Background()
	fast := &recordingObserver{}
	s := NewTaskStore(time.Hour, fast)
	t.Cleanup(s.Close)
	s.AddObserver(newBlockingObserver(t))

	start := time.Now()
	tk := s.Create(ctx, testSource)
	for i := range 20 {
		if err := s.Advance(ctx, tk.ID, task.StatusAnalyzing, task.Scale(task.StatusAnalyzing, i, 20), ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Complete(ctx, tk.ID, &tutorial.Tutorial{}, "Done"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("writers took %s behind a blocked observer", elapsed)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(fast.statuses()) < 22 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := fast.statuses()
	if len(got) != 22 || got[0] != task.StatusPending || got[21] != task.StatusCompleted {
		t.Fatalf("fast observer saw %v", got)
	}
}

func TestDispatcherKeepsTerminalSnapshotsWhenFull(t *testing.T) {
	ctx := context.Background()
	blocked := newBlockingObserver(t)
	d := newDispatcher(blocked)

	// The first push is taken by the goroutine and blocks there.
	d.push(ctx, task.Task{ID: "first", Status: task.StatusAnalyzing})
	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		taken := d.busy
		d.mu.Unlock()
		if taken || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	d.push(ctx, task.Task{ID: "done", Status: task.StatusCompleted})
	for range observerQueueSize + 10 {
		d.push(ctx, task.Task{ID: "busy", Status: task.StatusAnalyzing})
	}

	d.mu.Lock()
	n := len(d.queue)
	head := d.queue[0].t
	d.mu.Unlock()
	if n != observerQueueSize {
		t.Fatalf("queue holds %d, want %d", n, observerQueueSize)
	}
	if head.ID != "done" {
		t.Fatalf("terminal snapshot dropped; head is %+v", head)
	}
}
