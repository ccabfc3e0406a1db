package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/port/broadcast"
)

// observerQueueSize bounds the snapshots waiting for one observer.
const observerQueueSize = 256

type delivery struct {
	ctx context.Context
	t   task.Task
}

// dispatcher delivers snapshots to one observer on its own goroutine so a
// slow observer never delays the store's writers. When the queue is full
// the oldest non-terminal snapshot is dropped; terminal snapshots are kept.
type dispatcher struct {
	o broadcast.Broadcaster

	mu     sync.Mutex
	idle   *sync.Cond
	queue  []delivery
	busy   bool
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher(o broadcast.Broadcaster) *dispatcher {
	d := &dispatcher{
		o:    o,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	d.idle = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// push enqueues t without blocking.
func (d *dispatcher) push(ctx context.Context, t task.Task) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if len(d.queue) >= observerQueueSize {
		d.dropOldest()
	}
	d.queue = append(d.queue, delivery{ctx: context.WithoutCancel(ctx), t: t})
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// dropOldest removes the oldest non-terminal snapshot. Callers hold mu.
func (d *dispatcher) dropOldest() {
	i := 0
	for i < len(d.queue) && d.queue[i].t.Status.Terminal() {
		i++
	}
	if i == len(d.queue) {
		i = 0
	}
	slog.Warn("task observer lagging, snapshot dropped",
		"task_id", d.queue[i].t.ID, "status", d.queue[i].t.Status)
	d.queue = append(d.queue[:i], d.queue[i+1:]...)
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 {
			if d.closed {
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			<-d.wake
			d.mu.Lock()
		}
		next := d.queue[0]
		d.queue = d.queue[1:]
		d.busy = true
		d.mu.Unlock()

		d.o.BroadcastTask(next.ctx, next.t)

		d.mu.Lock()
		d.busy = false
		if len(d.queue) == 0 {
			d.idle.Broadcast()
		}
		d.mu.Unlock()
	}
}

// flush blocks until every queued snapshot has been delivered.
func (d *dispatcher) flush() {
	d.mu.Lock()
	for len(d.queue) > 0 || d.busy {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

// close delivers what is queued, then stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
