// Package task defines an analysis task and its progress state machine.
package task

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
)

// Status is the phase a task is in.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCloning    Status = "cloning"
	StatusAnalyzing  Status = "analyzing"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrTerminal is returned when updating a completed or failed task.
var ErrTerminal = errors.New("task already finished")

var order = map[Status]int{
	StatusPending:    0,
	StatusCloning:    1,
	StatusAnalyzing:  2,
	StatusGenerating: 3,
	StatusCompleted:  4,
	StatusFailed:     4,
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Valid reports whether s is a known status.
func (s Status) Valid() bool { _, ok := order[s]; return ok }

// Bounds returns the overall progress range covered by a phase.
func (s Status) Bounds() (lo, hi int) {
	switch s {
	case StatusCloning:
		return 0, 10
	case StatusAnalyzing:
		return 10, 70
	case StatusGenerating:
		return 70, 100
	case StatusCompleted:
		return 100, 100
	default:
		return 0, 0
	}
}

// Scale maps done/total within phase s onto the overall 0-100 range.
func Scale(s Status, done, total int) int {
	lo, hi := s.Bounds()
	if total <= 0 {
		return lo
	}
	frac := math.Min(float64(done)/float64(total), 1)
	return lo + int(math.Floor(frac*float64(hi-lo)))
}

// Failure is the error recorded on a failed task.
type Failure struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Task is one end-to-end analysis request. Values are treated as immutable
// snapshots; transitions return a new value.
type Task struct {
	ID         string             `json:"task_id"`
	Source     repository.Source  `json:"source"`
	Status     Status             `json:"status"`
	Progress   int                `json:"progress"`
	Message    string             `json:"message"`
	Error      *Failure           `json:"error,omitempty"`
	Result     *tutorial.Tutorial `json:"-"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	FinishedAt time.Time          `json:"finished_at,omitzero"`
}

// New returns a pending task.
func New(id string, src repository.Source, now time.Time) Task {
	return Task{
		ID:        id,
		Source:    src,
		Status:    StatusPending,
		Message:   "Queued for analysis",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves a running task to status s with the given progress and
// message. Status may not move backwards and progress never decreases; a
// lower progress value is raised to the current one. Progress is clamped to
// the bounds of s.
func (t Task) Advance(s Status, progress int, message string, now time.Time) (Task, error) {
	if t.Status.Terminal() {
		return t, ErrTerminal
	}
	if s.Terminal() || !s.Valid() {
		return t, fmt.Errorf("advance to %q: use Complete or Fail", s)
	}
	if order[s] < order[t.Status] {
		return t, fmt.Errorf("status cannot move from %s back to %s", t.Status, s)
	}
	lo, hi := s.Bounds()
	progress = max(min(progress, hi), lo, t.Progress)

	t.Status = s
	t.Progress = progress
	if message != "" {
		t.Message = message
	}
	t.UpdatedAt = now
	return t, nil
}

// Complete marks the task done with its tutorial.
func (t Task) Complete(result *tutorial.Tutorial, message string, now time.Time) (Task, error) {
	if t.Status.Terminal() {
		return t, ErrTerminal
	}
	t.Status = StatusCompleted
	t.Progress = 100
	t.Message = message
	t.Result = result
	t.UpdatedAt = now
	t.FinishedAt = now
	return t, nil
}

// Fail marks the task failed. Progress stays where it was.
func (t Task) Fail(err error, now time.Time) (Task, error) {
	if t.Status.Terminal() {
		return t, ErrTerminal
	}
	kind := domain.KindOf(err)
	msg := domain.MessageOf(err)
	t.Status = StatusFailed
	t.Error = &Failure{Kind: kind, Message: msg}
	t.Message = "Analysis failed: " + msg
	t.UpdatedAt = now
	t.FinishedAt = now
	return t, nil
}
