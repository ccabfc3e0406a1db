// Package broadcast defines the port for pushing task progress to live subscribers.
package broadcast

import (
	"context"

	"github.com/Strob0t/CodeTutor/internal/domain/task"
)

// Broadcaster delivers a task snapshot to everyone watching that task.
type Broadcaster interface {
	BroadcastTask(ctx context.Context, t task.Task)
}
