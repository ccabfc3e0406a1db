// Package messagequeue defines the port for publishing task events to a broker.
package messagequeue

import "context"

// Publisher sends messages to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
	IsConnected() bool
}

// SubjectTaskPrefix is followed by the task status, e.g. "codetutor.tasks.completed".
const SubjectTaskPrefix = "codetutor.tasks."
