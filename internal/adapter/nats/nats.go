// Package nats publishes task lifecycle events to NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/port/messagequeue"
)

const publishTimeout = 5 * time.Second

// Queue implements messagequeue.Publisher and broadcast.Broadcaster using
// NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream
// capturing task events exists.
func Connect(ctx context.Context, url, stream string) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.Name("codetutor"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{messagequeue.SubjectTaskPrefix + ">"},
		MaxAge:   24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", stream)
	return &Queue{nc: nc, js: js}, nil
}

// KeyValue opens (creating if needed) a KV bucket whose entries expire
// after ttl.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Publish sends a message to the given subject.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// BroadcastTask publishes the snapshot to codetutor.tasks.<status> and
// waits for the ack. Publish failures are logged. The task store calls
// observers from their own goroutine, so a slow broker only delays later
// events.
func (q *Queue) BroadcastTask(ctx context.Context, t task.Task) {
	subject, data, err := TaskEvent(t)
	if err != nil {
		slog.Error("marshal task event", "task_id", t.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := q.Publish(ctx, subject, data); err != nil {
		slog.Warn("task event not published", "task_id", t.ID, "error", err)
	}
}

// TaskEvent returns the subject and JSON payload for a task snapshot.
func TaskEvent(t task.Task) (string, []byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", nil, err
	}
	return messagequeue.SubjectTaskPrefix + string(t.Status), data, nil
}

// IsConnected reports whether the underlying connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc != nil && q.nc.IsConnected()
}

// Close drains and shuts down the NATS connection.
func (q *Queue) Close() error {
	if err := q.nc.Drain(); err != nil {
		q.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
