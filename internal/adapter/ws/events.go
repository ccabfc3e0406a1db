package ws

import (
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/CodeTutor/internal/domain/task"
)

// EventTaskStatus carries a task snapshot as its payload.
const EventTaskStatus = "task.status"

func encode(t task.Task) []byte {
	payload, err := json.Marshal(t)
	if err != nil {
		slog.Error("marshal ws event payload", "type", EventTaskStatus, "error", err)
		return nil
	}
	data, err := json.Marshal(Message{Type: EventTaskStatus, Payload: payload})
	if err != nil {
		slog.Error("marshal ws message", "error", err)
		return nil
	}
	return data
}
