// Package ws streams task progress to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/CodeTutor/internal/domain/task"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection watching one task.
type conn struct {
	ws     *websocket.Conn
	taskID string
	send   chan []byte
	cancel context.CancelFunc
}

// Hub tracks WebSocket connections by task and implements
// broadcast.Broadcaster.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*conn]struct{}
	// origins lists allowed Origin patterns; empty accepts any origin.
	origins []string
}

// NewHub creates a new WebSocket hub. origin "*" or "" disables origin checks.
func NewHub(origin string) *Hub {
	h := &Hub{conns: make(map[string]map[*conn]struct{})}
	if origin != "" && origin != "*" {
		h.origins = []string{origin}
	}
	return h
}

// Serve upgrades the request and streams updates for taskID, starting with
// the snapshot returned by current. The connection is closed once the task
// finishes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, taskID string, current func() task.Task) {
	// The server write timeout would otherwise cut long-running streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: len(h.origins) == 0,
		OriginPatterns:     h.origins,
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, taskID: taskID, send: make(chan []byte, 16), cancel: cancel}

	// Register before taking the snapshot so no update is lost in between.
	h.add(c)
	slog.Info("websocket connected", "task_id", taskID, "remote", r.RemoteAddr)

	snap := current()
	h.mu.RLock()
	if data := encode(snap); data != nil && h.registered(c) {
		c.enqueue(data)
	}
	h.mu.RUnlock()
	if snap.Status.Terminal() {
		h.finish(c)
	}

	go h.readLoop(ctx, c)
	h.writeLoop(ctx, c)
}

// readLoop consumes client frames to detect disconnects.
func (h *Hub) readLoop(ctx context.Context, c *conn) {
	defer h.remove(c)
	for {
		if _, _, err := c.ws.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *conn) {
	defer func() {
		h.remove(c)
		c.cancel()
		_ = c.ws.Close(websocket.StatusNormalClosure, "task finished")
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "task_id", c.taskID, "error", err)
				return
			}
		}
	}
}

// BroadcastTask sends the snapshot to every connection watching t. Slow
// clients that cannot keep up are dropped.
func (h *Hub) BroadcastTask(_ context.Context, t task.Task) {
	data := encode(t)
	if data == nil {
		return
	}

	h.mu.RLock()
	var slow []*conn
	for c := range h.conns[t.ID] {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("websocket client too slow, disconnecting", "task_id", t.ID)
		h.remove(c)
	}
	if t.Status.Terminal() {
		h.closeTask(t.ID)
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.conns {
		n += len(set)
	}
	return n
}

func (c *conn) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.taskID]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[c.taskID] = set
	}
	set[c] = struct{}{}
}

// finish detaches c and closes its queue so the writer exits after flushing.
func (h *Hub) finish(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.detach(c) {
		close(c.send)
	}
}

func (h *Hub) closeTask(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[taskID] {
		if h.detach(c) {
			close(c.send)
		}
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.detach(c) {
		c.cancel()
		slog.Info("websocket disconnected", "task_id", c.taskID)
	}
}

// registered and detach must be called with mu held.
func (h *Hub) registered(c *conn) bool {
	_, ok := h.conns[c.taskID][c]
	return ok
}

// detach reports whether c was registered.
func (h *Hub) detach(c *conn) bool {
	if !h.registered(c) {
		return false
	}
	set := h.conns[c.taskID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.taskID)
	}
	return true
}
