// Package logger provides structured logging setup for CodeTutor.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"github.com/Strob0t/CodeTutor/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates a *slog.Logger writing JSON to stdout with a "service"
// attribute on every record. See NewTo.
func New(cfg config.Logging) (*slog.Logger, io.Closer) {
	return NewTo(os.Stdout, cfg)
}

// NewTo creates a logger writing JSON to w. When cfg.File is set, records
// are also appended to that file; the returned Closer closes it.
// If the file cannot be opened the logger falls back to w alone.
func NewTo(w io.Writer, cfg config.Logging) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // operator-supplied log path
		if err != nil {
			slog.New(handler).Error("failed to open log file, logging to stream only", "file", cfg.File, "error", err)
		} else {
			handler = slogmulti.Fanout(handler, slog.NewJSONHandler(f, opts))
			closer = f
		}
	}

	return slog.New(&contextHandler{Handler: handler}).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
