package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/CodeTutor/internal/config"
)

func TestNewToWritesServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewTo(&buf, config.Logging{Level: "info", Service: "test-svc"})
	defer closer.Close()

	l.Info("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["service"] != "test-svc" {
		t.Errorf("expected service=test-svc, got %v", rec["service"])
	}
}

func TestNewToFileFanout(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "codetutor.log")
	l, closer := NewTo(&buf, config.Logging{Level: "debug", Service: "svc", File: path})

	l.Debug("to both")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Errorf("file missing record: %q", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stream missing record: %q", buf.String())
	}
}

func TestContextIDs(t *testing.T) {
	var buf bytes.Buffer
	l, _ := NewTo(&buf, config.Logging{Level: "info", Service: "svc"})

	ctx := WithTaskID(WithRequestID(context.Background(), "req-1"), "task-9")
	if RequestID(ctx) != "req-1" || TaskID(ctx) != "task-9" {
		t.Fatal("ids not stored in context")
	}
	l.InfoContext(ctx, "tagged")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-1"`) || !strings.Contains(out, `"task_id":"task-9"`) {
		t.Errorf("ids missing from record: %s", out)
	}
	if RequestID(context.Background()) != "" {
		t.Error("expected empty request id on bare context")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warning", "WARN"},
		{"ERROR", "ERROR"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
