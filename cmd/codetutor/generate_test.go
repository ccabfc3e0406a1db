package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/CodeTutor/internal/domain/task"
)

func TestProgressPrinterPlain(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{w: &buf}
	ctx := context.Background()

	p.BroadcastTask(ctx, task.Task{Status: task.StatusCloning, Progress: 0, Message: "Cloning"})
	p.BroadcastTask(ctx, task.Task{Status: task.StatusCloning, Progress: 5, Message: "Still cloning"})
	p.BroadcastTask(ctx, task.Task{Status: task.StatusAnalyzing, Progress: 10, Message: "Analyzing"})
	p.finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one line per phase, got %q", buf.String())
	}
	if lines[1] != " 10% analyzing: Analyzing" {
		t.Fatalf("line = %q", lines[1])
	}
}

func TestWriteOutput(t *testing.T) {
	var stdout bytes.Buffer
	if err := writeOutput(&stdout, "-", []byte("# doc")); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "# doc" {
		t.Fatalf("stdout = %q", stdout.String())
	}

	path := filepath.Join(t.TempDir(), "out.md")
	if err := writeOutput(&stdout, path, []byte("# file")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "# file" {
		t.Fatalf("file = %q, %v", data, err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "generate": false, "mcp": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, ok := range want {
		if !ok {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	if !strings.HasPrefix(out.String(), "codetutor dev") {
		t.Fatalf("version output = %q", out.String())
	}
}
