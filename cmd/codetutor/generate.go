package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/service"
)

var generateCmd = &cobra.Command{
	Use:   "generate <repository-url>",
	Short: "Generate a tutorial for one repository and write it to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().String("ref", "", "branch, tag or commit to analyze")
	generateCmd.Flags().StringP("format", "f", service.FormatMarkdown, "export format: markdown or pdf")
	generateCmd.Flags().StringP("out", "o", "", `output file (default <repo>-tutorial.<ext>, "-" for stdout)`)
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ref, _ := cmd.Flags().GetString("ref")
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	tty := term.IsTerminal(int(os.Stderr.Fd())) //nolint:gosec // fd fits in int
	if tty && strings.EqualFold(cfg.Logging.Level, "info") {
		// Keep the progress line readable; warnings still show.
		cfg.Logging.Level = "warn"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{logTo: os.Stderr})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = a.close(closeCtx)
	}()

	progress := &progressPrinter{w: os.Stderr, tty: tty}
	a.store.AddObserver(progress)

	start := time.Now()
	t, err := a.tutorials.Run(ctx, args[0], ref)
	a.store.Flush()
	progress.finish()
	if err != nil {
		return fmt.Errorf("%s: %s", domain.KindOf(err), domain.MessageOf(err))
	}

	doc, err := a.tutorials.Export(t.ID, format)
	if err != nil {
		return fmt.Errorf("%s: %s", domain.KindOf(err), domain.MessageOf(err))
	}
	if out == "" {
		out = doc.Filename
	}
	if err := writeOutput(cmd.OutOrStdout(), out, doc.Data); err != nil {
		return err
	}
	if out != "-" {
		fmt.Fprintf(os.Stderr, "Wrote %s (%s) in %s. %s\n",
			out, humanize.Bytes(uint64(len(doc.Data))), time.Since(start).Round(time.Second), t.Message)
	}
	return nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: tutorial is not secret
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// progressPrinter renders task updates on stderr: a single rewritten line
// on a terminal, one line per phase otherwise.
type progressPrinter struct {
	w   io.Writer
	tty bool

	mu   sync.Mutex
	last task.Status
	wide int
}

func (p *progressPrinter) BroadcastTask(_ context.Context, t task.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.tty {
		if t.Status != p.last {
			fmt.Fprintf(p.w, "%3d%% %s: %s\n", t.Progress, t.Status, t.Message)
		}
		p.last = t.Status
		return
	}
	line := fmt.Sprintf("[%3d%%] %-10s %s", t.Progress, t.Status, t.Message)
	if width, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && width > 4 && len(line) >= width { //nolint:gosec // fd fits in int
		line = line[:width-4] + "..."
	}
	pad := max(p.wide-len(line), 0)
	fmt.Fprintf(p.w, "\r%s%s", line, strings.Repeat(" ", pad))
	p.wide = len(line)
	p.last = t.Status
}

// finish ends the progress line.
func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.wide > 0 {
		fmt.Fprintln(p.w)
		p.wide = 0
	}
}
