package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/CodeTutor/internal/adapter/otel"
	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/domain/task"
	"github.com/Strob0t/CodeTutor/internal/domain/tutorial"
	"github.com/Strob0t/CodeTutor/internal/logger"
	"github.com/Strob0t/CodeTutor/internal/port/llm"
)

// RepositoryFetcher produces a checkout of a repository.
type RepositoryFetcher interface {
	Fetch(ctx context.Context, src repository.Source, dest string) (*Checkout, error)
}

// Pipeline drives one task through fetch, walk, analysis, generation and
// assembly, reporting progress to the task store. Its workspace is always
// removed before Run returns.
type Pipeline struct {
	fetcher  RepositoryFetcher
	walker   *Walker
	analyzer *Analyzer
	orch     *Orchestrator
	store    *TaskStore
	ws       *Workspace
	timeout  time.Duration
	metrics  *cfotel.Metrics
	now      func() time.Time
}

// PipelineDeps groups the collaborators of a Pipeline.
type PipelineDeps struct {
	Fetcher      RepositoryFetcher
	Walker       *Walker
	Analyzer     *Analyzer
	Orchestrator *Orchestrator
	Store        *TaskStore
	Workspace    *Workspace
	Metrics      *cfotel.Metrics
}

// NewPipeline creates a Pipeline. timeout <= 0 disables the task deadline.
func NewPipeline(deps PipelineDeps, timeout time.Duration) *Pipeline {
	return &Pipeline{
		fetcher:  deps.Fetcher,
		walker:   deps.Walker,
		analyzer: deps.Analyzer,
		orch:     deps.Orchestrator,
		store:    deps.Store,
		ws:       deps.Workspace,
		timeout:  timeout,
		metrics:  deps.Metrics,
		now:      time.Now,
	}
}

// Run processes task id to a terminal state. The returned error is the
// recorded failure, if any.
func (p *Pipeline) Run(ctx context.Context, id string, src repository.Source, completer llm.TextCompleter) (err error) {
	ctx = logger.WithTaskID(ctx, id)
	// Store updates must land even after the task deadline fired.
	storeCtx := context.WithoutCancel(ctx)

	ctx, span := cfotel.StartTaskSpan(ctx, id, src.FullName())
	start := p.now()
	if p.metrics != nil {
		p.metrics.TasksStarted.Add(ctx, 1)
	}
	defer func() {
		cfotel.EndSpan(span, err)
		if p.metrics != nil {
			p.metrics.TaskDuration.Record(storeCtx, p.now().Sub(start).Seconds())
		}
	}()

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := p.execute(runCtx, id, src, completer)
	if err != nil {
		err = p.classify(ctx, runCtx, err)
		slog.ErrorContext(storeCtx, "analysis failed",
			"repository", src.FullName(), "kind", domain.KindOf(err), "error", err)
		if p.metrics != nil {
			p.metrics.TasksFailed.Add(storeCtx, 1, metric.WithAttributes(attribute.String("kind", string(domain.KindOf(err)))))
		}
		if ferr := p.store.Fail(storeCtx, id, err); ferr != nil {
			slog.WarnContext(storeCtx, "could not record task failure", "error", ferr)
		}
		return err
	}

	msg := fmt.Sprintf("Tutorial generated with %d sections", len(result.Sections))
	if n := result.Placeholders(); n > 0 {
		msg += fmt.Sprintf(" (%d could not be generated)", n)
	}
	if p.metrics != nil {
		p.metrics.TasksCompleted.Add(storeCtx, 1)
	}
	slog.InfoContext(storeCtx, "analysis completed",
		"repository", src.FullName(), "sections", len(result.Sections), "duration", p.now().Sub(start))
	return p.store.Complete(storeCtx, id, result, msg)
}

// classify maps context errors onto task error kinds.
func (p *Pipeline) classify(parent, run context.Context, err error) error {
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	switch {
	case parent.Err() != nil:
		return interrupted(parent, err)
	case errors.Is(run.Err(), context.DeadlineExceeded):
		return domain.Wrap(domain.KindAnalysisTimeout, err,
			fmt.Sprintf("analysis did not finish within %s", p.timeout))
	default:
		return err
	}
}

// errShuttingDown is the cancellation cause set by TutorialService.Shutdown.
var errShuttingDown = errors.New("service is shutting down")

// interrupted reports whether ctx ended because of a shutdown or because
// the caller stopped waiting.
func interrupted(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errShuttingDown) {
		return domain.Wrap(domain.KindInternal, err, "analysis was interrupted because the service is shutting down")
	}
	return domain.Wrap(domain.KindInternal, err, "analysis was cancelled before it finished")
}

func (p *Pipeline) execute(ctx context.Context, id string, src repository.Source, completer llm.TextCompleter) (*tutorial.Tutorial, error) {
	storeCtx := context.WithoutCancel(ctx)
	advance := func(s task.Status, progress int, msg string) {
		if err := p.store.Advance(storeCtx, id, s, progress, msg); err != nil {
			slog.WarnContext(storeCtx, "progress update rejected", "status", s, "error", err)
		}
	}
	phase := func(name string) func(error) {
		_, span := cfotel.StartPhaseSpan(ctx, name)
		return func(err error) { cfotel.EndSpan(span, err) }
	}

	dir, release, err := p.ws.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	advance(task.StatusCloning, 0, "Cloning "+src.FullName())
	end := phase("cloning")
	co, err := p.fetcher.Fetch(ctx, src, filepath.Join(dir, "repo"))
	end(err)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(storeCtx, "repository cloned", "repository", src.FullName(), "commit", co.Commit, "bytes", co.SizeBytes)

	advance(task.StatusAnalyzing, task.Scale(task.StatusAnalyzing, 0, 1), "Scanning files")
	end = phase("analyzing")
	walk, err := p.walker.Walk(ctx, co.Dir)
	if err != nil {
		end(err)
		return nil, err
	}
	included := len(walk.Entries) - walk.Skipped()
	if p.metrics != nil {
		p.metrics.FilesIncluded.Record(storeCtx, int64(included))
	}
	lastPct := -1
	analysis, err := p.analyzer.Analyze(ctx, co.Dir, walk, func(done, total int) {
		if pct := task.Scale(task.StatusAnalyzing, done, total); pct != lastPct {
			lastPct = pct
			advance(task.StatusAnalyzing, pct, fmt.Sprintf("Analyzed %d of %d files", done, total))
		}
	})
	end(err)
	if err != nil {
		return nil, err
	}

	advance(task.StatusGenerating, task.Scale(task.StatusGenerating, 0, 1), "Generating overview")
	end = phase("generating")
	overview := OverviewInput{
		Name:         src.FullName(),
		Languages:    analysis.Languages,
		FileCount:    included,
		Truncated:    walk.Truncated,
		Dependencies: analysis.Dependencies,
		Layout:       analysis.Root.Summary(),
		Readme:       analysis.Readme,
	}
	if co.Host != nil {
		overview.Description = co.Host.Description
	}
	lastPct = -1
	frags, err := p.orch.Generate(ctx, completer, src.FullName(), overview, analysis, func(done, total int) {
		// One step is held back for assembly.
		if pct := task.Scale(task.StatusGenerating, done, total+1); pct != lastPct {
			lastPct = pct
			advance(task.StatusGenerating, pct, fmt.Sprintf("Generated %d of %d sections", done, total))
		}
	})
	end(err)
	if err != nil {
		return nil, err
	}

	return Assemble(AssembleInput{
		Source:      src,
		Host:        co.Host,
		Commit:      co.Commit,
		Walk:        walk,
		Analysis:    analysis,
		Fragments:   frags,
		GeneratedAt: p.now(),
	}), nil
}
