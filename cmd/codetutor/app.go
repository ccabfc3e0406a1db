package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Strob0t/CodeTutor/internal/adapter/github"
	"github.com/Strob0t/CodeTutor/internal/adapter/gitlocal"
	"github.com/Strob0t/CodeTutor/internal/adapter/natskv"
	ctnats "github.com/Strob0t/CodeTutor/internal/adapter/nats"
	cfotel "github.com/Strob0t/CodeTutor/internal/adapter/otel"
	"github.com/Strob0t/CodeTutor/internal/adapter/pdf"
	"github.com/Strob0t/CodeTutor/internal/adapter/ristretto"
	"github.com/Strob0t/CodeTutor/internal/adapter/tiered"
	"github.com/Strob0t/CodeTutor/internal/adapter/ws"
	"github.com/Strob0t/CodeTutor/internal/config"
	"github.com/Strob0t/CodeTutor/internal/git"
	"github.com/Strob0t/CodeTutor/internal/logger"
	"github.com/Strob0t/CodeTutor/internal/port/cache"
	"github.com/Strob0t/CodeTutor/internal/resilience"
	"github.com/Strob0t/CodeTutor/internal/secrets"
	"github.com/Strob0t/CodeTutor/internal/service"
)

// app holds the wired components shared by the serve, generate and mcp
// commands.
type app struct {
	cfg       *config.Config
	vault     *secrets.Vault
	telemetry *cfotel.Telemetry
	breaker   *resilience.Breaker
	store     *service.TaskStore
	janitor   *service.Janitor
	providers *service.Providers
	tutorials *service.TutorialService
	hub       *ws.Hub
	events    *ctnats.Queue

	closers []func(context.Context) error
}

type appOptions struct {
	// live enables the WebSocket hub and NATS task events.
	live bool
	// logTo overrides stdout for logs; mcp must keep stdout for the protocol.
	logTo io.Writer
}

// loadConfig reads configuration honouring the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// newApp builds every component from cfg. Callers must call close.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	out := opts.logTo
	if out == nil {
		out = os.Stdout
	}
	log, logCloser := logger.NewTo(out, cfg.Logging)
	slog.SetDefault(log)
	a.closers = append(a.closers, func(context.Context) error { return logCloser.Close() })

	// --- Infrastructure ---

	loader := secrets.EnvLoader(secrets.Names...)
	if cfg.Secrets.EnvFile != "" {
		loader = secrets.Chain(secrets.DotEnvLoader(cfg.Secrets.EnvFile, secrets.Names...), loader)
	}
	if a.vault, err = secrets.NewVault(loader); err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}

	if a.telemetry, err = cfotel.Init(ctx, cfg.Telemetry, "codetutor", version); err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.closers = append(a.closers, a.telemetry.Shutdown)
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	meta, err := github.New(cfg.GitHub, a.vault)
	if err != nil {
		return nil, err
	}
	cloner := gitlocal.NewCloner(git.NewPool(cfg.Git.MaxConcurrent))

	if opts.live && cfg.NATS.URL != "" {
		if a.events, err = ctnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream); err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return a.events.Close() })
	}

	completions, err := a.completionCache(ctx)
	if err != nil {
		return nil, err
	}

	workspace, err := service.NewWorkspace(cfg.Repository.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}

	// --- Services ---

	a.store = service.NewTaskStore(cfg.Tasks.Retention)
	a.closers = append(a.closers, func(context.Context) error { a.store.Close(); return nil })
	if opts.live {
		a.hub = ws.NewHub(cfg.Server.CORSOrigin)
		a.store.AddObserver(a.hub)
		if a.events != nil {
			a.store.AddObserver(a.events)
		}
	}

	a.breaker = resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	pipeline := service.NewPipeline(service.PipelineDeps{
		Fetcher:      service.NewFetcher(cloner, meta, int64(cfg.Repository.MaxSizeMB)<<20),
		Walker:       service.NewWalker(service.WalkConfigFrom(cfg.Walker)),
		Analyzer:     service.NewAnalyzer(service.AnalyzerConfigFrom(cfg.Analysis)),
		Orchestrator: service.NewOrchestrator(service.OrchestratorConfigFrom(cfg), a.breaker, completions, metrics),
		Store:        a.store,
		Workspace:    workspace,
		Metrics:      metrics,
	}, cfg.Tasks.Timeout)

	a.providers = service.NewProviders(cfg.LLM, a.vault)
	a.tutorials = service.NewTutorialService(a.store, pipeline, service.NewExporter(pdf.New()),
		a.providers, cfg.Repository.AllowedHosts, cfg.Tasks.MaxConcurrent)
	a.janitor = service.NewJanitor(a.store, workspace, cfg.Tasks.StaleWorkspaceAge)

	slog.Info("codetutor initialised",
		"version", version,
		"providers", a.providers.Status(),
		"max_repo_size_mb", cfg.Repository.MaxSizeMB,
		"max_llm_calls", cfg.Analysis.MaxLLMCalls,
		"nats", a.events != nil,
	)
	return a, nil
}

// completionCache builds the LLM completion cache: ristretto in process,
// tiered over a NATS KV bucket when events are connected and a bucket is set.
func (a *app) completionCache(ctx context.Context) (cache.Cache, error) {
	cfg := a.cfg.Cache
	if cfg.MaxSizeMB <= 0 {
		return cache.Nop{}, nil
	}
	rc, err := ristretto.New(cfg.MaxSizeMB<<20, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("completion cache: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { rc.Close(); return nil })
	if a.events == nil || cfg.Bucket == "" {
		return rc, nil
	}
	kv, err := a.events.KeyValue(ctx, cfg.Bucket, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("completion cache: %w", err)
	}
	slog.Info("completion cache shared", "bucket", cfg.Bucket)
	return tiered.New(rc, natskv.New(kv)), nil
}

// watchReload reloads secrets on SIGHUP until ctx is done.
func (a *app) watchReload(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := a.vault.Reload(); err != nil {
					slog.Error("secrets reload failed", "error", err)
					continue
				}
				slog.Info("secrets reloaded", "providers", a.providers.Status())
			}
		}
	}()
}

// close stops workers and releases resources in reverse order of creation.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.tutorials != nil {
		errs = append(errs, a.tutorials.Shutdown(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}
