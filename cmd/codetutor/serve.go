package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	cthttp "github.com/Strob0t/CodeTutor/internal/adapter/http"
	cfotel "github.com/Strob0t/CodeTutor/internal/adapter/otel"
	"github.com/Strob0t/CodeTutor/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{live: true})
	if err != nil {
		return err
	}
	a.watchReload(ctx)
	a.janitor.Start(ctx, cfg.Tasks.JanitorInterval)

	limiter := middleware.NewRateLimiter(float64(cfg.Rate.AnalyzePerHour), cfg.Rate.Burst)
	limiter.StartCleanup(ctx, 10*time.Minute, 2*time.Hour)

	handlers := &cthttp.Handlers{
		Tutorials: a.tutorials,
		Providers: a.providers,
		Breaker:   a.breaker,
		Hub:       a.hub,
		Version:   version,
	}
	if a.events != nil {
		handlers.Events = a.events
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(cthttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cthttp.SecurityHeaders)
	r.Use(cthttp.Logger)
	r.Use(chimw.Recoverer)
	cthttp.MountRoutes(r, handlers, limiter, a.telemetry.MetricsHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           cfotel.HTTPMiddleware("codetutor")(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.HandlerTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			_ = a.close(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop taking requests first, then fail running tasks so pollers and
	// websocket clients see a terminal state, then release resources.
	errs := []error{srv.Shutdown(shutdownCtx)}
	errs = append(errs, a.close(shutdownCtx))
	return errors.Join(errs...)
}
