package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/CodeTutor/internal/config"
)

func TestInitServesPrometheusMetrics(t *testing.T) {
	ctx := context.Background()
	tel, err := Init(ctx, config.Telemetry{Prometheus: true, SampleRate: 1}, "codetutor-test", "test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tel.Shutdown(ctx) }()

	m, err := NewMetrics()
	if err != nil {
		t.Fatal(err)
	}
	m.TasksStarted.Add(ctx, 1)

	rec := httptest.NewRecorder()
	tel.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "codetutor_tasks_started") {
		t.Fatalf("metric missing from scrape output:\n%s", rec.Body.String())
	}
}

func TestInitWithoutPrometheus(t *testing.T) {
	ctx := context.Background()
	tel, err := Init(ctx, config.Telemetry{SampleRate: 1}, "svc", "v")
	if err != nil {
		t.Fatal(err)
	}
	if tel.MetricsHandler != nil {
		t.Fatal("expected no metrics handler")
	}
	if err := tel.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestSpansHelpers(t *testing.T) {
	ctx, span := StartTaskSpan(context.Background(), "t-1", "octo/hello")
	_, phase := StartPhaseSpan(ctx, "cloning")
	EndSpan(phase, errors.New("boom"))
	EndSpan(span, nil)
}
