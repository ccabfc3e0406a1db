package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "codetutor"

// Metrics holds all CodeTutor metric instruments.
type Metrics struct {
	TasksStarted      metric.Int64Counter
	TasksCompleted    metric.Int64Counter
	TasksFailed       metric.Int64Counter
	LLMCalls          metric.Int64Counter
	FragmentsDegraded metric.Int64Counter
	TaskDuration      metric.Float64Histogram
	LLMLatency        metric.Float64Histogram
	FilesIncluded     metric.Int64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.TasksStarted, err = meter.Int64Counter("codetutor.tasks.started",
		metric.WithDescription("Analysis tasks started")); err != nil {
		return nil, err
	}
	if m.TasksCompleted, err = meter.Int64Counter("codetutor.tasks.completed",
		metric.WithDescription("Analysis tasks completed")); err != nil {
		return nil, err
	}
	if m.TasksFailed, err = meter.Int64Counter("codetutor.tasks.failed",
		metric.WithDescription("Analysis tasks failed, by error kind")); err != nil {
		return nil, err
	}
	if m.LLMCalls, err = meter.Int64Counter("codetutor.llm.calls",
		metric.WithDescription("Completion requests, by outcome")); err != nil {
		return nil, err
	}
	if m.FragmentsDegraded, err = meter.Int64Counter("codetutor.fragments.degraded",
		metric.WithDescription("Sections produced as fallback or placeholder")); err != nil {
		return nil, err
	}
	if m.TaskDuration, err = meter.Float64Histogram("codetutor.task.duration_seconds",
		metric.WithDescription("End-to-end task duration"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.LLMLatency, err = meter.Float64Histogram("codetutor.llm.latency_seconds",
		metric.WithDescription("Latency of successful completion requests"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.FilesIncluded, err = meter.Int64Histogram("codetutor.walk.files_included",
		metric.WithDescription("Files included per walk")); err != nil {
		return nil, err
	}
	return m, nil
}
