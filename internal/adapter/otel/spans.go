package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "codetutor"

// StartTaskSpan starts the root span of an analysis task.
func StartTaskSpan(ctx context.Context, taskID, repo string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("repository", repo),
		),
	)
}

// StartPhaseSpan starts a span for one pipeline phase.
func StartPhaseSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "phase."+phase)
}

// StartCompletionSpan starts a span for a fragment's completion request.
func StartCompletionSpan(ctx context.Context, kind, subject string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "llm.complete",
		trace.WithAttributes(
			attribute.String("subject.kind", kind),
			attribute.String("subject", subject),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
