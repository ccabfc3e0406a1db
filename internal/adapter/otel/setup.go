// Package otel wires OpenTelemetry tracing and metrics for CodeTutor.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"

	"github.com/Strob0t/CodeTutor/internal/config"
)

// ShutdownFunc flushes and stops the providers.
type ShutdownFunc func(ctx context.Context) error

// Telemetry is the result of Init.
type Telemetry struct {
	// MetricsHandler serves the Prometheus scrape endpoint, or is nil when
	// Prometheus export is disabled.
	MetricsHandler http.Handler
	Shutdown       ShutdownFunc
}

// Init installs global tracer and meter providers. Without an OTLP endpoint
// spans are sampled but not exported; metrics are still served to
// Prometheus when enabled.
func Init(ctx context.Context, cfg config.Telemetry, serviceName, version string) (*Telemetry, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	var shutdowns []ShutdownFunc
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	out := &Telemetry{}

	if cfg.OTLPEndpoint != "" {
		dial := grpc.WithUserAgent(serviceName + "/" + version)

		topts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithDialOption(dial)}
		mopts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint), otlpmetricgrpc.WithDialOption(dial)}
		if cfg.Insecure {
			topts = append(topts, otlptracegrpc.WithInsecure())
			mopts = append(mopts, otlpmetricgrpc.WithInsecure())
		}

		traceExp, err := otlptracegrpc.New(ctx, topts...)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExp))

		metricExp, err := otlpmetricgrpc.New(ctx, mopts...)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("create metric exporter: %w", err), traceExp.Shutdown(ctx))
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	}

	if cfg.Prometheus {
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(exporter))
		out.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	tp := sdktrace.NewTracerProvider(traceOpts...)
	mp := sdkmetric.NewMeterProvider(metricOpts...)
	shutdowns = append(shutdowns, tp.Shutdown, mp.Shutdown)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	out.Shutdown = shutdown
	return out, nil
}
