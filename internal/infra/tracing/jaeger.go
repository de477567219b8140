package tracing

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

const serviceNamespace = "squats-analyzer"

// ErrDisabled is returned when no collector endpoint is configured.
var ErrDisabled = errors.New("tracing disabled")

// InitTracer installs a global tracer provider exporting over OTLP/HTTP.
// component distinguishes the worker, the HTTP server and the CLI.
func InitTracer(ctx context.Context, jaegerEndpoint, component string) (*sdktrace.TracerProvider, error) {
	if jaegerEndpoint == "" {
		return nil, ErrDisabled
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(jaegerEndpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceNamespace+"-"+component),
			semconv.ServiceNamespaceKey.String(serviceNamespace),
		)),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// Start initializes tracing for a service binary. Tracing problems are never
// fatal: a missing endpoint is logged at info, a broken one at warn. The
// returned func flushes and stops the provider and is always safe to call.
func Start(ctx context.Context, jaegerEndpoint, component string, logger *zap.Logger) func(context.Context) error {
	tp, err := InitTracer(ctx, jaegerEndpoint, component)
	switch {
	case errors.Is(err, ErrDisabled):
		logger.Info("tracing disabled")
	case err != nil:
		logger.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	default:
		return tp.Shutdown
	}
	return func(context.Context) error { return nil }
}
