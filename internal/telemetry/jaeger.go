package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

/*
Spans flow: app -> OpenTelemetry SDK -> Jaeger exporter -> collector.

Without InitJaeger the global provider stays the otel no-op, so the spans
started by middleware.StartSpan cost next to nothing.
*/

// InitJaeger installs a global tracer provider that exports to the Jaeger
// collector at endpoint. The returned function flushes and stops it.
func InitJaeger(serviceName, version, endpoint string, logger *zap.Logger) (func(context.Context) error, error) {
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Paint traffic is high-volume; keep a tenth of root traces and follow
	// the parent decision for child spans.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
	)
	otel.SetTracerProvider(tp)

	logger.Info("jaeger tracing initialized", zap.String("endpoint", endpoint))

	return tp.Shutdown, nil
}
