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
LEARNING: TRACING THE RELAY

Each inbound socket event becomes a span (see middleware.StartSpan), so a slow
or noisy room shows up in Jaeger as a burst of Relay.* spans carrying the room
and connection ids.

  Relay → OpenTelemetry SDK → Jaeger Exporter → Jaeger Collector → Jaeger UI

Without an endpoint the global no-op provider stays in place and spans cost
next to nothing.
*/

// ShutdownFunc flushes and stops the tracer provider
type ShutdownFunc func(context.Context) error

// InitJaeger initializes Jaeger tracing exporter.
// Returns a cleanup function that should be called on shutdown.
func InitJaeger(serviceName, jaegerEndpoint string, log *zap.Logger) (ShutdownFunc, error) {
	if jaegerEndpoint == "" {
		log.Info("tracing disabled (no JAEGER_ENDPOINT)")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.2))),
	)

	otel.SetTracerProvider(tp)

	log.Info("✓ Jaeger tracing initialized", zap.String("endpoint", jaegerEndpoint))

	return tp.Shutdown, nil
}
