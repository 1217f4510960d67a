// Package tracing installs the process-global OpenTelemetry TracerProvider
// that internal/platform/logging's otelslog bridge and
// internal/transport/pool's otelgrpc stats handler both read from, built
// directly against go.opentelemetry.io/otel/sdk rather than through any
// vendor-specific setup wrapper (see DESIGN.md).
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Init installs a TracerProvider tagged with serviceName/serviceNamespace
// as the process-global provider and returns a shutdown func to flush and
// release it. Call once at startup; call the returned func during
// graceful shutdown.
func Init(serviceName, serviceNamespace string) (shutdown func(context.Context) error, err error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
		semconv.ServiceNamespace(serviceNamespace),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
