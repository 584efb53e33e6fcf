package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of this module.
const TracerName = "github.com/stelzch/allreduce"

// ShutdownFunc flushes and stops the TracerProvider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(_ context.Context) error {
	return nil
}

var enabled bool

// Enabled reports whether Init activated tracing.
func Enabled() bool {
	return enabled
}

// Init initializes OpenTelemetry from the environment and installs the
// global TracerProvider. When OTEL_ENABLED is not "true" the default no-op
// provider stays in place.
func Init(ctx context.Context) (ShutdownFunc, error) {
	cfg := LoadFromEnv()
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return noopShutdown, err
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio < 1.0 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	enabled = true
	return func(ctx context.Context) error {
		enabled = false
		return tp.Shutdown(ctx)
	}, nil
}

// Tracer returns the module tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartRun opens the span of one reduction run.
func StartRun(ctx context.Context, strategy string, n uint64, ranks int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "reduction.run", trace.WithAttributes(
		attribute.String("reduction.strategy", strategy),
		attribute.Int64("reduction.summands", int64(n)),
		attribute.Int("reduction.ranks", ranks),
	))
}
