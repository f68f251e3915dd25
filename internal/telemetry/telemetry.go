package telemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	// Global tracer for the application
	Tracer trace.Tracer

	// Global meter for custom metrics
	Meter metric.Meter

	// Custom metrics
	PatternsRecorded metric.Int64Counter
	PatternMatches   metric.Int64Counter
	SafetyScans      metric.Int64Counter
	OutputsBlocked   metric.Int64Counter
	ScanLatency      metric.Float64Histogram
	MatchLatency     metric.Float64Histogram
)

// InitTelemetry initializes OpenTelemetry tracing and metrics
func InitTelemetry(ctx context.Context, serviceName, otelEndpoint string) (func(context.Context) error, error) {
	// Create resource with service information
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
			attribute.String("environment", "development"),
		),
	)
	if err != nil {
		return nil, err
	}

	// Create OTLP trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	// Create trace provider
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	// Set global trace provider and propagator
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	Tracer = otel.Tracer(serviceName)
	Meter = otel.Meter(serviceName)

	if err := initMetrics(); err != nil {
		return nil, err
	}

	log.Printf("[Telemetry] Initialized with endpoint %s", otelEndpoint)

	// Return shutdown function
	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return traceProvider.Shutdown(shutdownCtx)
	}, nil
}

// initMetrics creates all custom metrics
func initMetrics() error {
	var err error

	PatternsRecorded, err = Meter.Int64Counter(
		"moat.patterns.recorded",
		metric.WithDescription("Number of failure and success patterns recorded"),
	)
	if err != nil {
		return err
	}

	PatternMatches, err = Meter.Int64Counter(
		"moat.patterns.matches",
		metric.WithDescription("Number of pattern matches detected"),
	)
	if err != nil {
		return err
	}

	SafetyScans, err = Meter.Int64Counter(
		"moat.safety.scans",
		metric.WithDescription("Number of safety scans performed"),
	)
	if err != nil {
		return err
	}

	OutputsBlocked, err = Meter.Int64Counter(
		"moat.safety.blocked",
		metric.WithDescription("Number of outputs blocked by safety checks"),
	)
	if err != nil {
		return err
	}

	ScanLatency, err = Meter.Float64Histogram(
		"moat.safety.scan_latency",
		metric.WithDescription("Safety scan latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	MatchLatency, err = Meter.Float64Histogram(
		"moat.patterns.match_latency",
		metric.WithDescription("Pattern matching latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}
