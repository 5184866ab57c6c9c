package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the per-request span tracer used by the HTTP proxy pipeline.
// One span per proxied request, attributes set to bind/path/status code, per
// the local/dev default exporter (an OTLP-endpoint-driven real exporter is
// an external collaborator this package does not implement).
var Tracer = otel.Tracer("sentinelgate")

// Providers bundles the trace and metric providers so callers have one
// thing to hold onto and shut down at process exit.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

// NewProviders builds the stdout-backed trace/metric providers that serve
// as this gateway's default local/dev exporter, and registers them as the
// global otel providers so otel.Tracer/otel.Meter calls anywhere in the
// process reach them without threading a Providers value through.
func NewProviders(ctx context.Context, serviceName string) (*Providers, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: new trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: new metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return &Providers{TracerProvider: tp, MeterProvider: mp}, nil
}

// Shutdown flushes and stops both providers. Call once at process exit.
func (p *Providers) Shutdown(ctx context.Context) error {
	if err := p.TracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
	}
	if err := p.MeterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
	}
	return nil
}

// StartRequestSpan starts the one-span-per-proxied-request span used by the
// HTTP proxy pipeline, pre-populated with the bind attribute known before
// routing happens. The caller ends the span and, once the response is
// written, records the outcome with SetSpanOutcome.
func StartRequestSpan(ctx context.Context, bindKey string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "httpproxy.Handle",
		trace.WithAttributes(
			attribute.String("sentinelgate.bind", bindKey),
		),
	)
}

// SetSpanOutcome records the request path and the final status code on an
// in-flight request span.
func SetSpanOutcome(span trace.Span, path string, statusCode int) {
	span.SetAttributes(
		attribute.String("sentinelgate.path", path),
		attribute.Int("sentinelgate.status_code", statusCode),
	)
}
