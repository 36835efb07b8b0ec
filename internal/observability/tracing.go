package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures the tracer provider. This runtime has no
// network boundary of its own to export spans across (no OTLP
// collector is wired by default); spans exist so a caller embedding
// this runtime can register its own processor/exporter on the
// returned provider.
type TraceConfig struct {
	ServiceName string
}

// NewTracer builds a TracerProvider, installs it as the global
// provider, and returns a tracer plus a shutdown func.
func NewTracer(cfg TraceConfig) (trace.Tracer, func(context.Context) error) {
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)

	name := cfg.ServiceName
	if name == "" {
		name = "llama-agent"
	}
	return provider.Tracer(name), provider.Shutdown
}

// StartSpan is a small convenience wrapper so callers don't need to
// hold onto the *Tracer directly.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
