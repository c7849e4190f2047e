package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	initOnce sync.Once
	initErr  error

	tpMu sync.RWMutex
	tp   *sdktrace.TracerProvider
)

// Init installs the process-wide tracer provider. The bridge daemon calls it
// once at startup; store operations then record a span per save, list, load
// and delete. No exporter is configured, so spans exist to feed trace ids
// into log lines rather than to ship anywhere. Safe to call more than once.
func Init(serviceName string) error {
	initOnce.Do(func() {
		res, err := resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(serviceName),
			),
		)
		if err != nil {
			initErr = err
			return
		}

		provider := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithResource(res),
		)

		tpMu.Lock()
		tp = provider
		tpMu.Unlock()

		otel.SetTracerProvider(provider)
	})
	return initErr
}

// Shutdown flushes and stops the tracer provider installed by Init. A no-op
// when tracing was never initialized.
func Shutdown(ctx context.Context) error {
	tpMu.RLock()
	provider := tp
	tpMu.RUnlock()
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// StartSpan starts a span and mirrors its trace id into the context so
// loggers built with LoggerFromContext carry it.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}
