package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/baton"
)

// tracerName is the instrumentation scope name for baton tracing.
const tracerName = "github.com/xraph/baton"

// Tracing returns middleware that wraps dispatch in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: baton.message.id, baton.message.name,
// baton.message.kind, baton.attempt. On error, the span status is set to
// codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, env *baton.Envelope, next Handler) error {
		ctx, span := tracer.Start(ctx, "baton.dispatch",
			trace.WithAttributes(
				attribute.String("baton.message.id", env.ID.String()),
				attribute.String("baton.message.name", env.Name),
				attribute.String("baton.message.kind", env.Kind().String()),
				attribute.Int("baton.attempt", env.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
