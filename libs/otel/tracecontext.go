package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// w3c is used for persisted trace context regardless of the global
// propagator, so outbox rows always hold traceparent/tracestate.
var w3c = propagation.TraceContext{}

// TraceContextStrings renders the span in ctx for storage next to an
// outbox row. Both values are empty when ctx carries no span.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	carrier := propagation.MapCarrier{}
	w3c.Inject(ctx, carrier)
	return carrier.Get("traceparent"), carrier.Get("tracestate")
}

// ContextWithTraceContext restores a stored span context as the remote
// parent of ctx.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	return w3c.Extract(ctx, propagation.MapCarrier{
		"traceparent": traceparent,
		"tracestate":  tracestate,
	})
}

func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
