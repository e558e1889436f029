package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const TraceparentHeader = "traceparent"

// Inject writes the span context of ctx into headers, allocating the map if
// needed. Headers travel with queued jobs and outbox rows.
func Inject(ctx context.Context, headers map[string]string) map[string]string {
	if headers == nil {
		headers = map[string]string{}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
	return headers
}

func Extract(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// Traceparent returns the W3C traceparent for ctx, or "" when ctx carries no span.
func Traceparent(ctx context.Context) string {
	return Inject(ctx, nil)[TraceparentHeader]
}
