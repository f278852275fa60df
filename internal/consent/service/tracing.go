package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "medblock/consent"

// startSpan resolves the tracer per call so spans follow whichever provider
// is installed globally at the time.
func startSpan(ctx context.Context, op, recordID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "consent."+op, trace.WithAttributes(attribute.String("record.id", recordID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
