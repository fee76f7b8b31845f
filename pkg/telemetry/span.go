package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOptions configures one pipeline-phase span.
type SpanOptions struct {
	// Name is the phase name, e.g. "pipeline.ingress" or "pipeline.upstream".
	Name string

	// Attributes are key-value pairs attached to the span at creation.
	Attributes []attribute.KeyValue

	// EndWhenDone controls whether the span is ended automatically when
	// fn returns without error. A phase that hands its span to a nested
	// RecordSpan call, or that needs to end the span itself after doing
	// more work outside fn, sets this false.
	EndWhenDone bool
}

// RecordSpan runs fn inside a child span named opts.Name. The span ends
// automatically once fn returns, unless EndWhenDone is false; an error
// from fn is recorded on the span and the span is ended regardless of
// EndWhenDone, since a failed phase has nothing left to do with its span.
func RecordSpan[T any](
	ctx context.Context,
	tracer trace.Tracer,
	opts SpanOptions,
	fn func(context.Context, trace.Span) (T, error),
) (T, error) {
	ctx, span := tracer.Start(ctx, opts.Name,
		trace.WithAttributes(opts.Attributes...),
	)

	result, err := fn(ctx, span)

	if err != nil {
		RecordErrorOnSpan(span, err)
		span.End()
		var zero T
		return zero, err
	}

	if opts.EndWhenDone {
		span.End()
	}

	return result, nil
}

// RecordErrorOnSpan records an error on a span and sets the span status to error.
func RecordErrorOnSpan(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TransactionAttributes returns the attributes the gateway root span
// carries for every transaction: format, model, policy class, and
// anything in settings.Metadata. upstreamFormat is the wire format the
// request is forwarded in, which can differ from the client's own format
// when the upstream is a different provider than the client's SDK.
func TransactionAttributes(
	upstreamFormat string,
	modelID string,
	settings *Settings,
) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("gateway.upstream_format", upstreamFormat),
		attribute.String("gateway.model", modelID),
	}

	if settings != nil {
		if settings.PolicyClassID != "" {
			attrs = append(attrs, attribute.String("gateway.policy_class", settings.PolicyClassID))
		}

		for key, value := range settings.Metadata {
			attrs = append(attrs, attribute.KeyValue{
				Key:   attribute.Key("gateway.telemetry.metadata." + key),
				Value: value,
			})
		}
	}

	return attrs
}

// AddDetailAttributes flattens a policy/upstream detail map (the same
// shape as an observability.Event's Detail) onto a span under prefix, so
// a trace backend shows the same rule name, probability, or error string
// the corresponding observability event carries.
func AddDetailAttributes(span trace.Span, prefix string, settings map[string]interface{}) {
	for key, value := range settings {
		attrKey := prefix + "." + key
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		}
	}
}
