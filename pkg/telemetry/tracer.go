package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName identifies the gateway's tracer in a multi-service trace.
	TracerName = "luthien-gateway"
)

// GetTracer returns the tracer a Driver should use, based on settings.
// Disabled or nil settings get a no-op tracer, so a deployment without a
// collector configured pays no span-creation cost. A custom tracer in
// settings wins over the global one, for tests that want to assert on
// emitted spans without installing a global provider.
func GetTracer(settings *Settings) trace.Tracer {
	if settings == nil || !settings.IsEnabled {
		return noop.NewTracerProvider().Tracer(TracerName)
	}

	if settings.Tracer != nil {
		return settings.Tracer
	}

	return otel.Tracer(TracerName)
}
