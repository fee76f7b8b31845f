// Package telemetry wraps OpenTelemetry span creation for the gateway's
// per-transaction span tree: one root span per transaction, one child
// span per pipeline phase (ingress, request hook, upstream call together
// with the response hook, egress).
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Settings configures whether and how the gateway traces a transaction.
// Tracing is disabled by default and must be explicitly enabled — a
// deployment with no collector configured shouldn't pay span-creation
// overhead on every request.
type Settings struct {
	// IsEnabled controls whether tracing is active. Defaults to false.
	IsEnabled bool

	// RecordRequestBody controls whether the inbound request body is
	// recorded as a span attribute. Request bodies can contain arbitrary
	// client content (including PII), so this defaults to off even when
	// tracing is otherwise enabled.
	RecordRequestBody bool

	// RecordResponseBody controls whether the upstream response body is
	// recorded as a span attribute, for the same reason.
	RecordResponseBody bool

	// PolicyClassID groups spans by the policy class bound at ingress,
	// so traces from different deployments or policy configurations can
	// be filtered in a backend without parsing span names.
	PolicyClassID string

	// Metadata contains additional key-value pairs attached to every span
	// this Settings produces (deployment name, environment, etc).
	Metadata map[string]attribute.Value

	// Tracer is a custom OpenTelemetry tracer. If nil, the global tracer
	// is used.
	Tracer trace.Tracer
}

// DefaultSettings returns Settings with tracing disabled and body
// recording off.
func DefaultSettings() *Settings {
	return &Settings{
		IsEnabled: false,
		Metadata:  make(map[string]attribute.Value),
	}
}

// WithEnabled returns a copy of Settings with IsEnabled set to the given value.
func (s *Settings) WithEnabled(enabled bool) *Settings {
	copy := *s
	copy.IsEnabled = enabled
	return &copy
}

// WithRecordRequestBody returns a copy of Settings with RecordRequestBody set to the given value.
func (s *Settings) WithRecordRequestBody(record bool) *Settings {
	copy := *s
	copy.RecordRequestBody = record
	return &copy
}

// WithRecordResponseBody returns a copy of Settings with RecordResponseBody set to the given value.
func (s *Settings) WithRecordResponseBody(record bool) *Settings {
	copy := *s
	copy.RecordResponseBody = record
	return &copy
}

// WithPolicyClassID returns a copy of Settings with PolicyClassID set to the given value.
func (s *Settings) WithPolicyClassID(id string) *Settings {
	copy := *s
	copy.PolicyClassID = id
	return &copy
}

// WithMetadata returns a copy of Settings with the given metadata merged in.
func (s *Settings) WithMetadata(metadata map[string]attribute.Value) *Settings {
	copy := *s
	copy.Metadata = make(map[string]attribute.Value)
	for k, v := range s.Metadata {
		copy.Metadata[k] = v
	}
	for k, v := range metadata {
		copy.Metadata[k] = v
	}
	return &copy
}

// WithTracer returns a copy of Settings with Tracer set to the given value.
func (s *Settings) WithTracer(tracer trace.Tracer) *Settings {
	copy := *s
	copy.Tracer = tracer
	return &copy
}
