// Package gwerrors defines the gateway's closed set of error kinds and the
// typed error values the pipeline, policy runtime, and upstream client use
// to signal them. Every error that should influence the client-visible
// outcome of a transaction is, or wraps, a *GatewayError.
package gwerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the gateway's fixed error categories. The pipeline driver
// switches on Kind to choose an HTTP status and response envelope; no
// other part of the gateway invents new kinds.
type Kind string

const (
	// KindPayloadInvalid means the inbound body could not be parsed or is
	// missing a required field. Maps to HTTP 400.
	KindPayloadInvalid Kind = "payload_invalid"

	// KindPayloadTooLarge means the inbound body exceeded the configured
	// byte limit. Maps to HTTP 413.
	KindPayloadTooLarge Kind = "payload_too_large"

	// KindUnauthenticated means the upstream credential was rejected.
	// Maps to HTTP 401 and triggers credential cache invalidation for the
	// key that produced it.
	KindUnauthenticated Kind = "unauthenticated"

	// KindPolicyBlocked means a policy refused the request or response.
	// This never surfaces as an HTTP error status: the driver converts it
	// into a normal 200 response carrying a synthetic refusal message.
	KindPolicyBlocked Kind = "policy_blocked"

	// KindUpstreamUnavailable covers network failures and 5xx responses
	// from the upstream provider. Maps to HTTP 502.
	KindUpstreamUnavailable Kind = "upstream_unavailable"

	// KindUpstreamBadRequest covers non-auth 4xx responses from the
	// upstream. The upstream client attempts one sanitizer-fix retry
	// before surfacing this. Maps to HTTP 400.
	KindUpstreamBadRequest Kind = "upstream_bad_request"

	// KindJudgeFailure means a judge-policy LLM call errored or returned
	// output that could not be parsed. Callers resolve this fail-secure
	// (treat as a violation) rather than letting it escape as a distinct
	// client-visible error.
	KindJudgeFailure Kind = "judge_failure"

	// KindStreamMidError means a failure occurred after SSE headers were
	// already written, so it cannot escalate to an HTTP status. The
	// driver emits a format-appropriate error event and closes the
	// stream.
	KindStreamMidError Kind = "stream_mid_error"

	// KindEventStoreFailure covers failures writing to the observability
	// event store. It is logged only; it never affects the client path.
	KindEventStoreFailure Kind = "event_store_failure"
)

// GatewayError is the error type carried through the pipeline.
type GatewayError struct {
	Kind Kind

	// Message is a human-readable, client-safe description.
	Message string

	// Model names the upstream model involved, when known.
	Model string

	// StatusCode is the upstream HTTP status code, when this error
	// originated from an upstream response.
	StatusCode int

	Cause error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// IsGatewayError reports whether err is, or wraps, a *GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// New creates a GatewayError of the given kind.
func New(kind Kind, message string, cause error) *GatewayError {
	return &GatewayError{Kind: kind, Message: message, Cause: cause}
}

// Newf creates a GatewayError with a formatted message.
func Newf(kind Kind, cause error, format string, args ...interface{}) *GatewayError {
	return &GatewayError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NewUpstream creates a GatewayError describing a failed upstream HTTP
// call, recording the status code and model for the driver's logging and
// error-envelope construction.
func NewUpstream(kind Kind, model string, statusCode int, message string, cause error) *GatewayError {
	return &GatewayError{Kind: kind, Message: message, Model: model, StatusCode: statusCode, Cause: cause}
}

// As extracts a *GatewayError from err, if present.
func As(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is a GatewayError, or
// KindUpstreamUnavailable otherwise. An unclassified error reaching the
// driver is conservatively treated as an outage rather than assumed to be
// the client's fault.
func KindOf(err error) Kind {
	if ge, ok := As(err); ok {
		return ge.Kind
	}
	return KindUpstreamUnavailable
}

// ValidationContext locates a PayloadInvalid failure within an inbound
// wire message for error-message construction.
type ValidationContext struct {
	// Field path in dot notation, e.g. "messages[2].content[0].text".
	Field string

	// EntityName names the kind of thing that failed, e.g. "tool_call".
	EntityName string

	// EntityID identifies the specific entity, e.g. a tool_call id.
	EntityID string
}

// ValidationError describes a parse/shape failure in an inbound wire
// message. NewValidation wraps it as a GatewayError tagged
// KindPayloadInvalid.
type ValidationError struct {
	Context *ValidationContext
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Context == nil {
		return e.Message
	}
	prefix := "invalid request"
	if e.Context.EntityName != "" {
		prefix += fmt.Sprintf(" (%s", e.Context.EntityName)
		if e.Context.EntityID != "" {
			prefix += fmt.Sprintf(" id=%q", e.Context.EntityID)
		}
		prefix += ")"
	}
	if e.Context.Field != "" {
		prefix += fmt.Sprintf(" field %s", e.Context.Field)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// NewValidation builds a GatewayError tagged KindPayloadInvalid from a
// validation failure and optional field context.
func NewValidation(message string, ctx *ValidationContext, cause error) *GatewayError {
	ve := &ValidationError{Message: message, Context: ctx, Cause: cause}
	return &GatewayError{Kind: KindPayloadInvalid, Message: ve.Error(), Cause: ve}
}

// RefusalBody renders a KindPolicyBlocked error's message as the text a
// policy-blocked transaction returns to the client in place of upstream
// content.
func RefusalBody(err *GatewayError) string {
	if err.Message != "" {
		return err.Message
	}
	return "This request was blocked by gateway policy."
}
