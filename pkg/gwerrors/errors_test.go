package gwerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatewayError_Error(t *testing.T) {
	t.Parallel()

	err := &GatewayError{
		Kind:    KindUpstreamBadRequest,
		Message: "context length exceeded",
	}

	assert.Contains(t, err.Error(), "upstream_bad_request")
	assert.Contains(t, err.Error(), "context length exceeded")
}

func TestGatewayError_ErrorWithCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	err := &GatewayError{
		Kind:    KindUpstreamUnavailable,
		Message: "could not reach upstream",
		Cause:   cause,
	}

	assert.Contains(t, err.Error(), "connection refused")
}

func TestGatewayError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := &GatewayError{Kind: KindJudgeFailure, Cause: cause}

	assert.ErrorIs(t, err, cause)
}

func TestIsGatewayError(t *testing.T) {
	t.Parallel()

	ge := &GatewayError{Kind: KindPolicyBlocked}
	plain := errors.New("regular error")

	assert.True(t, IsGatewayError(ge))
	assert.False(t, IsGatewayError(plain))
}

func TestNew(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")
	err := New(KindPayloadTooLarge, "body exceeds limit", cause)

	assert.Equal(t, KindPayloadTooLarge, err.Kind)
	assert.Equal(t, "body exceeds limit", err.Message)
	assert.Equal(t, cause, err.Cause)
}

func TestNewf(t *testing.T) {
	t.Parallel()

	err := Newf(KindPayloadInvalid, nil, "missing field %q", "model")
	assert.Equal(t, `missing field "model"`, err.Message)
}

func TestNewUpstream(t *testing.T) {
	t.Parallel()

	err := NewUpstream(KindUpstreamBadRequest, "gpt-4o", 400, "bad request", nil)

	assert.Equal(t, "gpt-4o", err.Model)
	assert.Equal(t, 400, err.StatusCode)
}

func TestAs(t *testing.T) {
	t.Parallel()

	ge := &GatewayError{Kind: KindStreamMidError}
	wrapped := errors.Join(errors.New("context"), ge)

	got, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindStreamMidError, got.Kind)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindPolicyBlocked, KindOf(&GatewayError{Kind: KindPolicyBlocked}))
	assert.Equal(t, KindUpstreamUnavailable, KindOf(errors.New("unclassified")))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	err := NewValidation("must be a string", &ValidationContext{
		Field:      "messages[0].content",
		EntityName: "message",
		EntityID:   "msg_1",
	}, nil)

	assert.Equal(t, KindPayloadInvalid, err.Kind)
	assert.Contains(t, err.Message, "messages[0].content")
	assert.Contains(t, err.Message, "msg_1")
}

func TestValidationError_ErrorWithoutContext(t *testing.T) {
	t.Parallel()

	ve := &ValidationError{Message: "malformed json"}
	assert.Equal(t, "malformed json", ve.Error())
}

func TestRefusalBody(t *testing.T) {
	t.Parallel()

	withMessage := &GatewayError{Kind: KindPolicyBlocked, Message: "blocked: contains secret"}
	assert.Equal(t, "blocked: contains secret", RefusalBody(withMessage))

	withoutMessage := &GatewayError{Kind: KindPolicyBlocked}
	assert.Equal(t, "This request was blocked by gateway policy.", RefusalBody(withoutMessage))
}
