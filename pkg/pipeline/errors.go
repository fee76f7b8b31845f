package pipeline

import (
	"encoding/json"
	"net/http"

	"github.com/luthien/gateway/pkg/gwerrors"
	"github.com/luthien/gateway/pkg/stream"
	"github.com/luthien/gateway/pkg/txn"
	"github.com/luthien/gateway/pkg/wire"
	"github.com/luthien/gateway/pkg/wire/anthropic"
	"github.com/luthien/gateway/pkg/wire/openai"
)

// statusForKind maps a GatewayError's Kind to the HTTP status the client
// sees, per spec.md §7. KindPolicyBlocked never reaches here: the driver
// always converts it into a 200 refusal, never an HTTP error.
func statusForKind(kind gwerrors.Kind) int {
	switch kind {
	case gwerrors.KindPayloadInvalid, gwerrors.KindUpstreamBadRequest:
		return http.StatusBadRequest
	case gwerrors.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case gwerrors.KindUnauthenticated:
		return http.StatusUnauthorized
	case gwerrors.KindUpstreamUnavailable, gwerrors.KindJudgeFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorTypeForKind maps a Kind to the error "type" string both wire
// formats' error envelopes carry.
func errorTypeForKind(kind gwerrors.Kind) string {
	switch kind {
	case gwerrors.KindPayloadInvalid, gwerrors.KindPayloadTooLarge:
		return "invalid_request_error"
	case gwerrors.KindUnauthenticated:
		return "authentication_error"
	case gwerrors.KindUpstreamBadRequest:
		return "invalid_request_error"
	case gwerrors.KindUpstreamUnavailable:
		return "api_error"
	default:
		return "api_error"
	}
}

// writeError renders err as a non-2xx, wire-format-appropriate error
// envelope. Used both before a Transaction exists (ingress failures) and
// after (upstream/hook failures).
func (d *Driver) writeError(w http.ResponseWriter, format wire.Format, err error) {
	ge, ok := gwerrors.As(err)
	if !ok {
		ge = gwerrors.New(gwerrors.KindUpstreamUnavailable, err.Error(), err)
	}

	status := statusForKind(ge.Kind)
	errType := errorTypeForKind(ge.Kind)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	switch format {
	case wire.FormatAnthropic:
		_ = json.NewEncoder(w).Encode(anthropic.NewErrorEnvelope(errType, ge.Message))
	default:
		_ = json.NewEncoder(w).Encode(openai.NewErrorEnvelope(errType, ge.Message))
	}
}

// writeRefusal renders a policy block as a normal 200 response carrying a
// synthetic assistant message, per spec.md: a blocked transaction is never
// an HTTP error, since from the client's perspective the model simply
// declined.
func (d *Driver) writeRefusal(w http.ResponseWriter, format wire.Format, t *txn.Transaction, reason string) {
	message := reason
	if message == "" {
		message = "This request was blocked by gateway policy."
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	switch format {
	case wire.FormatAnthropic:
		stopReason := stream.CanonicalToAnthropicStopReason(stream.FinishStop)
		resp := &anthropic.Response{
			ID:         "msg_" + t.ID,
			Type:       "message",
			Role:       "assistant",
			Model:      t.Model,
			Content:    []anthropic.ContentBlock{anthropic.TextBlock(message)},
			StopReason: &stopReason,
		}
		b, _ := anthropic.MarshalResponse(resp)
		_, _ = w.Write(b)
	default:
		finishReason := stream.CanonicalToOpenAIFinishReason(stream.FinishStop)
		resp := &openai.Response{
			ID:     "chatcmpl-" + t.ID,
			Object: "chat.completion",
			Model:  t.Model,
			Choices: []openai.Choice{{
				Index:        0,
				Message:      openai.Message{Role: "assistant", Content: openai.StringContent(message)},
				FinishReason: &finishReason,
			}},
		}
		b, _ := openai.MarshalResponse(resp)
		_, _ = w.Write(b)
	}
}
