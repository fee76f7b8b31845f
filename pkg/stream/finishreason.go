package stream

// Canonical finish reasons, in the gateway's own vocabulary. Both wire
// formats' stop signals map onto this set; outbound serialization maps
// back to whichever wire format the client is speaking.
const (
	FinishStop          = "stop"
	FinishLength         = "length"
	FinishToolCalls      = "tool_calls"
	FinishContentFilter  = "content_filter"
)

// MapOpenAIFinishReason converts an OpenAI finish_reason string to the
// canonical vocabulary. Unrecognized values pass through unchanged so a
// future provider-added reason isn't silently dropped.
func MapOpenAIFinishReason(reason string) string {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "content_filter":
		return FinishContentFilter
	default:
		return reason
	}
}

// MapAnthropicStopReason converts an Anthropic stop_reason string to the
// canonical vocabulary.
func MapAnthropicStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "tool_use":
		return FinishToolCalls
	default:
		return reason
	}
}

// CanonicalToOpenAIFinishReason converts back to OpenAI's vocabulary for
// outbound serialization.
func CanonicalToOpenAIFinishReason(reason string) string {
	switch reason {
	case FinishToolCalls:
		return "tool_calls"
	default:
		return reason
	}
}

// CanonicalToAnthropicStopReason converts back to Anthropic's vocabulary
// for outbound serialization. Anthropic has no stop_reason equivalent to
// OpenAI's content_filter; it is mapped to "end_turn" since the
// alternative (inventing a non-standard stop_reason value) would break
// Anthropic SDK clients that switch on a closed set of known reasons.
func CanonicalToAnthropicStopReason(reason string) string {
	switch reason {
	case FinishStop, FinishContentFilter:
		return "end_turn"
	case FinishLength:
		return "max_tokens"
	case FinishToolCalls:
		return "tool_use"
	default:
		return reason
	}
}
