package stream

// EventKind discriminates the canonical streaming events the assembler
// emits as it ingests wire-format-specific deltas. Policies react to
// these, never to the wire format directly.
type EventKind string

const (
	// EventBlockStart fires when a new content block begins.
	EventBlockStart EventKind = "block_start"

	// EventBlockDelta fires for each incremental fragment of an
	// in-progress block.
	EventBlockDelta EventKind = "block_delta"

	// EventBlockStop fires when a block's terminating wire event
	// arrives; Block.Complete is true on the State's block by the time
	// this fires.
	EventBlockStop EventKind = "block_stop"

	// EventMessageStop fires once, when the upstream signals the
	// message is finished (OpenAI's non-nil finish_reason, Anthropic's
	// message_delta carrying a stop_reason).
	EventMessageStop EventKind = "message_stop"
)

// Event is one canonical streaming event. Only the fields relevant to
// Kind are meaningful.
type Event struct {
	Kind  EventKind
	Index int

	// TextDelta, ArgsDelta, ThinkingDelta, SignatureDelta carry the
	// incremental fragment for an EventBlockDelta, matching the Block
	// field it will be appended to.
	TextDelta      string
	ArgsDelta      string
	ThinkingDelta  string
	SignatureDelta string

	// FinishReason is set on EventMessageStop, in the gateway's
	// canonical vocabulary (see finishreason.go in this package).
	FinishReason string
}
