// Package stream implements the canonical, wire-format-independent model
// of streamed assistant output: content blocks assembled from deltas,
// the per-transaction stream state, and the assembler that folds one
// wire format's deltas in and re-serializes as either wire format's
// deltas out.
package stream

import (
	"encoding/json"

	"github.com/luthien/gateway/pkg/jsonparser"
)

// BlockKind discriminates the tagged union Block represents. Policies
// switch on Kind rather than using a type assertion hierarchy.
type BlockKind string

const (
	KindText             BlockKind = "text"
	KindToolUse          BlockKind = "tool_use"
	KindThinking         BlockKind = "thinking"
	KindRedactedThinking BlockKind = "redacted_thinking"
)

// Block is one complete or in-progress content block of an assistant
// message. Exactly the fields relevant to Kind are meaningful; Complete
// reports whether the block has received its terminating event.
type Block struct {
	Index int
	Kind  BlockKind

	// Text accumulates KindText content.
	Text string

	// Thinking accumulates KindThinking content; Signature arrives once,
	// at the end, for Anthropic's signed-thinking blocks.
	Thinking  string
	Signature string

	// Data holds a KindRedactedThinking block's opaque payload. Redacted
	// thinking blocks arrive whole and are always reported Complete
	// immediately.
	Data string

	// ToolUseID/ToolName identify a KindToolUse block; Arguments
	// accumulates the raw (possibly partial) JSON argument text as
	// fragments arrive.
	ToolUseID string
	ToolName  string
	Arguments string

	Complete bool
}

// ArgumentsComplete reports whether a KindToolUse block's accumulated
// Arguments currently parse as syntactically valid JSON without repair.
// A tool-use block is considered complete for policy-hook purposes only
// once its arguments need no patching, not merely once the repairing
// parser in pkg/jsonparser can make sense of them — see ArgumentsSnapshot
// for the tolerant read a policy takes mid-stream.
func (b Block) ArgumentsComplete() bool {
	if b.Kind != KindToolUse {
		return false
	}
	if b.Arguments == "" {
		return false
	}
	var v json.RawMessage
	return json.Unmarshal([]byte(b.Arguments), &v) == nil
}

// ArgumentsSnapshot parses Arguments with pkg/jsonparser's repairing
// partial parser rather than raw json.Unmarshal, so a policy that wants
// to look at a tool call's arguments before the block has stopped (to
// decide whether to request an early keepalive, or to pre-screen an
// argument that's already present) gets a best-effort value even while
// Arguments is still a truncated fragment. The returned State tells the
// caller whether the value came through verbatim or was patched.
func (b Block) ArgumentsSnapshot() jsonparser.ParseResult {
	if b.Kind != KindToolUse {
		return jsonparser.ParseResult{State: jsonparser.ParseStateUndefinedInput}
	}
	return jsonparser.ParsePartialJSON(b.Arguments)
}

// ParsedArguments unmarshals the completed Arguments into v. Callers
// should check ArgumentsComplete first; this uses strict json.Unmarshal
// and returns the error rather than attempting repair, since a judge or
// policy acting on a finished tool call needs to know definitively
// whether the arguments parsed, not a best-effort reconstruction.
func (b Block) ParsedArguments(v interface{}) error {
	return json.Unmarshal([]byte(b.Arguments), v)
}
