// Package anthropic implements the Anthropic Messages wire format: the
// JSON request/response shapes and the six-event SSE streaming lifecycle.
package anthropic

import "encoding/json"

// Request is the body of a POST /v1/messages call.
type Request struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []Tool          `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
	StopSeqs    []string        `json:"stop_sequences,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Metadata    *Metadata       `json:"metadata,omitempty"`
}

// Metadata is Anthropic's request-level metadata object. UserID is the
// well-known slot the gateway reads as the transaction's session id.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Message is one entry of the "messages" array. Content is decoded and
// encoded only in the list form: a message whose "content" is a plain
// JSON string fails to decode, and the serializer always writes the
// list, even for a message with a single text block.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a tagged union over Anthropic's message content block
// kinds. Exactly one of the payload fields is set, selected by Type.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// redacted_thinking
	Data string `json:"data,omitempty"`
}

// Tool describes a callable tool in Anthropic's schema shape.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Response is the body of a non-streaming Messages response.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// Usage reports token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessageStart is the first streaming lifecycle event's payload.
type MessageStart struct {
	Type    string          `json:"type"`
	Message MessageStartStub `json:"message"`
}

// MessageStartStub is the partial Response carried in message_start:
// every field except ID/Model/Role is a zero value, filled in by later
// events.
type MessageStartStub struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Model   string         `json:"model"`
	Content []ContentBlock `json:"content"`
	Usage   Usage          `json:"usage"`
}

// ContentBlockStart is the content_block_start event payload.
type ContentBlockStart struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

// ContentBlockDelta is the content_block_delta event payload.
type ContentBlockDelta struct {
	Type  string     `json:"type"`
	Index int        `json:"index"`
	Delta BlockDelta `json:"delta"`
}

// BlockDelta is a tagged union over the delta kinds Anthropic streams:
// text_delta, input_json_delta, thinking_delta, signature_delta.
type BlockDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// ContentBlockStop is the content_block_stop event payload.
type ContentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// MessageDelta is the message_delta event payload, carrying the final
// stop_reason and cumulative output usage.
type MessageDelta struct {
	Type  string           `json:"type"`
	Delta MessageDeltaBody `json:"delta"`
	Usage Usage            `json:"usage"`
}

// MessageDeltaBody holds the stop fields of MessageDelta.
type MessageDeltaBody struct {
	StopReason   *string `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// MessageStop is the terminal message_stop event payload, which carries
// only its type.
type MessageStop struct {
	Type string `json:"type"`
}

// ErrorEnvelope is the shape Anthropic clients expect on non-2xx
// responses: {"type": "error", "error": {"type": ..., "message": ...}}.
type ErrorEnvelope struct {
	Type  string    `json:"type"`
	Error ErrorBody `json:"error"`
}

// ErrorBody is the nested error object of ErrorEnvelope.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorEnvelope builds an ErrorEnvelope for the given error type string
// (e.g. "invalid_request_error", "authentication_error") and message.
func NewErrorEnvelope(errType, message string) ErrorEnvelope {
	return ErrorEnvelope{Type: "error", Error: ErrorBody{Type: errType, Message: message}}
}
