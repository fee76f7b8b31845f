// Package openai implements the OpenAI chat-completions wire format: the
// JSON request/response shapes a client speaking that protocol sends and
// expects, plus the SSE streaming chunk shape.
package openai

import "encoding/json"

// Request is the body of a POST /v1/chat/completions call.
type Request struct {
	Model       string          `json:"model"`
	Messages    []Message       `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Tools       []Tool          `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	User        string          `json:"user,omitempty"`
}

// Message is one entry of the chat-completions "messages" array. A given
// message carries either a plain string Content or, for assistant
// messages with tool calls, ToolCalls; tool-result messages carry
// ToolCallID and role "tool".
type Message struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Tool describes a callable function advertised to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function schema nested under Tool.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is one function call the assistant requested.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the function name and accumulated/complete
// JSON-encoded arguments of a ToolCall.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Response is the body of a non-streaming chat-completions response.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion candidate. The gateway only ever produces one.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason *string `json:"finish_reason"`
}

// Usage reports token accounting, passed through from the upstream
// response unmodified.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is a single "chat.completion.chunk" SSE data payload.
type StreamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is the per-choice delta of a StreamChunk.
type ChunkChoice struct {
	Index        int         `json:"index"`
	Delta        ChunkDelta  `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// ChunkDelta carries the incremental fields of a streamed choice. Only
// the fields actually changing in this chunk are populated.
type ChunkDelta struct {
	Role      string            `json:"role,omitempty"`
	Content   *string           `json:"content,omitempty"`
	ToolCalls []ToolCallDelta   `json:"tool_calls,omitempty"`
}

// ToolCallDelta is the streamed, index-addressed, partial form of a
// ToolCall: name and id arrive once at the start, Arguments arrives as
// successive fragments to be concatenated.
type ToolCallDelta struct {
	Index    int                   `json:"index"`
	ID       string                `json:"id,omitempty"`
	Type     string                `json:"type,omitempty"`
	Function *ToolCallFunctionDelta `json:"function,omitempty"`
}

// ToolCallFunctionDelta is the function half of a ToolCallDelta.
type ToolCallFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ErrorEnvelope is the shape OpenAI clients expect on non-2xx responses:
// {"error": {"message": ..., "type": ..., "code": ...}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the nested error object of ErrorEnvelope.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// NewErrorEnvelope builds an ErrorEnvelope for the given client-safe
// message and error type string (e.g. "invalid_request_error",
// "authentication_error").
func NewErrorEnvelope(errType, message string) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{Message: message, Type: errType}}
}
