package openai

import (
	"encoding/json"

	"github.com/luthien/gateway/pkg/gwerrors"
)

// ParseRequest decodes and minimally validates a chat-completions request
// body. It rejects malformed JSON and a missing model/messages field;
// deeper semantic sanitization (dedupe, orphan pruning) is the
// wireconvert package's job.
func ParseRequest(body []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, gwerrors.NewValidation("malformed JSON body", nil, err)
	}
	if req.Model == "" {
		return nil, gwerrors.NewValidation("missing required field", &gwerrors.ValidationContext{Field: "model"}, nil)
	}
	if len(req.Messages) == 0 {
		return nil, gwerrors.NewValidation("must contain at least one message", &gwerrors.ValidationContext{Field: "messages"}, nil)
	}
	return &req, nil
}

// MarshalResponse serializes a non-streaming Response.
func MarshalResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// MarshalChunk serializes a single streaming chunk's data payload (the
// caller writes it through sse.Writer.WriteJSON with no event name, since
// OpenAI's format never names its SSE events).
func MarshalChunk(chunk *StreamChunk) ([]byte, error) {
	return json.Marshal(chunk)
}

// TextContent returns m's content as a plain string, treating a nil
// Content as empty (the tool-result / tool-calls-only message case).
func (m Message) TextContent() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// StringContent builds a *string for Message.Content, the form every
// non-streaming OpenAI message uses.
func StringContent(s string) *string { return &s }
