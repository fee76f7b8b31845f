package anthropic

import (
	"encoding/json"

	"github.com/luthien/gateway/pkg/gwerrors"
)

// ParseRequest decodes and minimally validates a Messages request body.
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
	if req.MaxTokens <= 0 {
		return nil, gwerrors.NewValidation("must be a positive integer", &gwerrors.ValidationContext{Field: "max_tokens"}, nil)
	}
	return &req, nil
}

// MarshalResponse serializes a non-streaming Response.
func MarshalResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: "tool_use", ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool_result content block.
func ToolResultBlock(toolUseID string, content json.RawMessage, isError bool) ContentBlock {
	return ContentBlock{Type: "tool_result", ToolUseID: toolUseID, Content: content, IsError: isError}
}
