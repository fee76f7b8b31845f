// Package wireconvert converts requests and responses between the OpenAI
// chat-completions and Anthropic Messages wire formats, and implements the
// pre-flight sanitizers and retry-with-fix pattern matching the upstream
// client uses to self-heal bad requests.
//
// Conversion between OpenAI's flat tool_calls on an assistant message and
// Anthropic's tool_use content blocks (plus a later message's tool_result
// blocks) requires correlating by tool-call id across messages that are not
// adjacent in the list. This package never treats the conversation as a
// graph: it uses a two-pass strategy — a first pass over the message list
// builds an id-to-origin table, a second pass rewrites using that table.
package wireconvert

import (
	"encoding/json"
	"strings"

	"github.com/luthien/gateway/pkg/stream"
	"github.com/luthien/gateway/pkg/wire/anthropic"
	"github.com/luthien/gateway/pkg/wire/openai"
)

// OpenAIRequestToAnthropic converts req into the Anthropic Messages wire
// format. System-role messages are extracted and flattened into the
// top-level System field, joined with newlines if there is more than one.
func OpenAIRequestToAnthropic(req *openai.Request) *anthropic.Request {
	out := &anthropic.Request{
		Model:     req.Model,
		MaxTokens: 4096,
		Stream:    req.Stream,
		Temperature: req.Temperature,
		TopP:      req.TopP,
		StopSeqs:  req.Stop,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	var systemParts []string
	toolUseIDByCallID := map[string]string{} // first pass: openai call id -> itself (Anthropic reuses the same id)
	for _, m := range req.Messages {
		if m.Role == "system" {
			if m.Content != nil {
				systemParts = append(systemParts, *m.Content)
			}
			continue
		}
		for _, tc := range m.ToolCalls {
			toolUseIDByCallID[tc.ID] = tc.ID
		}
	}
	out.System = strings.Join(systemParts, "\n")

	for _, m := range req.Messages {
		if m.Role == "system" {
			continue
		}
		switch {
		case m.Role == "tool":
			out.Messages = append(out.Messages, anthropic.Message{
				Role: "user",
				Content: []anthropic.ContentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   stringToRawJSON(m.Content),
				}},
			})
		case len(m.ToolCalls) > 0:
			blocks := make([]anthropic.ContentBlock, 0, len(m.ToolCalls)+1)
			if m.Content != nil && strings.TrimSpace(*m.Content) != "" {
				blocks = append(blocks, anthropic.TextBlock(*m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.ToolUseBlock(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
			}
			out.Messages = append(out.Messages, anthropic.Message{Role: m.Role, Content: blocks})
		default:
			text := ""
			if m.Content != nil {
				text = *m.Content
			}
			out.Messages = append(out.Messages, anthropic.Message{
				Role:    m.Role,
				Content: []anthropic.ContentBlock{anthropic.TextBlock(text)},
			})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropic.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	return out
}

// AnthropicRequestToOpenAI converts req into the OpenAI chat-completions
// wire format. The System field, if set, becomes a leading system message.
func AnthropicRequestToOpenAI(req *anthropic.Request) *openai.Request {
	out := &openai.Request{
		Model:       req.Model,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSeqs,
		MaxTokens:   &req.MaxTokens,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openai.Message{Role: "system", Content: openai.StringContent(req.System)})
	}

	// First pass: record which tool_use ids appear, so tool_result blocks
	// seen in later (non-adjacent) messages can be emitted as OpenAI "tool"
	// role messages carrying the matching tool_call_id.
	toolUseIDs := map[string]bool{}
	for _, m := range req.Messages {
		for _, cb := range m.Content {
			if cb.Type == "tool_use" {
				toolUseIDs[cb.ID] = true
			}
		}
	}

	for _, m := range req.Messages {
		var textParts []string
		var toolCalls []openai.ToolCall
		var toolResultMsgs []openai.Message

		for _, cb := range m.Content {
			switch cb.Type {
			case "text":
				textParts = append(textParts, cb.Text)
			case "tool_use":
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   cb.ID,
					Type: "function",
					Function: openai.ToolCallFunction{
						Name:      cb.Name,
						Arguments: string(cb.Input),
					},
				})
			case "tool_result":
				if toolUseIDs[cb.ToolUseID] {
					toolResultMsgs = append(toolResultMsgs, openai.Message{
						Role:       "tool",
						Content:    openai.StringContent(rawJSONToString(cb.Content)),
						ToolCallID: cb.ToolUseID,
					})
				}
			}
		}

		if len(toolCalls) > 0 {
			msg := openai.Message{Role: m.Role, ToolCalls: toolCalls}
			if len(textParts) > 0 {
				msg.Content = openai.StringContent(strings.Join(textParts, ""))
			}
			out.Messages = append(out.Messages, msg)
		} else if len(textParts) > 0 {
			out.Messages = append(out.Messages, openai.Message{Role: m.Role, Content: openai.StringContent(strings.Join(textParts, ""))})
		}
		out.Messages = append(out.Messages, toolResultMsgs...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: "function",
			Function: openai.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	return out
}

// AnthropicResponseFromOpenAI converts a completed OpenAI response into the
// Anthropic Response shape, for the non-streaming passthrough path when the
// upstream speaks OpenAI but the client speaks Anthropic.
func AnthropicResponseFromOpenAI(resp *openai.Response) *anthropic.Response {
	out := &anthropic.Response{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
	}
	if resp.Usage != nil {
		out.Usage = anthropic.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	if choice.Message.Content != nil && *choice.Message.Content != "" {
		out.Content = append(out.Content, anthropic.TextBlock(*choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Content = append(out.Content, anthropic.ToolUseBlock(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}
	if choice.FinishReason != nil {
		reason := stream.CanonicalToAnthropicStopReason(stream.MapOpenAIFinishReason(*choice.FinishReason))
		out.StopReason = &reason
	}
	return out
}

// OpenAIResponseFromAnthropic converts a completed Anthropic response into
// the OpenAI Response shape, for the non-streaming passthrough path when the
// upstream speaks Anthropic but the client speaks OpenAI.
func OpenAIResponseFromAnthropic(resp *anthropic.Response) *openai.Response {
	out := &openai.Response{
		ID:     resp.ID,
		Object: "chat.completion",
		Model:  resp.Model,
		Usage: &openai.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	msg := openai.Message{Role: "assistant"}
	var textParts []string
	for _, cb := range resp.Content {
		switch cb.Type {
		case "text":
			textParts = append(textParts, cb.Text)
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   cb.ID,
				Type: "function",
				Function: openai.ToolCallFunction{
					Name:      cb.Name,
					Arguments: string(cb.Input),
				},
			})
		}
	}
	if len(textParts) > 0 {
		msg.Content = openai.StringContent(strings.Join(textParts, ""))
	}

	choice := openai.Choice{Index: 0, Message: msg}
	if resp.StopReason != nil {
		reason := stream.CanonicalToOpenAIFinishReason(stream.MapAnthropicStopReason(*resp.StopReason))
		choice.FinishReason = &reason
	}
	out.Choices = []openai.Choice{choice}
	return out
}

func stringToRawJSON(s *string) json.RawMessage {
	if s == nil {
		return json.RawMessage(`""`)
	}
	b, err := json.Marshal(*s)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return json.RawMessage(b)
}

func rawJSONToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
