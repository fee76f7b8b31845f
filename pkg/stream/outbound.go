package stream

import (
	"encoding/json"

	"github.com/luthien/gateway/pkg/wire/anthropic"
	"github.com/luthien/gateway/pkg/wire/openai"
)

// OutboundOpenAI converts one canonical Event into zero or more OpenAI
// "chat.completion.chunk" payloads to forward to a client speaking the
// OpenAI wire format, regardless of which wire format produced the
// Event — this is what lets a client on one format be served from an
// upstream speaking the other.
func (a *Assembler) OutboundOpenAI(ev Event) []*openai.StreamChunk {
	base := func() *openai.StreamChunk {
		return &openai.StreamChunk{
			ID:      a.state.MessageID,
			Object:  "chat.completion.chunk",
			Model:   a.state.Model,
			Choices: []openai.ChunkChoice{{Index: 0}},
		}
	}

	switch ev.Kind {
	case EventBlockStart:
		block, ok := a.state.Block(ev.Index)
		if !ok || block.Kind != KindToolUse {
			return nil
		}
		chunk := base()
		chunk.Choices[0].Delta = openai.ChunkDelta{
			ToolCalls: []openai.ToolCallDelta{{
				Index:    a.openaiOutIndex(ev.Index),
				ID:       block.ToolUseID,
				Type:     "function",
				Function: &openai.ToolCallFunctionDelta{Name: block.ToolName},
			}},
		}
		return []*openai.StreamChunk{chunk}

	case EventBlockDelta:
		block, ok := a.state.Block(ev.Index)
		if !ok {
			return nil
		}
		chunk := base()
		switch block.Kind {
		case KindText:
			if ev.TextDelta == "" {
				return nil
			}
			text := ev.TextDelta
			chunk.Choices[0].Delta = openai.ChunkDelta{Content: &text}
		case KindToolUse:
			if ev.ArgsDelta == "" {
				return nil
			}
			chunk.Choices[0].Delta = openai.ChunkDelta{
				ToolCalls: []openai.ToolCallDelta{{
					Index:    a.openaiOutIndex(ev.Index),
					Function: &openai.ToolCallFunctionDelta{Arguments: ev.ArgsDelta},
				}},
			}
		default:
			// thinking / redacted_thinking have no OpenAI wire
			// representation; they are dropped from the OpenAI-facing
			// stream rather than surfaced as an unsupported-feature
			// error, since OpenAI clients never asked for reasoning
			// traces in the first place.
			return nil
		}
		return []*openai.StreamChunk{chunk}

	case EventMessageStop:
		chunk := base()
		reason := CanonicalToOpenAIFinishReason(ev.FinishReason)
		chunk.Choices[0].FinishReason = &reason
		return []*openai.StreamChunk{chunk}

	default:
		return nil
	}
}

// openaiOutIndex maps a canonical Block.Index to the 0-based tool-call
// slot index OpenAI clients expect (text occupies no tool-call slot).
func (a *Assembler) openaiOutIndex(blockIndex int) int {
	i := 0
	for _, b := range a.state.Blocks() {
		if b.Kind != KindToolUse {
			continue
		}
		if b.Index == blockIndex {
			return i
		}
		i++
	}
	return 0
}

// AnthropicOutbound is one Anthropic lifecycle event ready to write
// through sse.Writer.WriteJSON(name, payload).
type AnthropicOutbound struct {
	Name    string
	Payload interface{}
}

// OutboundAnthropicStart builds the message_start event. Called once, by
// the driver, right after the Ingest call that first sets the message id
// and before any event is forwarded to the client.
func (a *Assembler) OutboundAnthropicStart() AnthropicOutbound {
	return AnthropicOutbound{
		Name: "message_start",
		Payload: anthropic.MessageStart{
			Type: "message_start",
			Message: anthropic.MessageStartStub{
				ID:      a.state.MessageID,
				Type:    "message",
				Role:    "assistant",
				Model:   a.state.Model,
				Content: []anthropic.ContentBlock{},
			},
		},
	}
}

// OutboundAnthropic converts one canonical Event into zero or more
// Anthropic lifecycle events.
func (a *Assembler) OutboundAnthropic(ev Event) []AnthropicOutbound {
	switch ev.Kind {
	case EventBlockStart:
		block, ok := a.state.Block(ev.Index)
		if !ok {
			return nil
		}
		return []AnthropicOutbound{{
			Name: "content_block_start",
			Payload: anthropic.ContentBlockStart{
				Type:         "content_block_start",
				Index:        ev.Index,
				ContentBlock: anthropicEmptyBlock(block),
			},
		}}

	case EventBlockDelta:
		block, ok := a.state.Block(ev.Index)
		if !ok {
			return nil
		}
		var delta anthropic.BlockDelta
		switch {
		case ev.TextDelta != "" && block.Kind == KindText:
			delta = anthropic.BlockDelta{Type: "text_delta", Text: ev.TextDelta}
		case ev.ArgsDelta != "" && block.Kind == KindToolUse:
			delta = anthropic.BlockDelta{Type: "input_json_delta", PartialJSON: ev.ArgsDelta}
		case ev.ThinkingDelta != "":
			delta = anthropic.BlockDelta{Type: "thinking_delta", Thinking: ev.ThinkingDelta}
		case ev.SignatureDelta != "":
			delta = anthropic.BlockDelta{Type: "signature_delta", Signature: ev.SignatureDelta}
		default:
			return nil
		}
		return []AnthropicOutbound{{
			Name:    "content_block_delta",
			Payload: anthropic.ContentBlockDelta{Type: "content_block_delta", Index: ev.Index, Delta: delta},
		}}

	case EventBlockStop:
		return []AnthropicOutbound{{
			Name:    "content_block_stop",
			Payload: anthropic.ContentBlockStop{Type: "content_block_stop", Index: ev.Index},
		}}

	case EventMessageStop:
		reason := CanonicalToAnthropicStopReason(ev.FinishReason)
		return []AnthropicOutbound{
			{
				Name: "message_delta",
				Payload: anthropic.MessageDelta{
					Type:  "message_delta",
					Delta: anthropic.MessageDeltaBody{StopReason: &reason},
				},
			},
			{Name: "message_stop", Payload: anthropic.MessageStop{Type: "message_stop"}},
		}

	default:
		return nil
	}
}

func anthropicEmptyBlock(b Block) anthropic.ContentBlock {
	switch b.Kind {
	case KindToolUse:
		return anthropic.ContentBlock{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: json.RawMessage("{}")}
	case KindThinking:
		return anthropic.ContentBlock{Type: "thinking"}
	case KindRedactedThinking:
		return anthropic.ContentBlock{Type: "redacted_thinking", Data: b.Data}
	default:
		return anthropic.ContentBlock{Type: "text"}
	}
}
