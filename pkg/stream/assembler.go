package stream

import (
	"encoding/json"
	"fmt"

	"github.com/luthien/gateway/pkg/wire/anthropic"
	"github.com/luthien/gateway/pkg/wire/openai"
)

// Assembler folds a single upstream wire format's streamed deltas into a
// State and produces the canonical Events a policy's OnStreamEvent /
// OnBlockComplete hooks react to. One Assembler is created per
// transaction and is not safe for concurrent Ingest calls (the upstream
// client reads one SSE stream sequentially), though State's query methods
// may be read concurrently from other goroutines.
type Assembler struct {
	state *State

	// openaiToolIndex maps OpenAI's delta "index" (which is really a
	// tool-call slot, since OpenAI only ever streams one text block at
	// index 0 alongside N tool-call slots) to the Block.Index space.
	openaiToolIndex map[int]int
	openaiNextIndex int
}

// NewAssembler creates an Assembler backed by a fresh State.
func NewAssembler() *Assembler {
	return &Assembler{state: NewState(), openaiToolIndex: make(map[int]int)}
}

// State returns the assembler's backing State.
func (a *Assembler) State() *State { return a.state }

// IngestOpenAIChunk folds one "chat.completion.chunk" payload in and
// returns the canonical events it produced, in order.
func (a *Assembler) IngestOpenAIChunk(chunk *openai.StreamChunk) []Event {
	if a.state.MessageID == "" {
		a.state.MessageID = chunk.ID
		a.state.Model = chunk.Model
	}

	var events []Event
	if len(chunk.Choices) == 0 {
		return events
	}
	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.Role != "" {
		a.state.Role = delta.Role
	}

	if delta.Content != nil && *delta.Content != "" {
		idx, started := a.openaiTextIndex()
		if started {
			events = append(events, Event{Kind: EventBlockStart, Index: idx})
		}
		a.appendText(idx, *delta.Content)
		events = append(events, Event{Kind: EventBlockDelta, Index: idx, TextDelta: *delta.Content})
	}

	for _, tc := range delta.ToolCalls {
		idx, started := a.openaiBlockIndexFor(tc.Index)
		if started {
			block := &Block{Index: idx, Kind: KindToolUse}
			if tc.ID != "" {
				block.ToolUseID = tc.ID
			}
			if tc.Function != nil {
				block.ToolName = tc.Function.Name
			}
			a.state.startBlock(block)
			events = append(events, Event{Kind: EventBlockStart, Index: idx})
		}
		if tc.Function != nil && tc.Function.Arguments != "" {
			a.state.mu.Lock()
			if b := a.state.blockAt(idx); b != nil {
				b.Arguments += tc.Function.Arguments
			}
			a.state.mu.Unlock()
			events = append(events, Event{Kind: EventBlockDelta, Index: idx, ArgsDelta: tc.Function.Arguments})
		}
	}

	if choice.FinishReason != nil {
		for _, b := range a.state.Blocks() {
			a.state.stopBlock(b.Index)
			events = append(events, Event{Kind: EventBlockStop, Index: b.Index})
		}
		reason := MapOpenAIFinishReason(*choice.FinishReason)
		a.state.setFinished(reason)
		events = append(events, Event{Kind: EventMessageStop, FinishReason: reason})
	}

	return events
}

// openaiTextIndex returns the Block.Index assigned to OpenAI's single
// implicit text block (always allocated first, at index 0), creating it
// if this is the first text delta seen.
func (a *Assembler) openaiTextIndex() (int, bool) {
	for _, b := range a.state.Blocks() {
		if b.Kind == KindText {
			return b.Index, false
		}
	}
	idx := a.openaiNextIndex
	a.openaiNextIndex++
	a.state.startBlock(&Block{Index: idx, Kind: KindText})
	return idx, true
}

func (a *Assembler) appendText(index int, delta string) {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()
	if b := a.state.blockAt(index); b != nil {
		b.Text += delta
	}
}

// openaiBlockIndexFor maps an OpenAI tool-call delta index to this
// assembler's Block.Index space, allocating a new one on first sight.
func (a *Assembler) openaiBlockIndexFor(toolCallIndex int) (int, bool) {
	if idx, ok := a.openaiToolIndex[toolCallIndex]; ok {
		return idx, false
	}
	idx := a.openaiNextIndex
	a.openaiNextIndex++
	a.openaiToolIndex[toolCallIndex] = idx
	return idx, true
}

// IngestAnthropicEvent folds one named SSE event from Anthropic's
// six-event lifecycle in and returns the canonical events it produced.
func (a *Assembler) IngestAnthropicEvent(name string, data []byte) ([]Event, error) {
	switch name {
	case "message_start":
		var ev anthropic.MessageStart
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("stream: decode message_start: %w", err)
		}
		a.state.MessageID = ev.Message.ID
		a.state.Model = ev.Message.Model
		a.state.Role = ev.Message.Role
		return nil, nil

	case "content_block_start":
		var ev anthropic.ContentBlockStart
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("stream: decode content_block_start: %w", err)
		}
		block := blockFromAnthropic(ev.Index, ev.ContentBlock)
		a.state.startBlock(block)
		events := []Event{{Kind: EventBlockStart, Index: ev.Index}}
		if block.Kind == KindRedactedThinking {
			a.state.stopBlock(ev.Index)
			events = append(events, Event{Kind: EventBlockStop, Index: ev.Index})
		}
		return events, nil

	case "content_block_delta":
		var ev anthropic.ContentBlockDelta
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("stream: decode content_block_delta: %w", err)
		}
		out := Event{Kind: EventBlockDelta, Index: ev.Index}
		a.state.mu.Lock()
		b := a.state.blockAt(ev.Index)
		switch ev.Delta.Type {
		case "text_delta":
			if b != nil {
				b.Text += ev.Delta.Text
			}
			out.TextDelta = ev.Delta.Text
		case "input_json_delta":
			if b != nil {
				b.Arguments += ev.Delta.PartialJSON
			}
			out.ArgsDelta = ev.Delta.PartialJSON
		case "thinking_delta":
			if b != nil {
				b.Thinking += ev.Delta.Thinking
			}
			out.ThinkingDelta = ev.Delta.Thinking
		case "signature_delta":
			if b != nil {
				b.Signature += ev.Delta.Signature
			}
			out.SignatureDelta = ev.Delta.Signature
		}
		a.state.mu.Unlock()
		return []Event{out}, nil

	case "content_block_stop":
		var ev anthropic.ContentBlockStop
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("stream: decode content_block_stop: %w", err)
		}
		a.state.stopBlock(ev.Index)
		return []Event{{Kind: EventBlockStop, Index: ev.Index}}, nil

	case "message_delta":
		var ev anthropic.MessageDelta
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("stream: decode message_delta: %w", err)
		}
		if ev.Delta.StopReason != nil {
			reason := MapAnthropicStopReason(*ev.Delta.StopReason)
			a.state.setFinished(reason)
			return []Event{{Kind: EventMessageStop, FinishReason: reason}}, nil
		}
		return nil, nil

	case "message_stop":
		return nil, nil

	case "ping":
		return nil, nil

	default:
		return nil, fmt.Errorf("stream: unknown anthropic event %q", name)
	}
}

func blockFromAnthropic(index int, cb anthropic.ContentBlock) *Block {
	switch cb.Type {
	case "tool_use":
		return &Block{Index: index, Kind: KindToolUse, ToolUseID: cb.ID, ToolName: cb.Name, Arguments: string(cb.Input)}
	case "thinking":
		return &Block{Index: index, Kind: KindThinking, Thinking: cb.Thinking}
	case "redacted_thinking":
		return &Block{Index: index, Kind: KindRedactedThinking, Data: cb.Data, Complete: true}
	default:
		return &Block{Index: index, Kind: KindText, Text: cb.Text}
	}
}
