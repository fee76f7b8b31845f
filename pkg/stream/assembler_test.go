package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien/gateway/pkg/jsonparser"
	"github.com/luthien/gateway/pkg/wire/openai"
)

func strPtr(s string) *string { return &s }

func TestAssembler_IngestOpenAIChunk_Text(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	events := a.IngestOpenAIChunk(&openai.StreamChunk{
		ID:      "chatcmpl-1",
		Model:   "gpt-4o",
		Choices: []openai.ChunkChoice{{Delta: openai.ChunkDelta{Role: "assistant", Content: strPtr("Hel")}}},
	})
	require.Len(t, events, 2)
	assert.Equal(t, EventBlockStart, events[0].Kind)
	assert.Equal(t, EventBlockDelta, events[1].Kind)

	events = a.IngestOpenAIChunk(&openai.StreamChunk{
		Choices: []openai.ChunkChoice{{Delta: openai.ChunkDelta{Content: strPtr("lo")}}},
	})
	require.Len(t, events, 1)
	assert.Equal(t, "lo", events[0].TextDelta)

	block, ok := a.State().Block(0)
	require.True(t, ok)
	assert.Equal(t, "Hello", block.Text)
}

func TestAssembler_IngestOpenAIChunk_ToolCallAndFinish(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.IngestOpenAIChunk(&openai.StreamChunk{
		Choices: []openai.ChunkChoice{{Delta: openai.ChunkDelta{
			ToolCalls: []openai.ToolCallDelta{{Index: 0, ID: "call_1", Type: "function", Function: &openai.ToolCallFunctionDelta{Name: "get_weather"}}},
		}}},
	})
	a.IngestOpenAIChunk(&openai.StreamChunk{
		Choices: []openai.ChunkChoice{{Delta: openai.ChunkDelta{
			ToolCalls: []openai.ToolCallDelta{{Index: 0, Function: &openai.ToolCallFunctionDelta{Arguments: `{"city":`}}},
		}}},
	})
	block, ok := a.State().Block(0)
	require.True(t, ok)
	assert.False(t, block.ArgumentsComplete())

	a.IngestOpenAIChunk(&openai.StreamChunk{
		Choices: []openai.ChunkChoice{{Delta: openai.ChunkDelta{
			ToolCalls: []openai.ToolCallDelta{{Index: 0, Function: &openai.ToolCallFunctionDelta{Arguments: `"nyc"}`}}},
		}}},
	})
	block, _ = a.State().Block(0)
	assert.True(t, block.ArgumentsComplete())

	finishReason := "tool_calls"
	events := a.IngestOpenAIChunk(&openai.StreamChunk{
		Choices: []openai.ChunkChoice{{FinishReason: &finishReason}},
	})
	require.NotEmpty(t, events)
	assert.Equal(t, EventMessageStop, events[len(events)-1].Kind)
	assert.Equal(t, FinishToolCalls, a.State().FinishReason())
	assert.True(t, a.State().Finished())
}

func TestBlock_ArgumentsSnapshot_RepairsInProgressToolCall(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.IngestOpenAIChunk(&openai.StreamChunk{
		Choices: []openai.ChunkChoice{{Delta: openai.ChunkDelta{
			ToolCalls: []openai.ToolCallDelta{{Index: 0, ID: "call_1", Type: "function", Function: &openai.ToolCallFunctionDelta{Name: "delete_all"}}},
		}}},
	})
	a.IngestOpenAIChunk(&openai.StreamChunk{
		Choices: []openai.ChunkChoice{{Delta: openai.ChunkDelta{
			ToolCalls: []openai.ToolCallDelta{{Index: 0, Function: &openai.ToolCallFunctionDelta{Arguments: `{"confirm":tr`}}},
		}}},
	})

	block, ok := a.State().Block(0)
	require.True(t, ok)
	assert.False(t, block.ArgumentsComplete())

	snapshot := block.ArgumentsSnapshot()
	assert.Equal(t, jsonparser.ParseStateRepaired, snapshot.State)
	m, ok := snapshot.Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, m["confirm"])
}

func TestBlock_ArgumentsSnapshot_EmptyToolUseBlockIsUndefined(t *testing.T) {
	t.Parallel()

	block := Block{Kind: KindToolUse}
	assert.Equal(t, jsonparser.ParseStateUndefinedInput, block.ArgumentsSnapshot().State)
}

func TestAssembler_IngestAnthropicEvent_TextLifecycle(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	_, err := a.IngestAnthropicEvent("message_start", []byte(`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet"}}`))
	require.NoError(t, err)

	_, err = a.IngestAnthropicEvent("content_block_start", []byte(`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`))
	require.NoError(t, err)

	events, err := a.IngestAnthropicEvent("content_block_delta", []byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].TextDelta)

	_, err = a.IngestAnthropicEvent("content_block_stop", []byte(`{"type":"content_block_stop","index":0}`))
	require.NoError(t, err)

	events, err = a.IngestAnthropicEvent("message_delta", []byte(`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`))
	require.NoError(t, err)
	assert.Equal(t, FinishStop, events[0].FinishReason)

	block, ok := a.State().Block(0)
	require.True(t, ok)
	assert.Equal(t, "hi", block.Text)
	assert.True(t, block.Complete)
}

func TestAssembler_IngestAnthropicEvent_RedactedThinkingCompletesImmediately(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	events, err := a.IngestAnthropicEvent("content_block_start", []byte(`{"type":"content_block_start","index":0,"content_block":{"type":"redacted_thinking","data":"opaque"}}`))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventBlockStop, events[1].Kind)

	block, ok := a.State().Block(0)
	require.True(t, ok)
	assert.True(t, block.Complete)
	assert.Equal(t, KindRedactedThinking, block.Kind)
}

func TestAssembler_OutboundOpenAI_FromAnthropicIngest(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	a.IngestAnthropicEvent("message_start", []byte(`{"type":"message_start","message":{"id":"msg_1","model":"claude-3-5-sonnet"}}`))
	a.IngestAnthropicEvent("content_block_start", []byte(`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`))
	events, _ := a.IngestAnthropicEvent("content_block_delta", []byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`))

	chunks := a.OutboundOpenAI(events[0])
	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].Choices[0].Delta.Content)
	assert.Equal(t, "hi", *chunks[0].Choices[0].Delta.Content)
}

func TestAssembler_OutboundAnthropic_FromOpenAIIngest(t *testing.T) {
	t.Parallel()

	a := NewAssembler()
	events := a.IngestOpenAIChunk(&openai.StreamChunk{
		ID:      "chatcmpl-1",
		Choices: []openai.ChunkChoice{{Delta: openai.ChunkDelta{Content: strPtr("hi")}}},
	})

	var sawStart, sawDelta bool
	for _, ev := range events {
		for _, out := range a.OutboundAnthropic(ev) {
			switch out.Name {
			case "content_block_start":
				sawStart = true
			case "content_block_delta":
				sawDelta = true
			}
		}
	}
	assert.True(t, sawStart)
	assert.True(t, sawDelta)
}
