package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luthien/gateway/pkg/policy"
	"github.com/luthien/gateway/pkg/stream"
	"github.com/luthien/gateway/pkg/wire"
	"github.com/luthien/gateway/pkg/wire/openai"
)

// openAIStreamServer serves a fixed sequence of chat-completion-chunk SSE
// events followed by the [DONE] marker, the way a real OpenAI-compatible
// upstream does.
func openAIStreamServer(t *testing.T, chunks []openai.StreamChunk) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			b, _ := json.Marshal(c)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

// readSSEDataLines extracts every "data: " payload from a raw SSE body,
// in order, for assertion without pulling in the production sse.Reader.
func readSSEDataLines(t *testing.T, body []byte) []string {
	t.Helper()
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			out = append(out, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestHandle_Streaming_RoundTrip(t *testing.T) {
	t.Parallel()

	text1, text2 := "hello", " world"
	finish := "stop"
	srv := openAIStreamServer(t, []openai.StreamChunk{
		{ID: "chatcmpl-1", Object: "chat.completion.chunk", Model: "gpt-test",
			Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.ChunkDelta{Role: "assistant", Content: &text1}}}},
		{ID: "chatcmpl-1", Object: "chat.completion.chunk", Model: "gpt-test",
			Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.ChunkDelta{Content: &text2}}}},
		{ID: "chatcmpl-1", Object: "chat.completion.chunk", Model: "gpt-test",
			Choices: []openai.ChunkChoice{{Index: 0, FinishReason: &finish}}},
	})
	defer srv.Close()

	d := newTestDriver(t, srv, passthroughPolicy{})
	rec := httptest.NewRecorder()

	d.Handle(context.Background(), rec, wire.FormatOpenAI, chatRequestBody(t, "gpt-test", true))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	lines := readSSEDataLines(t, rec.Body.Bytes())
	require.NotEmpty(t, lines)
	require.Equal(t, "[DONE]", lines[len(lines)-1])

	var combined strings.Builder
	for _, line := range lines[:len(lines)-1] {
		var chunk openai.StreamChunk
		require.NoError(t, json.Unmarshal([]byte(line), &chunk))
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != nil {
			combined.WriteString(*chunk.Choices[0].Delta.Content)
		}
	}
	require.Equal(t, "hello world", combined.String())
}

func TestHandle_Streaming_RequestHookBlocks(t *testing.T) {
	t.Parallel()

	var upstreamCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalled = true
	}))
	defer srv.Close()

	d := newTestDriver(t, srv, blockingPolicy{Phase: "request", Reason: "blocked before stream"})
	rec := httptest.NewRecorder()

	d.Handle(context.Background(), rec, wire.FormatOpenAI, chatRequestBody(t, "gpt-test", true))

	require.False(t, upstreamCalled)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := readSSEDataLines(t, rec.Body.Bytes())
	require.Equal(t, "[DONE]", lines[len(lines)-1])

	var sawReason bool
	for _, line := range lines {
		if strings.Contains(line, "blocked before stream") {
			sawReason = true
		}
	}
	require.True(t, sawReason)
}

// truncatingPolicy blocks once it has seen AllowEvents canonical events,
// exercising the mid-stream truncation path.
type truncatingPolicy struct {
	policy.BasePolicy
	AllowEvents int
	seen        int
}

func (p *truncatingPolicy) Name() string { return "truncating" }

func (p *truncatingPolicy) OnStreamEvent(ctx context.Context, pc *policy.Context, ev stream.Event) (*policy.Block, error) {
	p.seen++
	if p.seen > p.AllowEvents {
		return &policy.Block{Reason: "truncated mid-stream"}, nil
	}
	return nil, nil
}

func TestHandle_Streaming_MidStreamBlockTruncates(t *testing.T) {
	t.Parallel()

	text1, text2 := "hello", " world this should never arrive"
	srv := openAIStreamServer(t, []openai.StreamChunk{
		{ID: "chatcmpl-1", Object: "chat.completion.chunk", Model: "gpt-test",
			Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.ChunkDelta{Role: "assistant", Content: &text1}}}},
		{ID: "chatcmpl-1", Object: "chat.completion.chunk", Model: "gpt-test",
			Choices: []openai.ChunkChoice{{Index: 0, Delta: openai.ChunkDelta{Content: &text2}}}},
	})
	defer srv.Close()

	d := newTestDriver(t, srv, &truncatingPolicy{AllowEvents: 1})
	rec := httptest.NewRecorder()

	d.Handle(context.Background(), rec, wire.FormatOpenAI, chatRequestBody(t, "gpt-test", true))

	require.Equal(t, http.StatusOK, rec.Code)
	lines := readSSEDataLines(t, rec.Body.Bytes())

	var combined strings.Builder
	for _, line := range lines {
		if line == "[DONE]" {
			continue
		}
		var chunk openai.StreamChunk
		require.NoError(t, json.Unmarshal([]byte(line), &chunk))
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != nil {
			combined.WriteString(*chunk.Choices[0].Delta.Content)
		}
	}
	require.Contains(t, combined.String(), "truncated mid-stream")
	require.NotContains(t, combined.String(), "this should never arrive")
}
