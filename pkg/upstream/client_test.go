package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien/gateway/pkg/authcache"
	"github.com/luthien/gateway/pkg/wire"
	"github.com/luthien/gateway/pkg/wire/openai"
)

func openAIChatBody(model string) []byte {
	b, _ := json.Marshal(openai.Request{
		Model:    model,
		Messages: []openai.Message{{Role: "user", Content: openai.StringContent("hi")}},
	})
	return b
}

func TestClient_Complete_SameFormatPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"r1","choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, UpstreamFormat: wire.FormatOpenAI, Model: "gpt-4o"})
	out, err := c.Complete(context.Background(), wire.FormatOpenAI, openAIChatBody("gpt-4o"))

	require.NoError(t, err)
	var resp openai.Response
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "hello", resp.Choices[0].Message.TextContent())
}

func TestClient_Complete_ConvertsCrossFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet","content":[{"type":"text","text":"hi there"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, UpstreamFormat: wire.FormatAnthropic, Model: "claude-sonnet"})
	out, err := c.Complete(context.Background(), wire.FormatOpenAI, openAIChatBody("claude-sonnet"))

	require.NoError(t, err)
	var resp openai.Response
	require.NoError(t, json.Unmarshal(out, &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hi there", resp.Choices[0].Message.TextContent())
}

func TestClient_Complete_RetriesOnFixableBadRequest(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"tool_result block references unknown tool_use_id"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"r1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, UpstreamFormat: wire.FormatOpenAI, Model: "gpt-4o"})
	body, _ := json.Marshal(openai.Request{
		Model: "gpt-4o",
		Messages: []openai.Message{
			{Role: "user", Content: openai.StringContent("hi")},
			{Role: "tool", ToolCallID: "missing", Content: openai.StringContent("x")},
		},
	})

	out, err := c.Complete(context.Background(), wire.FormatOpenAI, body)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	var resp openai.Response
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "ok", resp.Choices[0].Message.TextContent())
}

func TestClient_Complete_ContextOverflowNeverRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"This model's maximum context length is 128000 tokens"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, UpstreamFormat: wire.FormatOpenAI, Model: "gpt-4o"})
	_, err := c.Complete(context.Background(), wire.FormatOpenAI, openAIChatBody("gpt-4o"))

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "context window")
}

func TestClient_Complete_InvalidatesAuthCacheOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	validations := 0
	cache := authcache.New(authcache.Config{Validate: func(ctx context.Context, key string) (bool, error) {
		validations++
		return true, nil
	}})
	_, _ = cache.Check(context.Background(), "sk-test")
	require.Equal(t, 1, validations)

	c := New(Config{BaseURL: srv.URL, UpstreamFormat: wire.FormatOpenAI, Model: "gpt-4o", APIKey: "sk-test", AuthCache: cache})
	_, err := c.Complete(context.Background(), wire.FormatOpenAI, openAIChatBody("gpt-4o"))
	require.Error(t, err)

	// The 401 must have invalidated the cached entry, so the next Check
	// re-validates instead of serving the stale cached "valid" result.
	_, _ = cache.Check(context.Background(), "sk-test")
	assert.Equal(t, 2, validations)
}

func TestSession_StreamOpenAI_IngestsChunksUntilDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, `data: {"id":"r1","choices":[{"index":0,"delta":{"role":"assistant","content":"hi"},"finish_reason":null}]}`+"\n\n")
		flusher.Flush()
		_, _ = io.WriteString(w, `data: {"id":"r1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`+"\n\n")
		flusher.Flush()
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, UpstreamFormat: wire.FormatOpenAI, Model: "gpt-4o"})
	session, err := c.Stream(context.Background(), wire.FormatOpenAI, openAIChatBody("gpt-4o"))
	require.NoError(t, err)
	defer session.Close()

	var total []string
	for {
		events, nerr := session.Next()
		for _, ev := range events {
			total = append(total, string(ev.Kind))
		}
		if nerr == io.EOF {
			break
		}
		require.NoError(t, nerr)
	}
	assert.NotEmpty(t, total)
}
