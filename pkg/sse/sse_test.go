package sse

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ParsesOpenAIStream(t *testing.T) {
	t.Parallel()

	body := "data: {\"id\":\"1\"}\n\ndata: {\"id\":\"2\"}\n\ndata: [DONE]\n\n"
	r := NewReader(strings.NewReader(body))

	var got []string
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, ev.Data)
	}

	assert.Equal(t, []string{`{"id":"1"}`, `{"id":"2"}`, "[DONE]"}, got)
}

func TestReader_ParsesAnthropicNamedEvents(t *testing.T) {
	t.Parallel()

	body := "event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
		"event: content_block_delta\ndata: {\"index\":0}\n\n"
	r := NewReader(strings.NewReader(body))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "message_start", ev.Name)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "content_block_delta", ev.Name)
}

func TestReader_IgnoresCommentLines(t *testing.T) {
	t.Parallel()

	body := ": keep-alive\ndata: {\"a\":1}\n\n"
	r := NewReader(strings.NewReader(body))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, ev.Data)
}

func TestIsOpenAIDone(t *testing.T) {
	t.Parallel()

	assert.True(t, IsOpenAIDone(&Event{Data: "[DONE]"}))
	assert.False(t, IsOpenAIDone(&Event{Data: `{"id":"1"}`}))
}

func TestWriter_WriteEvent_Unnamed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteEvent(Event{Data: `{"id":"1"}`}))
	assert.Equal(t, "data: {\"id\":\"1\"}\n\n", buf.String())
}

func TestWriter_WriteEvent_Named(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteEvent(Event{Name: "message_stop", Data: "{}"}))
	assert.Equal(t, "event: message_stop\ndata: {}\n\n", buf.String())
}

func TestWriter_WriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteJSON("content_block_delta", map[string]int{"index": 0}))
	assert.Contains(t, buf.String(), "event: content_block_delta")
	assert.Contains(t, buf.String(), `"index":0`)
}

func TestWriter_WriteOpenAIDone(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteOpenAIDone())
	assert.Equal(t, "data: [DONE]\n\n", buf.String())
}
