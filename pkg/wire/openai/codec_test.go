package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien/gateway/pkg/gwerrors"
)

func TestParseRequest_Valid(t *testing.T) {
	t.Parallel()

	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	req, err := ParseRequest(body)

	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, "hi", req.Messages[0].TextContent())
}

func TestParseRequest_MissingModel(t *testing.T) {
	t.Parallel()

	_, err := ParseRequest([]byte(`{"messages":[{"role":"user","content":"hi"}]}`))
	require.Error(t, err)
	assert.Equal(t, gwerrors.KindPayloadInvalid, gwerrors.KindOf(err))
}

func TestParseRequest_EmptyMessages(t *testing.T) {
	t.Parallel()

	_, err := ParseRequest([]byte(`{"model":"gpt-4o","messages":[]}`))
	require.Error(t, err)
	assert.Equal(t, gwerrors.KindPayloadInvalid, gwerrors.KindOf(err))
}

func TestParseRequest_Malformed(t *testing.T) {
	t.Parallel()

	_, err := ParseRequest([]byte(`not json`))
	require.Error(t, err)
	assert.Equal(t, gwerrors.KindPayloadInvalid, gwerrors.KindOf(err))
}

func TestMessage_TextContent_NilContent(t *testing.T) {
	t.Parallel()

	m := Message{Role: "assistant", ToolCalls: []ToolCall{{ID: "call_1"}}}
	assert.Equal(t, "", m.TextContent())
}
