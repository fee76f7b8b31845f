package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien/gateway/pkg/gwerrors"
)

func TestParseRequest_Valid(t *testing.T) {
	t.Parallel()

	body := []byte(`{"model":"claude-3-5-sonnet","max_tokens":1024,"messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}]}`)
	req, err := ParseRequest(body)

	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-sonnet", req.Model)
	assert.Equal(t, 1024, req.MaxTokens)
}

func TestParseRequest_MissingMaxTokens(t *testing.T) {
	t.Parallel()

	body := []byte(`{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}]}`)
	_, err := ParseRequest(body)

	require.Error(t, err)
	assert.Equal(t, gwerrors.KindPayloadInvalid, gwerrors.KindOf(err))
}

func TestParseRequest_EmptyMessages(t *testing.T) {
	t.Parallel()

	body := []byte(`{"model":"claude-3-5-sonnet","max_tokens":100,"messages":[]}`)
	_, err := ParseRequest(body)

	require.Error(t, err)
}

func TestToolUseBlock(t *testing.T) {
	t.Parallel()

	b := ToolUseBlock("toolu_1", "get_weather", []byte(`{"city":"nyc"}`))
	assert.Equal(t, "tool_use", b.Type)
	assert.Equal(t, "toolu_1", b.ID)
}
