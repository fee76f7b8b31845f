package rulespolicy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien/gateway/pkg/judgeclient"
	"github.com/luthien/gateway/pkg/observability"
	"github.com/luthien/gateway/pkg/observability/memstore"
	"github.com/luthien/gateway/pkg/policy"
	"github.com/luthien/gateway/pkg/stream"
)

func judgeServerWithProbability(t *testing.T, probability float64) *judgeclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := `{"id":"r1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"probability\": ` +
			floatStr(probability) + `, \"explanation\": \"matched rule\"}"}}]}`
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return judgeclient.New(judgeclient.Config{BaseURL: srv.URL, Model: "judge-model"})
}

func floatStr(f float64) string {
	if f == 0.9 {
		return "0.9"
	}
	if f == 0.1 {
		return "0.1"
	}
	return "0.5"
}

func TestParallelRulesPolicy_BlocksOnViolation(t *testing.T) {
	t.Parallel()

	judge := judgeServerWithProbability(t, 0.9)
	rules := []Rule{
		{Name: "no_profanity", RuleText: "contains profanity", ResponseTypes: []ResponseType{ResponseTypeText}},
	}
	p := New(judge, DefaultConfig(rules))
	pc := policy.NewContext("txn-1", "", nil, nil, nil)

	result, err := p.OnBlockComplete(context.Background(), pc, stream.Block{Kind: stream.KindText, Text: "some text"})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, result.Reason, "no_profanity")
}

func TestParallelRulesPolicy_AllowsWhenNoViolation(t *testing.T) {
	t.Parallel()

	judge := judgeServerWithProbability(t, 0.1)
	rules := []Rule{
		{Name: "no_profanity", RuleText: "contains profanity", ResponseTypes: []ResponseType{ResponseTypeText}},
	}
	p := New(judge, DefaultConfig(rules))
	pc := policy.NewContext("txn-1", "", nil, nil, nil)

	result, err := p.OnBlockComplete(context.Background(), pc, stream.Block{Kind: stream.KindText, Text: "hello"})

	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestParallelRulesPolicy_SkipsRulesNotApplicableToBlockKind(t *testing.T) {
	t.Parallel()

	judge := judgeServerWithProbability(t, 0.9)
	rules := []Rule{
		{Name: "tool_only", RuleText: "dangerous tool", ResponseTypes: []ResponseType{ResponseTypeToolCall}},
	}
	p := New(judge, DefaultConfig(rules))
	pc := policy.NewContext("txn-1", "", nil, nil, nil)

	result, err := p.OnBlockComplete(context.Background(), pc, stream.Block{Kind: stream.KindText, Text: "hello"})

	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestParallelRulesPolicy_StaticMessageOverridesExplanation(t *testing.T) {
	t.Parallel()

	judge := judgeServerWithProbability(t, 0.9)
	rules := []Rule{
		{Name: "no_profanity", RuleText: "contains profanity", ResponseTypes: []ResponseType{ResponseTypeText}, StaticMessage: "blocked by policy"},
	}
	p := New(judge, DefaultConfig(rules))
	pc := policy.NewContext("txn-1", "", nil, nil, nil)

	result, err := p.OnBlockComplete(context.Background(), pc, stream.Block{Kind: stream.KindText, Text: "hello"})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, result.Reason, "blocked by policy")
}

func TestParallelRulesPolicy_EmitsOneRuleViolatedEventPerViolation(t *testing.T) {
	t.Parallel()

	judge := judgeServerWithProbability(t, 0.9)
	rules := []Rule{
		{Name: "no_profanity", RuleText: "contains profanity", ResponseTypes: []ResponseType{ResponseTypeText}},
		{Name: "no_pii", RuleText: "leaks PII", ResponseTypes: []ResponseType{ResponseTypeText}},
	}
	p := New(judge, DefaultConfig(rules))

	store := memstore.New()
	emitter := observability.NewEmitter(store, 16)
	pc := policy.NewContext("txn-1", "sess-1", emitter, nil, nil)

	result, err := p.OnBlockComplete(context.Background(), pc, stream.Block{Kind: stream.KindText, Text: "some text"})
	require.NoError(t, err)
	require.NotNil(t, result)

	emitter.Close()
	var violated []observability.Event
	for _, ev := range store.All() {
		if ev.Type == observability.EventRuleViolated {
			violated = append(violated, ev)
		}
	}
	require.Len(t, violated, 2, "exactly one rule_violated event per violated rule")
	for _, ev := range violated {
		assert.Equal(t, "txn-1", ev.TransactionID)
		assert.Equal(t, "sess-1", ev.SessionID)
		assert.Equal(t, "parallel_rules", ev.PolicyName)
	}
}

func TestNew_PanicsWithNoRules(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		New(judgeclient.New(judgeclient.Config{}), DefaultConfig(nil))
	})
}
