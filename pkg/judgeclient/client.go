// Package judgeclient is a minimal, non-streaming chat-completions client
// used only to ask a judge LLM a single-turn question and parse its
// {probability, explanation} verdict. Judge policies never need
// streaming, tool calls, or multi-turn conversation, so this is
// deliberately narrower than the full upstream client.
package judgeclient

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/luthien/gateway/pkg/gwerrors"
	"github.com/luthien/gateway/pkg/jsonparser"
	"github.com/luthien/gateway/pkg/upstreamhttp"
	"github.com/luthien/gateway/pkg/wire/openai"
)

// Verdict is the judge's structured answer.
type Verdict struct {
	Probability float64 `json:"probability"`
	Explanation string  `json:"explanation"`
}

// Client asks a single-turn question of a judge model over the OpenAI
// chat-completions wire format.
type Client struct {
	http        *upstreamhttp.Client
	apiKey      string
	model       string
	limiter     *rate.Limiter
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	// RateLimit bounds calls per second to the judge endpoint; Burst
	// bounds how many can fire back-to-back. A burst of risky tool
	// calls across concurrent transactions must not hammer the judge
	// model, since judge latency already dominates the blocked path.
	RateLimit rate.Limit
	Burst     int
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Client{
		http:    upstreamhttp.NewClient(upstreamhttp.Config{BaseURL: cfg.BaseURL, Model: cfg.Model}),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Ask sends systemPrompt + userContent as a two-message chat completion
// request and parses the response as a Verdict. A malformed or
// unparseable response, or a request that errors, is surfaced as a
// *gwerrors.GatewayError tagged KindJudgeFailure — callers are expected
// to resolve that fail-secure (treat it as a violation) rather than
// propagate it to the client.
func (c *Client) Ask(ctx context.Context, systemPrompt, userContent string, temperature float64, maxTokens int) (*Verdict, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, gwerrors.Newf(gwerrors.KindJudgeFailure, err, "judge rate limiter: %v", err)
	}

	req := openai.Request{
		Model: c.model,
		Messages: []openai.Message{
			{Role: "system", Content: openai.StringContent(systemPrompt)},
			{Role: "user", Content: openai.StringContent(userContent)},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, gwerrors.Newf(gwerrors.KindJudgeFailure, err, "marshal judge request: %v", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	resp, err := c.http.Post(ctx, "/chat/completions", headers, body)
	if err != nil {
		return nil, gwerrors.Newf(gwerrors.KindJudgeFailure, err, "judge call failed: %v", err)
	}

	var parsed openai.Response
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, gwerrors.Newf(gwerrors.KindJudgeFailure, err, "decode judge response: %v", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, gwerrors.New(gwerrors.KindJudgeFailure, "judge response had no choices", nil)
	}

	content := parsed.Choices[0].Message.TextContent()
	result := jsonparser.ParsePartialJSON(content)
	if result.State == jsonparser.ParseStateFailed || result.State == jsonparser.ParseStateUndefinedInput {
		return nil, gwerrors.Newf(gwerrors.KindJudgeFailure, result.Error, "judge response not parseable as JSON: %q", content)
	}

	obj, ok := result.Value.(map[string]interface{})
	if !ok {
		return nil, gwerrors.New(gwerrors.KindJudgeFailure, fmt.Sprintf("judge response not a JSON object: %q", content), nil)
	}

	verdict := &Verdict{}
	if p, ok := obj["probability"].(float64); ok {
		verdict.Probability = p
	} else {
		return nil, gwerrors.New(gwerrors.KindJudgeFailure, "judge response missing numeric probability", nil)
	}
	if e, ok := obj["explanation"].(string); ok {
		verdict.Explanation = e
	}

	return verdict, nil
}
