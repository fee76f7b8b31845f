// Package upstream is the gateway's self-healing upstream client: it wraps
// pkg/upstreamhttp transport and pkg/wireconvert conversion/sanitization,
// applies the retry-with-fix mechanical repair on a matching bad-request,
// rewrites surfaced errors into human-readable messages, and invalidates
// the credential cache on a 401.
package upstream

import (
	"context"
	"encoding/json"

	"github.com/luthien/gateway/pkg/authcache"
	"github.com/luthien/gateway/pkg/gwerrors"
	"github.com/luthien/gateway/pkg/upstreamhttp"
	"github.com/luthien/gateway/pkg/wire"
	"github.com/luthien/gateway/pkg/wire/anthropic"
	"github.com/luthien/gateway/pkg/wire/openai"
	"github.com/luthien/gateway/pkg/wireconvert"
)

// Client calls a single upstream provider, converting between the client's
// wire format and the upstream's native wire format when they differ.
type Client struct {
	transport      *upstreamhttp.Client
	upstreamFormat wire.Format
	apiKey         string
	model          string
	authCache      *authcache.Cache
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	UpstreamFormat wire.Format
	APIKey         string
	Model          string

	// AuthCache, if set, is invalidated for APIKey whenever the upstream
	// responds 401.
	AuthCache *authcache.Cache
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	return &Client{
		transport:      upstreamhttp.NewClient(upstreamhttp.Config{BaseURL: cfg.BaseURL, Model: cfg.Model}),
		upstreamFormat: cfg.UpstreamFormat,
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		authCache:      cfg.AuthCache,
	}
}

func (c *Client) authHeaders() map[string]string {
	switch c.upstreamFormat {
	case wire.FormatAnthropic:
		return map[string]string{"x-api-key": c.apiKey, "anthropic-version": "2023-06-01"}
	default:
		return map[string]string{"Authorization": "Bearer " + c.apiKey}
	}
}

func (c *Client) completionsPath() string {
	if c.upstreamFormat == wire.FormatAnthropic {
		return "/v1/messages"
	}
	return "/v1/chat/completions"
}

// Complete performs a non-streaming call. body is the inbound request in
// clientFormat; the returned bytes are the response, also in clientFormat.
// Pre-flight sanitization is applied, and a bad-request matching a known
// fixable pattern is retried exactly once with the corresponding sanitizer
// re-applied.
func (c *Client) Complete(ctx context.Context, clientFormat wire.Format, body []byte) ([]byte, error) {
	return c.complete(ctx, clientFormat, body, true)
}

// CompletePassthrough performs a non-streaming call without any
// sanitization, for the pipeline driver's passthrough-fallback retry
// against the client's original, unmodified request.
func (c *Client) CompletePassthrough(ctx context.Context, clientFormat wire.Format, body []byte) ([]byte, error) {
	return c.complete(ctx, clientFormat, body, false)
}

func (c *Client) complete(ctx context.Context, clientFormat wire.Format, body []byte, sanitize bool) ([]byte, error) {
	switch c.upstreamFormat {
	case wire.FormatAnthropic:
		req, err := parseAsAnthropic(clientFormat, body)
		if err != nil {
			return nil, err
		}
		if sanitize {
			wireconvert.SanitizeAnthropic(req, "")
		}
		resp, err := c.doAnthropic(ctx, req, sanitize)
		if err != nil {
			return nil, err
		}
		return marshalAnthropicAs(clientFormat, resp)
	default:
		req, err := parseAsOpenAI(clientFormat, body)
		if err != nil {
			return nil, err
		}
		if sanitize {
			wireconvert.SanitizeOpenAI(req, "")
		}
		resp, err := c.doOpenAI(ctx, req, sanitize)
		if err != nil {
			return nil, err
		}
		return marshalOpenAIAs(clientFormat, resp)
	}
}

func parseAsOpenAI(clientFormat wire.Format, body []byte) (*openai.Request, error) {
	if clientFormat == wire.FormatOpenAI {
		return openai.ParseRequest(body)
	}
	req, err := anthropic.ParseRequest(body)
	if err != nil {
		return nil, err
	}
	return wireconvert.AnthropicRequestToOpenAI(req), nil
}

func parseAsAnthropic(clientFormat wire.Format, body []byte) (*anthropic.Request, error) {
	if clientFormat == wire.FormatAnthropic {
		return anthropic.ParseRequest(body)
	}
	req, err := openai.ParseRequest(body)
	if err != nil {
		return nil, err
	}
	return wireconvert.OpenAIRequestToAnthropic(req), nil
}

func marshalOpenAIAs(clientFormat wire.Format, resp *openai.Response) ([]byte, error) {
	if clientFormat == wire.FormatOpenAI {
		return openai.MarshalResponse(resp)
	}
	return anthropic.MarshalResponse(wireconvert.AnthropicResponseFromOpenAI(resp))
}

func marshalAnthropicAs(clientFormat wire.Format, resp *anthropic.Response) ([]byte, error) {
	if clientFormat == wire.FormatAnthropic {
		return anthropic.MarshalResponse(resp)
	}
	return openai.MarshalResponse(wireconvert.OpenAIResponseFromAnthropic(resp))
}

func (c *Client) doOpenAI(ctx context.Context, req *openai.Request, allowRetry bool) (*openai.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, gwerrors.Newf(gwerrors.KindUpstreamUnavailable, err, "marshal upstream request: %v", err)
	}

	resp, err := c.transport.Post(ctx, c.completionsPath(), c.authHeaders(), body)
	if err == nil {
		var out openai.Response
		if jerr := json.Unmarshal(resp.Body, &out); jerr != nil {
			return nil, gwerrors.Newf(gwerrors.KindUpstreamUnavailable, jerr, "decode upstream response: %v", jerr)
		}
		return &out, nil
	}

	if handled, retried := c.maybeRetryOpenAI(ctx, req, err, allowRetry); retried {
		return handled, nil
	}
	return nil, humanize(c.model, err)
}

func (c *Client) maybeRetryOpenAI(ctx context.Context, req *openai.Request, err error, allowRetry bool) (*openai.Response, bool) {
	ge, ok := gwerrors.As(err)
	if !ok {
		return nil, false
	}
	c.handleAuthFailure(ge)

	if !allowRetry || ge.Kind != gwerrors.KindUpstreamBadRequest {
		return nil, false
	}
	if wireconvert.IsContextOverflow(ge.Message) {
		return nil, false
	}
	kind, ok := wireconvert.MatchFixablePattern(ge.Message)
	if !ok {
		return nil, false
	}
	wireconvert.SanitizeOpenAI(req, kind)
	resp, retryErr := c.doOpenAI(ctx, req, false)
	if retryErr != nil {
		return nil, false
	}
	return resp, true
}

func (c *Client) doAnthropic(ctx context.Context, req *anthropic.Request, allowRetry bool) (*anthropic.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, gwerrors.Newf(gwerrors.KindUpstreamUnavailable, err, "marshal upstream request: %v", err)
	}

	resp, err := c.transport.Post(ctx, c.completionsPath(), c.authHeaders(), body)
	if err == nil {
		var out anthropic.Response
		if jerr := json.Unmarshal(resp.Body, &out); jerr != nil {
			return nil, gwerrors.Newf(gwerrors.KindUpstreamUnavailable, jerr, "decode upstream response: %v", jerr)
		}
		return &out, nil
	}

	if handled, retried := c.maybeRetryAnthropic(ctx, req, err, allowRetry); retried {
		return handled, nil
	}
	return nil, humanize(c.model, err)
}

func (c *Client) maybeRetryAnthropic(ctx context.Context, req *anthropic.Request, err error, allowRetry bool) (*anthropic.Response, bool) {
	ge, ok := gwerrors.As(err)
	if !ok {
		return nil, false
	}
	c.handleAuthFailure(ge)

	if !allowRetry || ge.Kind != gwerrors.KindUpstreamBadRequest {
		return nil, false
	}
	if wireconvert.IsContextOverflow(ge.Message) {
		return nil, false
	}
	kind, ok := wireconvert.MatchFixablePattern(ge.Message)
	if !ok {
		return nil, false
	}
	wireconvert.SanitizeAnthropic(req, kind)
	resp, retryErr := c.doAnthropic(ctx, req, false)
	if retryErr != nil {
		return nil, false
	}
	return resp, true
}

func (c *Client) handleAuthFailure(ge *gwerrors.GatewayError) {
	if ge.Kind == gwerrors.KindUnauthenticated && c.authCache != nil {
		c.authCache.InvalidateOne(c.apiKey)
	}
}
