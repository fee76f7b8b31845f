// Package upstreamhttp is the low-level HTTP transport the upstream
// client package builds on: request construction, response buffering,
// raw-body passthrough, and error classification into gwerrors kinds.
package upstreamhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/luthien/gateway/pkg/gwerrors"
)

// DefaultClient is a shared HTTP client tuned for long-lived streaming
// connections to upstream LLM providers: no client-side timeout (stream
// duration is bounded by context instead), but a bounded idle-connection
// pool so repeated calls to the same provider reuse connections.
var DefaultClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Client performs requests against a single upstream provider base URL.
type Client struct {
	client  *http.Client
	baseURL string
	model   string
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Model   string

	// HTTPClient overrides the underlying client. Defaults to
	// DefaultClient.
	HTTPClient *http.Client
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = DefaultClient
	}
	return &Client{client: client, baseURL: cfg.BaseURL, model: cfg.Model}
}

// Request describes a single upstream call.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string

	// Body is the already-serialized request payload. Callers that hold
	// a Go value should marshal it themselves (via wire codecs) so the
	// exact bytes sent are inspectable for retry-with-fix comparisons.
	Body []byte
}

// Response is a fully buffered upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bodyReader)
	if err != nil {
		return nil, gwerrors.Newf(gwerrors.KindUpstreamUnavailable, err, "build upstream request: %v", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

// classify maps a completed HTTP round trip's status code to the
// corresponding gwerrors.Kind. statusCode is -1 for transport-level
// failures (no response received at all).
func classify(model string, statusCode int, body []byte, cause error) *gwerrors.GatewayError {
	switch {
	case statusCode == -1:
		return gwerrors.NewUpstream(gwerrors.KindUpstreamUnavailable, model, statusCode, fmt.Sprintf("upstream request failed: %v", cause), cause)
	case statusCode == http.StatusUnauthorized:
		return gwerrors.NewUpstream(gwerrors.KindUnauthenticated, model, statusCode, "upstream rejected credentials", nil)
	case statusCode >= 500:
		return gwerrors.NewUpstream(gwerrors.KindUpstreamUnavailable, model, statusCode, fmt.Sprintf("upstream returned %d", statusCode), nil)
	case statusCode >= 400:
		return gwerrors.NewUpstream(gwerrors.KindUpstreamBadRequest, model, statusCode, string(body), nil)
	default:
		return nil
	}
}

// Do performs req and buffers the full response body. Non-2xx statuses are
// returned as a classified *gwerrors.GatewayError alongside the Response
// (the body is still populated so callers needing the raw error payload,
// e.g. for sanitizer-fix pattern matching, can inspect it).
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classify(c.model, -1, nil, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, gwerrors.Newf(gwerrors.KindUpstreamUnavailable, err, "read upstream response: %v", err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}
	if gerr := classify(c.model, httpResp.StatusCode, body, nil); gerr != nil {
		return resp, gerr
	}
	return resp, nil
}

// DoJSON performs req and decodes a successful response body into result.
func (c *Client) DoJSON(ctx context.Context, req Request, result interface{}) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return gwerrors.Newf(gwerrors.KindUpstreamUnavailable, err, "decode upstream response: %v", err)
	}
	return nil
}

// DoStream performs req and returns the live response for the caller to
// read incrementally (the stream assembler reads SSE events directly off
// Body). The caller must close the returned response's Body. A non-2xx
// status is read fully, classified, and returned as an error instead.
func (c *Client) DoStream(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classify(c.model, -1, nil, err)
	}

	if httpResp.StatusCode >= 400 {
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(httpResp.Body)
		return nil, classify(c.model, httpResp.StatusCode, body, nil)
	}

	return httpResp, nil
}

// Post is a convenience wrapper over Do for the common POST-with-body
// case.
func (c *Client) Post(ctx context.Context, path string, headers map[string]string, body []byte) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Headers: headers, Body: body})
}

// PostStream is a convenience wrapper over DoStream for the common
// streaming POST case.
func (c *Client) PostStream(ctx context.Context, path string, headers map[string]string, body []byte) (*http.Response, error) {
	return c.DoStream(ctx, Request{Method: http.MethodPost, Path: path, Headers: headers, Body: body})
}
