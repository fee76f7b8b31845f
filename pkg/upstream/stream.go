package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/luthien/gateway/pkg/gwerrors"
	"github.com/luthien/gateway/pkg/sse"
	"github.com/luthien/gateway/pkg/stream"
	"github.com/luthien/gateway/pkg/wire"
	"github.com/luthien/gateway/pkg/wire/openai"
	"github.com/luthien/gateway/pkg/wireconvert"
)

// Session reads one streaming upstream response and ingests it into a
// stream.Assembler, regardless of which wire format the upstream speaks.
// The caller (the pipeline driver) reads canonical events off Next and
// re-serializes them into the client's own wire format; Session never
// knows what the client's format is.
type Session struct {
	assembler *stream.Assembler
	reader    *sse.Reader
	body      io.Closer
	format    wire.Format
}

// Assembler returns the session's backing assembler.
func (s *Session) Assembler() *stream.Assembler { return s.assembler }

// Close releases the underlying upstream connection.
func (s *Session) Close() error {
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}

// Next reads and ingests the next upstream SSE event, returning the
// canonical events it produced. Returns io.EOF once the upstream stream is
// exhausted (OpenAI's [DONE] marker or Anthropic's message_stop).
func (s *Session) Next() ([]stream.Event, error) {
	ev, err := s.reader.Next()
	if err != nil {
		return nil, err
	}

	if s.format == wire.FormatAnthropic {
		events, ierr := s.assembler.IngestAnthropicEvent(ev.Name, []byte(ev.Data))
		if ierr != nil {
			return nil, ierr
		}
		if ev.Name == "message_stop" {
			return events, io.EOF
		}
		return events, nil
	}

	if sse.IsOpenAIDone(ev) {
		return nil, io.EOF
	}
	var chunk openai.StreamChunk
	if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
		return nil, gwerrors.Newf(gwerrors.KindStreamMidError, err, "decode upstream stream chunk: %v", err)
	}
	return s.assembler.IngestOpenAIChunk(&chunk), nil
}

// Stream opens a streaming call. Pre-flight sanitization is applied to the
// converted upstream request; streaming calls never auto-retry with a
// sanitizer fix, since by the time a bad-request status is known no bytes
// may yet have been written to the client — the pipeline driver is
// responsible for falling back to a synthetic error event in that case.
func (c *Client) Stream(ctx context.Context, clientFormat wire.Format, body []byte) (*Session, error) {
	return c.stream(ctx, clientFormat, body, true)
}

// StreamPassthrough opens a streaming call without sanitization, for the
// driver's passthrough-fallback retry.
func (c *Client) StreamPassthrough(ctx context.Context, clientFormat wire.Format, body []byte) (*Session, error) {
	return c.stream(ctx, clientFormat, body, false)
}

func (c *Client) stream(ctx context.Context, clientFormat wire.Format, body []byte, sanitize bool) (*Session, error) {
	var reqBody []byte
	var err error

	switch c.upstreamFormat {
	case wire.FormatAnthropic:
		req, perr := parseAsAnthropic(clientFormat, body)
		if perr != nil {
			return nil, perr
		}
		req.Stream = true
		if sanitize {
			wireconvert.SanitizeAnthropic(req, "")
		}
		reqBody, err = json.Marshal(req)
	default:
		req, perr := parseAsOpenAI(clientFormat, body)
		if perr != nil {
			return nil, perr
		}
		req.Stream = true
		if sanitize {
			wireconvert.SanitizeOpenAI(req, "")
		}
		reqBody, err = json.Marshal(req)
	}
	if err != nil {
		return nil, gwerrors.Newf(gwerrors.KindUpstreamUnavailable, err, "marshal upstream request: %v", err)
	}

	resp, err := c.openStream(ctx, reqBody)
	if err != nil {
		return nil, humanize(c.model, err)
	}

	return &Session{
		assembler: stream.NewAssembler(),
		reader:    sse.NewReader(resp.Body),
		body:      resp.Body,
		format:    c.upstreamFormat,
	}, nil
}

func (c *Client) openStream(ctx context.Context, body []byte) (*http.Response, error) {
	resp, err := c.transport.PostStream(ctx, c.completionsPath(), c.authHeaders(), body)
	if err != nil {
		if ge, ok := gwerrors.As(err); ok {
			c.handleAuthFailure(ge)
		}
		return nil, err
	}
	return resp, nil
}
