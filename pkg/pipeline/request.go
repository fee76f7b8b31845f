package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/luthien/gateway/pkg/gwerrors"
	"github.com/luthien/gateway/pkg/wire"
	"github.com/luthien/gateway/pkg/wire/anthropic"
	"github.com/luthien/gateway/pkg/wire/openai"
)

// parseRequest decodes body in the client's wire format, returning the
// fields phase 1 needs plus the parsed request itself (as *openai.Request
// or *anthropic.Request) for the request hook to inspect and, in place,
// mutate. sessionID is extracted from the format-specific metadata slot
// (OpenAI's top-level "user" field, Anthropic's "metadata.user_id") and
// is empty when the client didn't send one.
func parseRequest(format wire.Format, body []byte) (model string, stream bool, sessionID string, req interface{}, err error) {
	switch format {
	case wire.FormatAnthropic:
		r, perr := anthropic.ParseRequest(body)
		if perr != nil {
			return "", false, "", nil, perr
		}
		if r.Metadata != nil {
			sessionID = r.Metadata.UserID
		}
		return r.Model, r.Stream, sessionID, r, nil
	default:
		r, perr := openai.ParseRequest(body)
		if perr != nil {
			return "", false, "", nil, perr
		}
		return r.Model, r.Stream, r.User, r, nil
	}
}

// parseResponse decodes an upstream response body (already converted to
// the client's wire format by pkg/upstream) into its native Go type, for
// the response hook to inspect and, in place, mutate.
func parseResponse(format wire.Format, body []byte) (interface{}, error) {
	switch format {
	case wire.FormatAnthropic:
		var r anthropic.Response
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, gwerrors.Newf(gwerrors.KindUpstreamUnavailable, err, "decode upstream response: %v", err)
		}
		return &r, nil
	default:
		var r openai.Response
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, gwerrors.Newf(gwerrors.KindUpstreamUnavailable, err, "decode upstream response: %v", err)
		}
		return &r, nil
	}
}

// marshalResponse serializes a response object (possibly mutated by the
// response hook) back to wire bytes.
func marshalResponse(format wire.Format, obj interface{}) ([]byte, error) {
	switch format {
	case wire.FormatAnthropic:
		r, ok := obj.(*anthropic.Response)
		if !ok {
			return nil, fmt.Errorf("pipeline: expected *anthropic.Response, got %T", obj)
		}
		return anthropic.MarshalResponse(r)
	default:
		r, ok := obj.(*openai.Response)
		if !ok {
			return nil, fmt.Errorf("pipeline: expected *openai.Response, got %T", obj)
		}
		return openai.MarshalResponse(r)
	}
}
