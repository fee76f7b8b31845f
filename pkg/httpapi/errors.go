package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/luthien/gateway/pkg/gwerrors"
	"github.com/luthien/gateway/pkg/wire"
	"github.com/luthien/gateway/pkg/wire/anthropic"
	"github.com/luthien/gateway/pkg/wire/openai"
)

// statusForKind mirrors pkg/pipeline's mapping for the one error kind
// httpapi itself ever produces directly (a request body rejected before
// it reaches the driver).
func statusForKind(kind gwerrors.Kind) int {
	switch kind {
	case gwerrors.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case gwerrors.KindPayloadInvalid:
		return http.StatusBadRequest
	case gwerrors.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func refusalEnvelope(format wire.Format, message string) []byte {
	if format == wire.FormatAnthropic {
		b, _ := json.Marshal(anthropic.NewErrorEnvelope("invalid_request_error", message))
		return b
	}
	b, _ := json.Marshal(openai.NewErrorEnvelope("invalid_request_error", message))
	return b
}
