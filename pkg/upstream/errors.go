package upstream

import (
	"fmt"

	"github.com/luthien/gateway/pkg/gwerrors"
	"github.com/luthien/gateway/pkg/wireconvert"
)

// humanize rewrites an upstream-originated error's message into a
// client-facing description that names the model and, where it helps,
// suggests remediation. Errors that are not GatewayErrors (a caller bug,
// not an upstream failure) pass through unchanged.
func humanize(model string, err error) error {
	ge, ok := gwerrors.As(err)
	if !ok {
		return err
	}

	switch ge.Kind {
	case gwerrors.KindUpstreamUnavailable:
		return gwerrors.NewUpstream(ge.Kind, model, ge.StatusCode,
			fmt.Sprintf("the model %q is temporarily unavailable upstream; please retry shortly", model), ge.Cause)
	case gwerrors.KindUnauthenticated:
		return gwerrors.NewUpstream(ge.Kind, model, ge.StatusCode,
			fmt.Sprintf("the credential configured for model %q was rejected upstream", model), ge.Cause)
	case gwerrors.KindUpstreamBadRequest:
		if wireconvert.IsContextOverflow(ge.Message) {
			return gwerrors.NewUpstream(ge.Kind, model, ge.StatusCode,
				fmt.Sprintf("the conversation sent to %q exceeds its context window; compact the conversation or start a new one", model), ge.Cause)
		}
		return gwerrors.NewUpstream(ge.Kind, model, ge.StatusCode,
			fmt.Sprintf("the request to %q was rejected as malformed: %s", model, ge.Message), ge.Cause)
	default:
		return ge
	}
}
