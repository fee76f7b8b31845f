package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/luthien/gateway/pkg/gwerrors"
	"github.com/luthien/gateway/pkg/observability"
	"github.com/luthien/gateway/pkg/policy"
	"github.com/luthien/gateway/pkg/policyregistry"
	"github.com/luthien/gateway/pkg/telemetry"
	"github.com/luthien/gateway/pkg/txn"
	"github.com/luthien/gateway/pkg/wire"
)

func (d *Driver) runNonStreaming(
	ctx context.Context,
	w http.ResponseWriter,
	format wire.Format,
	reqObj interface{},
	t *txn.Transaction,
	descriptor *policyregistry.Descriptor,
	pc *policy.Context,
) {
	originalBytes, _ := json.Marshal(reqObj)

	reqPhase, _ := telemetry.RecordSpan(ctx, d.tracer, telemetry.SpanOptions{Name: "pipeline.request_hook", EndWhenDone: true},
		func(ctx context.Context, span trace.Span) (hookOutcome, error) {
			block, herr := safeOnRequest(ctx, descriptor.Policy, pc, reqObj)
			if herr != nil {
				// A hook panic still produces a block (fail-secure); the
				// span records the underlying cause without failing the
				// phase, since a recovered panic is handled, not fatal.
				span.RecordError(herr)
			}
			if block != nil {
				telemetry.AddDetailAttributes(span, "gateway.policy_block", map[string]interface{}{"reason": block.Reason})
			}
			return hookOutcome{Block: block}, nil
		})
	d.emit(t, observability.EventRequestHookRun, descriptor.ClassRef, t.Model, nil)

	if reqPhase.Block != nil {
		d.emit(t, observability.EventPolicyBlocked, descriptor.ClassRef, t.Model,
			map[string]interface{}{"reason": reqPhase.Block.Reason, "phase": "request"})
		d.writeRefusal(w, format, t, reqPhase.Block.Reason)
		return
	}

	finalBytes, _ := json.Marshal(reqObj)
	changed := !bytes.Equal(originalBytes, finalBytes)

	upstreamPhase, uerr := telemetry.RecordSpan(ctx, d.tracer, telemetry.SpanOptions{Name: "pipeline.upstream", EndWhenDone: true},
		func(ctx context.Context, span trace.Span) (upstreamOutcome, error) {
			telemetry.AddDetailAttributes(span, "gateway.upstream", map[string]interface{}{"request_hook_changed_body": changed})
			if d.telemetry.RecordRequestBody {
				telemetry.AddDetailAttributes(span, "gateway.upstream", map[string]interface{}{"request_body": string(finalBytes)})
			}
			return d.callUpstreamAndResponseHook(ctx, t, descriptor, pc, format, originalBytes, finalBytes, changed)
		})
	d.emit(t, observability.EventUpstreamCalled, descriptor.ClassRef, t.Model, map[string]interface{}{"error": errString(uerr)})

	if uerr != nil {
		d.emit(t, observability.EventTransactionError, descriptor.ClassRef, t.Model, map[string]interface{}{"error": uerr.Error()})
		d.writeError(w, format, uerr)
		return
	}

	d.emit(t, observability.EventResponseHookRun, descriptor.ClassRef, t.Model, nil)
	if upstreamPhase.Block != nil {
		d.emit(t, observability.EventPolicyBlocked, descriptor.ClassRef, t.Model,
			map[string]interface{}{"reason": upstreamPhase.Block.Reason, "phase": "response"})
		d.writeRefusal(w, format, t, upstreamPhase.Block.Reason)
		return
	}

	_, _ = telemetry.RecordSpan(ctx, d.tracer, telemetry.SpanOptions{Name: "pipeline.egress", EndWhenDone: true},
		func(ctx context.Context, span trace.Span) (struct{}, error) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, werr := w.Write(upstreamPhase.Body)
			return struct{}{}, werr
		})
}

// hookOutcome carries a single hook's refusal decision out of a
// telemetry.RecordSpan closure without abusing the error return for
// control flow.
type hookOutcome struct {
	Block *policy.Block
}

// upstreamOutcome is the combined result of the upstream call and the
// response hook run against its result, matching spec.md's "Upstream +
// response hook" phase grouping.
type upstreamOutcome struct {
	Block *policy.Block
	Body  []byte
}

func (d *Driver) callUpstreamAndResponseHook(
	ctx context.Context,
	t *txn.Transaction,
	descriptor *policyregistry.Descriptor,
	pc *policy.Context,
	format wire.Format,
	originalBytes, finalBytes []byte,
	changed bool,
) (upstreamOutcome, error) {
	respBytes, err := d.upstream.Complete(ctx, format, finalBytes)
	if err != nil && changed && gwerrors.KindOf(err) == gwerrors.KindUpstreamBadRequest {
		d.emit(t, observability.EventPassthroughFallback, descriptor.ClassRef, t.Model,
			map[string]interface{}{"original_error": err.Error()})
		if fallback, ferr := d.upstream.CompletePassthrough(ctx, format, originalBytes); ferr == nil {
			respBytes, err = fallback, nil
		}
	}
	if err != nil {
		return upstreamOutcome{}, err
	}

	respObj, perr := parseResponse(format, respBytes)
	if perr != nil {
		return upstreamOutcome{}, perr
	}

	block, herr := safeOnResponse(ctx, descriptor.Policy, pc, respObj)
	if herr != nil && block == nil {
		// safeOnResponse always pairs a panic with a fail-secure block, but
		// guard against a future hook wrapper that doesn't.
		return upstreamOutcome{}, gwerrors.Newf(gwerrors.KindJudgeFailure, herr, "response hook: %v", herr)
	}
	if block != nil {
		return upstreamOutcome{Block: block}, nil
	}

	out, merr := marshalResponse(format, respObj)
	if merr != nil {
		return upstreamOutcome{}, merr
	}
	return upstreamOutcome{Body: out}, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
