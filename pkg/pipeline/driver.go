// Package pipeline drives a single gateway transaction through its four
// phases — ingress, request hook, upstream call + response hook, egress —
// binding the policy descriptor active at ingress for the transaction's
// entire lifetime and translating every policy block or upstream failure
// into a wire-format-appropriate client response.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/luthien/gateway/pkg/observability"
	"github.com/luthien/gateway/pkg/policy"
	"github.com/luthien/gateway/pkg/policyregistry"
	"github.com/luthien/gateway/pkg/telemetry"
	"github.com/luthien/gateway/pkg/txn"
	"github.com/luthien/gateway/pkg/upstream"
	"github.com/luthien/gateway/pkg/wire"
)

// Driver runs transactions against a single upstream, with the policy
// bound at ingress from Active's current snapshot.
type Driver struct {
	upstream  *upstream.Client
	active    *policyregistry.Active
	emitter   *observability.Emitter
	tracer    trace.Tracer
	telemetry *telemetry.Settings
}

// Config constructs a Driver.
type Config struct {
	Upstream *upstream.Client
	Active   *policyregistry.Active
	Emitter  *observability.Emitter

	// Telemetry controls whether and how spans are recorded. Nil disables
	// tracing (a no-op tracer is used).
	Telemetry *telemetry.Settings
}

// New builds a Driver from cfg.
func New(cfg Config) *Driver {
	settings := cfg.Telemetry
	if settings == nil {
		settings = telemetry.DefaultSettings()
	}
	return &Driver{
		upstream:  cfg.Upstream,
		active:    cfg.Active,
		emitter:   cfg.Emitter,
		tracer:    telemetry.GetTracer(settings),
		telemetry: settings,
	}
}

// Handle runs one transaction to completion, writing the client response
// (or a refusal, or an error envelope) to w. ctx should carry the inbound
// HTTP request's cancellation so an abandoned connection stops the
// transaction's upstream call and hook evaluation promptly. body is the
// raw, already size-limited inbound request.
func (d *Driver) Handle(ctx context.Context, w http.ResponseWriter, format wire.Format, body []byte) {
	receivedAt := time.Now()

	ctx, rootSpan := d.tracer.Start(ctx, "gateway.transaction")
	defer rootSpan.End()

	ingress, ierr := telemetry.RecordSpan(ctx, d.tracer, telemetry.SpanOptions{Name: "pipeline.ingress", EndWhenDone: true},
		func(ctx context.Context, span trace.Span) (ingressResult, error) {
			model, streamFlag, sessionID, req, err := parseRequest(format, body)
			return ingressResult{Model: model, Stream: streamFlag, SessionID: sessionID, Req: req}, err
		})
	if ierr != nil {
		d.writeError(w, format, ierr)
		return
	}

	descriptor := d.active.Snapshot()
	transaction := txn.New(format, ingress.Model, ingress.Stream, descriptor.ClassRef, receivedAt).WithSessionID(ingress.SessionID)
	w.Header().Set("X-Call-Id", transaction.ID)
	rootSpan.SetAttributes(
		attribute.String("gateway.transaction_id", transaction.ID),
		attribute.Bool("gateway.stream", ingress.Stream),
	)
	rootSpan.SetAttributes(telemetry.TransactionAttributes(
		string(format), ingress.Model, d.telemetry.WithPolicyClassID(descriptor.ClassRef))...)

	d.emit(transaction, observability.EventRequestReceived, descriptor.ClassRef, ingress.Model, nil)

	// A second parse gives the policy context its own copy of the request,
	// untouched by any in-place mutation OnRequest makes to ingress.Req.
	_, _, _, originalReq, _ := parseRequest(format, body)
	pc := policy.NewContext(transaction.ID, ingress.SessionID, d.emitter, originalReq, nil)

	defer func() {
		if r := recover(); r != nil {
			d.emit(transaction, observability.EventTransactionError, descriptor.ClassRef, ingress.Model,
				map[string]interface{}{"panic": toPanicString(r)})
		}
		descriptor.Policy.OnStreamClosed(ctx, pc)
		d.emit(transaction, observability.EventStreamClosed, descriptor.ClassRef, ingress.Model, nil)
		if d.emitter != nil {
			d.emitter.ForgetTransaction(transaction.ID)
		}
	}()

	if ingress.Stream {
		d.runStreaming(ctx, w, format, ingress.Req, transaction, descriptor, pc)
		return
	}
	d.runNonStreaming(ctx, w, format, ingress.Req, transaction, descriptor, pc)
}

// ingressResult is phase 1's output: the parsed, not-yet-hooked request
// plus the fields the pipeline needs before a Transaction can be
// constructed.
type ingressResult struct {
	Model     string
	Stream    bool
	SessionID string
	Req       interface{}
}

func (d *Driver) emit(t *txn.Transaction, typ observability.EventType, policyName, model string, detail map[string]interface{}) {
	if d.emitter == nil {
		return
	}
	d.emitter.Emit(observability.Event{
		TransactionID: t.ID,
		SessionID:     t.SessionID,
		Type:          typ,
		Timestamp:     time.Now(),
		PolicyName:    policyName,
		Model:         model,
		Detail:        detail,
	})
}

func toPanicString(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", r)
}
