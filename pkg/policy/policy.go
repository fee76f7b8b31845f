// Package policy defines the hook-dispatch contract every gateway policy
// implements, and the per-transaction Context a pipeline driver threads
// through each hook call.
package policy

import (
	"context"
	"time"

	"github.com/luthien/gateway/pkg/observability"
	"github.com/luthien/gateway/pkg/stream"
)

// Policy inspects, mutates, or rejects a transaction at each of five
// pipeline hook points. Implementations embed BasePolicy to get no-op
// defaults for hooks they don't care about, the way the teacher's
// LanguageModelMiddleware leaves unset functional fields as no-ops.
type Policy interface {
	// OnRequest runs once, after parsing and before the upstream call;
	// pre-flight sanitization runs later, inside the upstream client, on
	// the request OnRequest leaves behind. Returning a non-nil *Block refuses the request.
	OnRequest(ctx context.Context, pc *Context, req interface{}) (*Block, error)

	// OnResponse runs once for a non-streaming response, after the
	// upstream call completes. Returning a non-nil *Block replaces the
	// response with a refusal.
	OnResponse(ctx context.Context, pc *Context, resp interface{}) (*Block, error)

	// OnStreamEvent runs for every canonical streaming event as it is
	// assembled. Returning a non-nil *Block truncates the stream at this
	// point with a refusal.
	OnStreamEvent(ctx context.Context, pc *Context, ev stream.Event) (*Block, error)

	// OnBlockComplete runs once a content block is fully assembled
	// (Block.Complete becomes true). This is where a judge policy
	// typically evaluates a completed tool_use block.
	OnBlockComplete(ctx context.Context, pc *Context, block stream.Block) (*Block, error)

	// OnStreamClosed runs exactly once per transaction, whether the
	// stream ended normally, was truncated by a block, or failed. It
	// cannot itself block the response; it is for cleanup/bookkeeping.
	OnStreamClosed(ctx context.Context, pc *Context)

	// Name identifies the policy for the active-policy descriptor and
	// observability events.
	Name() string
}

// Block is returned by a hook to end the transaction early with a
// synthetic refusal instead of the real upstream content.
type Block struct {
	Reason string
}

// Context is the per-transaction state a policy's hooks read and write.
// It is created once at phase 1 entry and is not shared across
// transactions.
type Context struct {
	TransactionID string

	// SessionID is optional, extracted at ingress from a well-known
	// metadata slot in the client's request (OpenAI's "user" field,
	// Anthropic's "metadata.user_id"). Empty when the client didn't send
	// one.
	SessionID string

	// Emitter lets a policy hook record its own named observability
	// events (e.g. one policy.parallel_rules.rule_violated event per
	// violated rule) instead of being limited to the single generic
	// policy_blocked event the driver emits for the aggregated Block.
	// Nil in tests that don't care about observability.
	Emitter *observability.Emitter

	// OriginalRequest is the request object as parsed at ingress, before
	// any hook has mutated it. The driver parses the body a second time to
	// fill it, so it is a separate value from the request OnRequest
	// receives and may mutate in place; it is read-only by convention.
	OriginalRequest interface{}

	// Scratchpad lets a policy carry state between hook calls within one
	// transaction (e.g. a running risk score). Never read or written by
	// the pipeline driver itself.
	Scratchpad map[string]any

	// Keepalive, when called, tells the driver to hold the connection
	// open and suppress any client-visible idle timeout — used by a
	// policy hook that is about to make a slow out-of-band call (e.g.
	// the judge LLM) mid-stream. In a streaming transaction it writes and
	// flushes an SSE comment frame; otherwise it does nothing.
	Keepalive func()

	// OutputFinished is set by the driver once the upstream message has
	// fully stopped; a policy can consult it to tell "called during
	// normal completion" apart from "called because the stream was cut
	// short".
	OutputFinished bool
}

// NewContext creates a Context for a transaction. emitter may be nil
// (observability events from hooks are then silently dropped, matching
// Emitter's own nil-receiver-free design where the driver already checks
// for a nil emitter before emitting).
func NewContext(transactionID, sessionID string, emitter *observability.Emitter, originalRequest interface{}, keepalive func()) *Context {
	if keepalive == nil {
		keepalive = func() {}
	}
	return &Context{
		TransactionID:   transactionID,
		SessionID:       sessionID,
		Emitter:         emitter,
		OriginalRequest: originalRequest,
		Scratchpad:      make(map[string]any),
		Keepalive:       keepalive,
	}
}

// Emit records a policy-originated observability event, filling in the
// transaction and session id from the Context. A nil Emitter (e.g. in a
// unit test that doesn't wire one) makes this a no-op.
func (c *Context) Emit(typ observability.EventType, policyName string, detail map[string]interface{}) {
	if c.Emitter == nil {
		return
	}
	c.Emitter.Emit(observability.Event{
		TransactionID: c.TransactionID,
		SessionID:     c.SessionID,
		Type:          typ,
		Timestamp:     time.Now(),
		PolicyName:    policyName,
		Detail:        detail,
	})
}

// BasePolicy provides no-op implementations of every hook. Concrete
// policies embed it and override only the hooks they need, matching the
// teacher's functional-field-with-defaults shape applied at the method
// level instead of via struct fields (Go interfaces don't support
// optional methods, so embedding a base that no-ops is the idiomatic
// substitute).
type BasePolicy struct{}

func (BasePolicy) OnRequest(ctx context.Context, pc *Context, req interface{}) (*Block, error) {
	return nil, nil
}

func (BasePolicy) OnResponse(ctx context.Context, pc *Context, resp interface{}) (*Block, error) {
	return nil, nil
}

func (BasePolicy) OnStreamEvent(ctx context.Context, pc *Context, ev stream.Event) (*Block, error) {
	return nil, nil
}

func (BasePolicy) OnBlockComplete(ctx context.Context, pc *Context, block stream.Block) (*Block, error) {
	return nil, nil
}

func (BasePolicy) OnStreamClosed(ctx context.Context, pc *Context) {}
