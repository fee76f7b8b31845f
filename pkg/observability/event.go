// Package observability defines the gateway's out-of-band transaction
// event record and the fire-and-forget pipeline that writes it to a
// durable store without ever blocking the request hot path.
package observability

import "time"

// EventType names the kind of transaction-lifecycle occurrence an Event
// records.
type EventType string

const (
	EventRequestReceived  EventType = "request_received"
	EventRequestHookRun   EventType = "request_hook_run"
	EventUpstreamCalled   EventType = "upstream_called"
	EventResponseHookRun  EventType = "response_hook_run"
	EventBlockCompleted   EventType = "block_completed"
	EventPolicyBlocked    EventType = "policy_blocked"
	EventStreamClosed     EventType = "stream_closed"
	EventTransactionError EventType = "transaction_error"

	// EventPassthroughFallback fires when a policy-modified request is
	// rejected upstream as malformed and the driver retries with the
	// client's original, unmodified request.
	EventPassthroughFallback EventType = "passthrough_fallback"

	// EventRuleViolated fires once per violated rule from the
	// parallel-rules reference policy (pkg/policy/rulespolicy), not once
	// per aggregated policy.Block.
	EventRuleViolated EventType = "policy.parallel_rules.rule_violated"

	// EventJudgeEvaluationComplete fires once per judge-LLM call made by
	// the tool-call judge reference policy (pkg/policy/judgepolicy),
	// whether or not the verdict crossed the block threshold.
	EventJudgeEvaluationComplete EventType = "policy.judge.evaluation_complete"
)

// Event is one durable, append-only record keyed by (transaction id,
// sequence). Seq is assigned by the Emitter at Emit time and forms a
// monotonic, gap-free run per transaction starting at 0.
type Event struct {
	TransactionID string
	SessionID     string
	Seq           uint64
	Type          EventType
	Timestamp     time.Time

	PolicyName string
	Model      string

	// Severity is optional; empty means the default/informational level.
	Severity string

	// Detail carries type-specific structured data (e.g. the policy's
	// block reason, the upstream status code). Kept as a generic map
	// rather than per-EventType structs since the store treats all
	// events uniformly.
	Detail map[string]interface{}
}

// EventStore durably persists Events. The in-process pipeline writes
// through this interface only from the Emitter's drain goroutine, never
// from a request goroutine directly.
type EventStore interface {
	Append(e Event) error
}
