// Package txn defines the Transaction: the per-request unit of state that
// flows through every phase of the pipeline and is referenced by every
// observability event emitted for a single client call.
package txn

import (
	"time"

	"github.com/google/uuid"

	"github.com/luthien/gateway/pkg/wire"
)

// Transaction identifies and describes a single gateway call from ingress
// to egress. It is created once per request and never mutated after the
// fields below are set at phase 1 entry, except for the timestamps the
// pipeline records as phases complete.
type Transaction struct {
	// ID is a random v4 UUID, set once at ingress and returned to the
	// client via the X-Call-Id header on every response the pipeline
	// driver writes after ingress parsing has succeeded.
	ID string

	// SessionID is optional, extracted at ingress from the client's
	// format-specific metadata slot. Empty when the client didn't send
	// one.
	SessionID string

	// Format is the wire format the client spoke: openai or anthropic.
	Format wire.Format

	// Model is the model name requested by the client, taken from the
	// parsed request body.
	Model string

	// Stream reports whether the client asked for a streaming response.
	Stream bool

	// PolicyName is the name of the policy descriptor bound to this
	// transaction at ingress (see pkg/policyregistry). A transaction
	// never observes a later policy swap.
	PolicyName string

	ReceivedAt time.Time
}

// New creates a Transaction with a fresh ID and ReceivedAt timestamp.
func New(format wire.Format, model string, stream bool, policyName string, receivedAt time.Time) *Transaction {
	return &Transaction{
		ID:         uuid.NewString(),
		Format:     format,
		Model:      model,
		Stream:     stream,
		PolicyName: policyName,
		ReceivedAt: receivedAt,
	}
}

// WithSessionID sets SessionID and returns the same Transaction, for
// chaining onto New at the pipeline's construction site.
func (t *Transaction) WithSessionID(sessionID string) *Transaction {
	t.SessionID = sessionID
	return t
}
