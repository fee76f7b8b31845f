package policyregistry

import (
	"sync/atomic"
	"time"

	"github.com/luthien/gateway/pkg/policy"
)

// Descriptor is the immutable bundle an installed policy is identified by.
// A transaction binds to whichever Descriptor is active at the moment it
// enters the pipeline's ingress phase and keeps using that same instance
// for its entire lifetime, even if an admin swap happens mid-flight.
type Descriptor struct {
	ClassRef  string
	Config    map[string]interface{}
	Policy    policy.Policy
	EnabledBy string
	EnabledAt time.Time
}

// Active holds the single process-wide active-policy descriptor behind an
// atomic pointer. Writers (the admin swap endpoint) replace the pointer
// wholesale; readers (transactions entering the pipeline) load a snapshot
// once and never need a lock afterward, per the design note that active
// policy swap must never retarget a transaction already in flight.
type Active struct {
	ptr atomic.Pointer[Descriptor]
}

// NewActive creates an Active holding initial as the first active
// descriptor.
func NewActive(initial *Descriptor) *Active {
	a := &Active{}
	a.ptr.Store(initial)
	return a
}

// Snapshot returns the currently active descriptor. Safe for concurrent use
// with Swap.
func (a *Active) Snapshot() *Descriptor {
	return a.ptr.Load()
}

// Swap installs next as the new active descriptor and returns the
// previously active one. The previous descriptor's Policy instance is left
// to be garbage-collected once the last transaction bound to it completes;
// Swap does not (and cannot) know when that is.
func (a *Active) Swap(next *Descriptor) *Descriptor {
	return a.ptr.Swap(next)
}
