// Package policyregistry resolves a policy class reference to a
// constructable policy.Policy, and holds the single atomically-swappable
// active-policy descriptor the admin control surface installs into.
package policyregistry

import (
	"fmt"
	"sync"

	"github.com/luthien/gateway/pkg/policy"
	"github.com/luthien/gateway/pkg/schema"
)

// Factory builds a policy.Policy from an admin-submitted config. config has
// already been validated against ConfigSchema before Factory is called.
type Factory func(config map[string]interface{}) (policy.Policy, error)

// classEntry is one registered policy class.
type classEntry struct {
	factory      Factory
	configSchema schema.Validator
}

// Registry maps a policy class reference string (e.g.
// "tool_call_judge", "parallel_rules") to its Factory and declared config
// schema. One process-wide Registry backs the admin policy-swap endpoint.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]classEntry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]classEntry)}
}

// RegisterClass registers a policy class under ref. configSchema may be nil
// if the class takes no admin-configurable fields.
func (r *Registry) RegisterClass(ref string, factory Factory, configSchema schema.Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[ref] = classEntry{factory: factory, configSchema: configSchema}
}

// ErrClassNotFound is returned by Build when ref names no registered
// class.
type ErrClassNotFound struct{ Ref string }

func (e *ErrClassNotFound) Error() string {
	return fmt.Sprintf("policyregistry: no policy class registered for %q", e.Ref)
}

// Build validates config against ref's declared schema (if any) and
// constructs the policy. This is the single entry point the admin
// policy-swap endpoint uses: a class ref that can't be resolved, or a
// config that fails schema validation, must never reach Active.Swap.
func (r *Registry) Build(ref string, config map[string]interface{}) (policy.Policy, error) {
	r.mu.RLock()
	entry, ok := r.classes[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrClassNotFound{Ref: ref}
	}

	if entry.configSchema != nil {
		if err := entry.configSchema.Validate(config); err != nil {
			return nil, fmt.Errorf("policyregistry: config rejected for %q: %w", ref, err)
		}
	}

	p, err := entry.factory(config)
	if err != nil {
		return nil, fmt.Errorf("policyregistry: building %q: %w", ref, err)
	}
	return p, nil
}

// ClassRefs lists every registered class reference.
func (r *Registry) ClassRefs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.classes))
	for ref := range r.classes {
		refs = append(refs, ref)
	}
	return refs
}
