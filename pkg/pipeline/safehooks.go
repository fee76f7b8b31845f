package pipeline

import (
	"context"
	"fmt"

	"github.com/luthien/gateway/pkg/policy"
	"github.com/luthien/gateway/pkg/stream"
)

// The safe* wrappers recover from a panicking policy hook and turn it into
// a fail-secure block, the same way a judge-evaluation error is already
// treated as a violation rather than let through. A policy author's bug
// must never turn into silently unfiltered content reaching the client.

func safeOnRequest(ctx context.Context, p policy.Policy, pc *policy.Context, req interface{}) (block *policy.Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			block, err = failSecure(p, "OnRequest", r)
		}
	}()
	return p.OnRequest(ctx, pc, req)
}

func safeOnResponse(ctx context.Context, p policy.Policy, pc *policy.Context, resp interface{}) (block *policy.Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			block, err = failSecure(p, "OnResponse", r)
		}
	}()
	return p.OnResponse(ctx, pc, resp)
}

func safeOnStreamEvent(ctx context.Context, p policy.Policy, pc *policy.Context, ev stream.Event) (block *policy.Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			block, err = failSecure(p, "OnStreamEvent", r)
		}
	}()
	return p.OnStreamEvent(ctx, pc, ev)
}

func safeOnBlockComplete(ctx context.Context, p policy.Policy, pc *policy.Context, b stream.Block) (block *policy.Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			block, err = failSecure(p, "OnBlockComplete", r)
		}
	}()
	return p.OnBlockComplete(ctx, pc, b)
}

func failSecure(p policy.Policy, hook string, recovered interface{}) (*policy.Block, error) {
	err := fmt.Errorf("policy %s: panic in %s: %v", p.Name(), hook, recovered)
	return &policy.Block{Reason: "this request was blocked after an internal policy error"}, err
}
