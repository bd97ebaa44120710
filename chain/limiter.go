package chain

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/lyzr/agentchain/common/sdk"
)

// limiter is the weighted admission semaphore shared by a run and all of its
// subgraphs. Capacity equals max_parallel; each node consumes weight
// proportional to its estimated complexity, providing backpressure within a
// level and across nested fan-outs.
type limiter struct {
	sem      *semaphore.Weighted
	capacity int64
}

func newLimiter(maxParallel int) *limiter {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &limiter{
		sem:      semaphore.NewWeighted(int64(maxParallel)),
		capacity: int64(maxParallel),
	}
}

// acquire blocks until weight is available or ctx is done.
func (l *limiter) acquire(ctx context.Context, weight int64) error {
	return l.sem.Acquire(ctx, l.clamp(weight))
}

func (l *limiter) release(weight int64) {
	l.sem.Release(l.clamp(weight))
}

// clamp keeps a node's weight admissible: at least 1, at most capacity so a
// heavy node can still run alone.
func (l *limiter) clamp(weight int64) int64 {
	if weight < 1 {
		weight = 1
	}
	if weight > l.capacity {
		weight = l.capacity
	}
	return weight
}

// nodeWeight estimates admission weight from the node kind and shape. The
// function is deterministic so admission behavior is reproducible.
func nodeWeight(node *sdk.NodeConfig) int64 {
	switch node.Type {
	case sdk.NodeTypeLLM:
		if len(node.Tools) > 0 {
			return 3
		}
		return 2
	case sdk.NodeTypeAgent:
		return 2
	default:
		// tool, condition
		return 1
	}
}

// isComposite reports whether a node kind orchestrates inner subgraphs.
// Composite nodes hold no admission weight themselves: their inner nodes are
// admitted individually, which keeps total in-flight weight bounded without
// deadlocking when a composite's weight would exhaust the capacity its body
// needs.
func isComposite(t sdk.NodeType) bool {
	switch t {
	case sdk.NodeTypeLoop, sdk.NodeTypeParallel, sdk.NodeTypeRecursive, sdk.NodeTypeNestedWorkflow:
		return true
	}
	return false
}
