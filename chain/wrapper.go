package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lyzr/agentchain/common/sdk"
)

const (
	cacheTTL              = 24 * time.Hour
	defaultBackoffSeconds = 1.0
)

// executeNode applies the cross-cutting per-node policy: context persistence,
// single-flight cache lookup, the attempt loop with timeout and backoff,
// output aliasing, schema validation and cache store. It always returns a
// sealed result, never panics out.
func (e *Engine) executeNode(ctx context.Context, r *run, node *sdk.NodeConfig, input map[string]interface{}) *sdk.NodeExecutionResult {
	log := e.log.WithExecutionID(r.executionID).WithNodeID(node.ID)

	if e.opts.PersistIntermediateOutputs {
		if err := e.store.SaveContext(ctx, r.executionID, node.ID, input); err != nil {
			log.Warn("failed to persist input context", "error", err)
		}
	}

	if !e.opts.UseCache || !node.CacheEnabled() {
		return e.runAttempts(ctx, r, node, input)
	}

	key := cacheKey(node, input)
	// Single-flight per key at the cache front: concurrent builders for the
	// same key, in this run or any other sharing the engine, await the first
	// one instead of duplicating work.
	shared, _, _ := e.flight.Do(key, func() (interface{}, error) {
		if data, hit, err := e.cache.Get(ctx, key); err == nil && hit {
			var cached sdk.NodeExecutionResult
			if err := json.Unmarshal(data, &cached); err == nil && cached.Success {
				log.Debug("cache hit", "cache_key", key)
				// Cached usage was billed on the original run.
				cached.Usage = nil
				cached.Metadata.NodeID = node.ID
				return &cached, nil
			}
		}

		res := e.runAttempts(ctx, r, node, input)
		if res.Success {
			if data, err := json.Marshal(res); err == nil {
				if err := e.cache.Set(ctx, key, data, cacheTTL); err != nil {
					log.Warn("failed to store cache entry", "error", err)
				}
			}
		}
		return res, nil
	})
	return shared.(*sdk.NodeExecutionResult)
}

// runAttempts drives the retry loop around a single executor invocation.
func (e *Engine) runAttempts(ctx context.Context, r *run, node *sdk.NodeConfig, input map[string]interface{}) *sdk.NodeExecutionResult {
	executor, ok := e.executors[node.Type]
	if !ok {
		return failedResult(node, time.Now(), 0,
			sdk.NewConfigError(node.ID, "no executor registered for type %s", node.Type))
	}

	backoff := node.BackoffSeconds
	if backoff <= 0 {
		backoff = defaultBackoffSeconds
	}
	maxAttempts := node.Retries + 1
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		input[sdk.CtxKeyAttemptNumber] = attempt

		res, err := e.attempt(ctx, executor, node, input, attempt)
		if err == nil && res != nil && res.Success {
			res.Metadata.NodeID = node.ID
			res.Metadata.Type = node.Type
			res.Metadata.Name = node.Name
			res.Metadata.RetryCount = attempt
			res.Metadata.StartTime = start
			res.Metadata.EndTime = time.Now()
			res.Metadata.Duration = res.Metadata.EndTime.Sub(start).Seconds()
			res.ExecutionTime = res.Metadata.Duration

			applyOutputMappings(node, res)

			if e.opts.PersistIntermediateOutputs {
				if serr := e.store.SaveOutput(ctx, r.executionID, node.ID, res.Output); serr != nil {
					e.log.Warn("failed to persist output", "node_id", node.ID, "error", serr)
				}
			}

			if e.opts.ValidateOutputs {
				if verr := validateOutput(node, res.Output); verr != nil {
					// Demoted, and deterministic, so no further attempts.
					res.Success = false
					res.Error = verr.Error()
					res.Metadata.ErrorType = string(sdk.ErrTypeValidation)
					return res
				}
			}
			return res
		}

		if err == nil && res != nil {
			lastErr = resultError(node.ID, res)
		} else if err != nil {
			lastErr = err
		} else {
			lastErr = sdk.NewExecutorError(node.ID, "executor returned no result")
		}

		if !sdk.Retryable(lastErr) {
			return failedResult(node, start, attempt, lastErr)
		}
		if attempt+1 < maxAttempts {
			delay := time.Duration(backoff * math.Pow(2, float64(attempt)) * float64(time.Second))
			e.log.Debug("retrying node", "node_id", node.ID, "attempt", attempt+1, "backoff", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return failedResult(node, start, attempt, ctx.Err())
			}
		}
	}

	return failedResult(node, start, maxAttempts-1,
		fmt.Errorf("Retry limit exceeded (%d) - last error: %w", maxAttempts, lastErr))
}

// attempt invokes the executor once under its timeout scope and span,
// converting panics into executor errors.
func (e *Engine) attempt(ctx context.Context, executor sdk.Executor, node *sdk.NodeConfig, input map[string]interface{}, attemptNo int) (res *sdk.NodeExecutionResult, err error) {
	attemptCtx := ctx
	if node.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(node.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	var span trace.Span
	attemptCtx, span = e.tracer.Start(attemptCtx, "node.execute",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("node.type", string(node.Type)),
			attribute.Int("node.attempt", attemptNo),
		))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("executor panicked", "node_id", node.ID, "panic", rec, "stack", string(debug.Stack()))
			res = nil
			err = sdk.NewExecutorError(node.ID, "executor panic: %v", rec)
		}
	}()

	res, err = executor(attemptCtx, e, node, input)
	// A tripped deadline wins classification over whatever the executor
	// surfaced while being cancelled.
	if ctxErr := attemptCtx.Err(); ctxErr != nil {
		err = ctxErr
	}
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

// applyOutputMappings publishes aliases of a node's own output fields into
// the output map, so downstream mappings can read the published names.
func applyOutputMappings(node *sdk.NodeConfig, res *sdk.NodeExecutionResult) {
	if len(node.OutputMappings) == 0 {
		return
	}
	out := res.OutputMap()
	if out == nil {
		return
	}
	for alias, field := range node.OutputMappings {
		if value, exists := out[field]; exists {
			out[alias] = value
		}
	}
}

// resultError wraps a failed result's error string, preserving a recorded
// error type for retryability classification.
func resultError(nodeID string, res *sdk.NodeExecutionResult) error {
	msg := res.Error
	if msg == "" {
		msg = "node failed"
	}
	if res.Metadata.ErrorType != "" {
		return &sdk.Error{Type: sdk.ErrorType(res.Metadata.ErrorType), NodeID: nodeID, Msg: msg}
	}
	return sdk.NewExecutorError(nodeID, "%s", msg)
}

// failedResult builds the uniform failure envelope for err.
func failedResult(node *sdk.NodeConfig, start time.Time, retryCount int, err error) *sdk.NodeExecutionResult {
	end := time.Now()
	return &sdk.NodeExecutionResult{
		Success: false,
		Error:   err.Error(),
		Metadata: sdk.NodeMetadata{
			NodeID:     node.ID,
			Type:       node.Type,
			Name:       node.Name,
			StartTime:  start,
			EndTime:    end,
			Duration:   end.Sub(start).Seconds(),
			ErrorType:  string(sdk.ClassifyError(err)),
			RetryCount: retryCount,
		},
		ExecutionTime: end.Sub(start).Seconds(),
	}
}

// cacheKey produces the content-addressed key for a node execution: kind,
// node id, the canonical input context minus engine-injected fields, and the
// canonical config snapshot. Map keys sort during JSON marshaling, which
// gives the canonical form.
func cacheKey(node *sdk.NodeConfig, input map[string]interface{}) string {
	pure := make(map[string]interface{}, len(input))
	for key, value := range input {
		switch key {
		case sdk.CtxKeyWorkflowID, sdk.CtxKeyExecutionID, sdk.CtxKeyAttemptNumber, sdk.CtxKeyResults:
			continue
		}
		pure[key] = value
	}
	inputJSON, _ := json.Marshal(pure)
	configJSON, _ := json.Marshal(node)

	h := sha256.New()
	h.Write([]byte(node.Type))
	h.Write([]byte{0})
	h.Write([]byte(node.ID))
	h.Write([]byte{0})
	h.Write(inputJSON)
	h.Write([]byte{0})
	h.Write(configJSON)
	return "node:" + hex.EncodeToString(h.Sum(nil))
}
