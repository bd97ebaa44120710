package executors

import (
	"context"
	"fmt"
	"sync"

	"github.com/lyzr/agentchain/common/sdk"
)

// Parallel runs each branch as an independent subgraph. Branch admission is
// bounded by max_concurrency on top of the engine's weighted limiter. Under
// the halt policy the first failed branch cancels its siblings and fails the
// node; under the other policies failures are reported in their slot without
// affecting siblings.
func Parallel(ctx context.Context, eng sdk.Engine, node *sdk.NodeConfig, input map[string]interface{}) (*sdk.NodeExecutionResult, error) {
	halt := eng.Options().FailurePolicy == sdk.FailureHalt
	branchCtx := ctx
	var cancel context.CancelFunc
	if halt {
		branchCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	maxConcurrency := node.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = len(node.Branches)
	}
	slots := make(chan struct{}, maxConcurrency)

	branchOutputs := make([]interface{}, len(node.Branches))
	var wg sync.WaitGroup
	for i, branch := range node.Branches {
		wg.Add(1)
		go func(i int, branch []string) {
			defer wg.Done()
			select {
			case slots <- struct{}{}:
				defer func() { <-slots }()
			case <-branchCtx.Done():
				branchOutputs[i] = branchFailure(branchCtx.Err().Error())
				return
			}
			out := runBranch(branchCtx, eng, branch)
			branchOutputs[i] = out
			if halt && !branchSucceeded(out) {
				cancel()
			}
		}(i, branch)
	}
	wg.Wait()

	if halt {
		for i, out := range branchOutputs {
			if !branchSucceeded(out) {
				return nil, sdk.NewExecutorError(node.ID, "branch %d failed: %s", i, branchError(out))
			}
		}
	}

	output := make(map[string]interface{}, len(branchOutputs))
	for i, out := range branchOutputs {
		output[fmt.Sprintf("branch_%d", i)] = out
	}
	return success(output), nil
}

// runBranch executes one branch and reduces it to the last node's output.
func runBranch(ctx context.Context, eng sdk.Engine, branch []string) interface{} {
	results, err := eng.ExecuteSubgraph(ctx, branch, nil)
	if err != nil {
		return branchFailure(err.Error())
	}
	for id, res := range results {
		if !res.Success {
			return branchFailure(fmt.Sprintf("node %s: %s", id, res.Error))
		}
	}
	last := branch[len(branch)-1]
	if res, ok := results[last]; ok {
		return map[string]interface{}{"success": true, "output": res.Output}
	}
	return branchFailure("branch produced no result")
}

func branchFailure(msg string) interface{} {
	return map[string]interface{}{"success": false, "error": msg}
}

func branchSucceeded(out interface{}) bool {
	slot, _ := out.(map[string]interface{})
	ok, _ := slot["success"].(bool)
	return ok
}

func branchError(out interface{}) string {
	slot, _ := out.(map[string]interface{})
	if msg, ok := slot["error"].(string); ok {
		return msg
	}
	return "branch failed"
}
