package executors

import (
	"context"

	"github.com/lyzr/agentchain/chain/resolver"
	"github.com/lyzr/agentchain/common/sdk"
)

// Loop executes the body subgraph once per item of items_source, binding
// item_var for each iteration. Iterations run sequentially; outputs keep
// item-index order. A non-iterable source fails the node without retry.
func Loop(ctx context.Context, eng sdk.Engine, node *sdk.NodeConfig, input map[string]interface{}) (*sdk.NodeExecutionResult, error) {
	source, err := resolver.Lookup(input, node.ItemsSource)
	if err != nil {
		return nil, sdk.NewDependencyError(node.ID, "items_source %s: %v", node.ItemsSource, err)
	}
	items, ok := source.([]interface{})
	if !ok {
		return nil, sdk.NewDependencyError(node.ID, "items_source %s is %T, expected an array", node.ItemsSource, source)
	}

	if node.MaxIterations > 0 && len(items) > node.MaxIterations {
		items = items[:node.MaxIterations]
	}

	iterations := make([]interface{}, 0, len(items))
	for idx, item := range items {
		bindings := map[string]interface{}{
			node.ItemVar: item,
			"loop_index": idx,
		}
		results, err := eng.ExecuteSubgraph(ctx, node.BodyNodeIDs, bindings)
		if err != nil {
			return nil, sdk.NewExecutorError(node.ID, "iteration %d: %v", idx, err)
		}

		outputs := make(map[string]interface{}, len(results))
		for id, res := range results {
			if !res.Success {
				return nil, sdk.NewExecutorError(node.ID, "iteration %d: node %s failed: %s", idx, id, res.Error)
			}
			outputs[id] = res.Output
		}
		iterations = append(iterations, outputs)
	}

	return success(map[string]interface{}{
		"iterations": iterations,
		"count":      len(iterations),
	}), nil
}
