package executors

import (
	"context"

	"github.com/lyzr/agentchain/common/sdk"
)

// Recursive iterates a body subgraph while updating named state variables,
// checking the convergence expression at the top of every iteration. State
// fields present in a body node's output replace the current state. Output
// carries the final state, the convergence flag and the iteration count;
// non-convergence after max_iterations is not an error.
func Recursive(ctx context.Context, eng sdk.Engine, node *sdk.NodeConfig, input map[string]interface{}) (*sdk.NodeExecutionResult, error) {
	bodyIDs := node.BodyNodeIDs
	if node.BodyNodeID != "" {
		bodyIDs = []string{node.BodyNodeID}
	}

	state := make(map[string]interface{}, len(node.StateVariables))
	for key, value := range node.StateVariables {
		state[key] = value
	}

	var history []interface{}
	converged := false
	iteration := 0

	for ; iteration <= node.MaxIterations; iteration++ {
		done, err := checkConvergence(node, input, state, iteration)
		if err != nil {
			return nil, err
		}
		if done {
			converged = true
			break
		}
		if iteration == node.MaxIterations {
			break
		}

		bindings := make(map[string]interface{}, len(state)+3)
		for key, value := range state {
			bindings[key] = value
		}
		bindings["state"] = state
		bindings["current_iteration"] = iteration
		if node.PreserveContext {
			bindings["conversation_history"] = history
		}

		results, err := eng.ExecuteSubgraph(ctx, bodyIDs, bindings)
		if err != nil {
			return nil, sdk.NewExecutorError(node.ID, "iteration %d: %v", iteration, err)
		}

		iterationOut := make(map[string]interface{}, len(results))
		for _, id := range bodyIDs {
			res, ok := results[id]
			if !ok {
				continue
			}
			if !res.Success {
				return nil, sdk.NewExecutorError(node.ID, "iteration %d: node %s failed: %s", iteration, id, res.Error)
			}
			iterationOut[id] = res.Output
			if out := res.OutputMap(); out != nil {
				for key := range node.StateVariables {
					if value, exists := out[key]; exists {
						state[key] = value
					}
				}
			}
		}
		history = append(history, iterationOut)
	}

	output := map[string]interface{}{
		"final_state":       state,
		"converged":         converged,
		"current_iteration": iteration,
	}
	if node.PreserveContext {
		output["conversation_history"] = history
	}
	if score, exists := state["consensus_score"]; exists {
		output["consensus_score"] = score
	}
	return success(output), nil
}

// checkConvergence evaluates the convergence expression over the input
// context layered with the current state.
func checkConvergence(node *sdk.NodeConfig, input, state map[string]interface{}, iteration int) (bool, error) {
	scope := make(map[string]interface{}, len(input)+len(state)+2)
	for key, value := range input {
		scope[key] = value
	}
	for key, value := range state {
		scope[key] = value
	}
	scope["state"] = state
	scope["current_iteration"] = iteration

	done, err := eval.EvalBool(node.ConvergenceExpression, scope)
	if err != nil {
		return false, sdk.NewExpressionError(node.ID, "convergence expression %q: %v", node.ConvergenceExpression, err)
	}
	return done, nil
}
