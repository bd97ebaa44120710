// Package executors implements the type-specific node executors behind the
// engine's uniform contract. Each executor receives the built input context,
// returns a result envelope on success and a typed error on failure; the
// per-node wrapper owns retries, timeouts and caching.
package executors

import (
	"github.com/lyzr/agentchain/chain/condition"
	"github.com/lyzr/agentchain/common/sdk"
)

// eval is shared across executors so compiled expressions are reused between
// condition nodes and recursive convergence checks.
var eval = condition.NewEvaluator()

// Defaults returns the executor registry with every built-in node kind.
func Defaults() map[sdk.NodeType]sdk.Executor {
	return map[sdk.NodeType]sdk.Executor{
		sdk.NodeTypeTool:           Tool,
		sdk.NodeTypeLLM:            LLM,
		sdk.NodeTypeAgent:          Agent,
		sdk.NodeTypeCondition:      Condition,
		sdk.NodeTypeLoop:           Loop,
		sdk.NodeTypeParallel:       Parallel,
		sdk.NodeTypeRecursive:      Recursive,
		sdk.NodeTypeNestedWorkflow: NestedWorkflow,
	}
}

func success(output interface{}) *sdk.NodeExecutionResult {
	return &sdk.NodeExecutionResult{Success: true, Output: output}
}
