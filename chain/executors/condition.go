package executors

import (
	"context"

	"github.com/lyzr/agentchain/common/sdk"
)

// Condition evaluates the node's expression against the input context and
// publishes {result: <bool>}. The scheduler reads the result to gate the
// true/false branches. Evaluation failures are ExpressionError and never
// retried.
func Condition(ctx context.Context, eng sdk.Engine, node *sdk.NodeConfig, input map[string]interface{}) (*sdk.NodeExecutionResult, error) {
	decision, err := eval.EvalBool(node.Expression, input)
	if err != nil {
		return nil, sdk.NewExpressionError(node.ID, "failed to evaluate %q: %v", node.Expression, err)
	}
	return success(map[string]interface{}{"result": decision}), nil
}
