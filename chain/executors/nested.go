package executors

import (
	"context"
	"strings"

	"github.com/lyzr/agentchain/chain/resolver"
	"github.com/lyzr/agentchain/common/sdk"
)

// NestedWorkflow runs an inline or referenced sub-workflow to completion
// under an isolated execution id and projects its outputs through
// exposed_outputs. Without a projection the entire sub-result output map is
// exposed keyed by node id.
func NestedWorkflow(ctx context.Context, eng sdk.Engine, node *sdk.NodeConfig, input map[string]interface{}) (*sdk.NodeExecutionResult, error) {
	spec := node.Workflow
	if spec == nil {
		ref, ok := eng.Workflow(node.WorkflowRef)
		if !ok {
			return nil, sdk.NewConfigError(node.ID, "unknown workflow_ref: %s", node.WorkflowRef)
		}
		spec = ref
	}

	sub, err := eng.RunSubWorkflow(ctx, spec, initialContext(input))
	if err != nil {
		return nil, sdk.NewExecutorError(node.ID, "sub-workflow failed: %v", err)
	}
	if !sub.Success {
		return nil, sdk.NewExecutorError(node.ID, "sub-workflow failed: %s", sub.Error)
	}

	outputs := make(map[string]interface{}, len(sub.Output))
	for id, res := range sub.Output {
		if res.Success {
			outputs[id] = res.Output
		}
	}

	var projected map[string]interface{}
	if len(node.ExposedOutputs) == 0 {
		projected = outputs
	} else {
		projected = make(map[string]interface{}, len(node.ExposedOutputs))
		var missing []string
		for alias, path := range node.ExposedOutputs {
			value, err := resolver.Lookup(outputs, path)
			if err != nil {
				missing = append(missing, alias+": "+err.Error())
				continue
			}
			projected[alias] = value
		}
		if len(missing) > 0 {
			return nil, sdk.NewDependencyError(node.ID, "exposed_outputs: %s", strings.Join(missing, "; "))
		}
	}

	res := success(projected)
	if sub.TokenStats.TotalTokens > 0 || sub.TokenStats.APICalls > 0 {
		res.Usage = &sdk.Usage{
			PromptTokens:     sub.TokenStats.PromptTokens,
			CompletionTokens: sub.TokenStats.CompletionTokens,
			TotalTokens:      sub.TokenStats.TotalTokens,
			Cost:             sub.TokenStats.TotalCost,
			APICalls:         sub.TokenStats.APICalls,
			NodeID:           node.ID,
		}
	}
	return res, nil
}

// initialContext strips the engine-injected fields so the sub-workflow sees
// only the mapped inputs.
func initialContext(input map[string]interface{}) map[string]interface{} {
	initial := make(map[string]interface{}, len(input))
	for key, value := range input {
		switch key {
		case sdk.CtxKeyWorkflowID, sdk.CtxKeyNodeID, sdk.CtxKeyExecutionID,
			sdk.CtxKeyAttemptNumber, sdk.CtxKeyResults:
			continue
		}
		initial[key] = value
	}
	return initial
}
