package executors

import (
	"context"

	"github.com/lyzr/agentchain/chain/resolver"
	"github.com/lyzr/agentchain/common/sdk"
)

// Tool executes a tool node: resolves placeholders in tool_args against the
// input context, looks the tool up and runs it. Tool errors are retryable.
func Tool(ctx context.Context, eng sdk.Engine, node *sdk.NodeConfig, input map[string]interface{}) (*sdk.NodeExecutionResult, error) {
	if len(node.AllowedTools) > 0 && !allowed(node.AllowedTools, node.ToolName) {
		return nil, sdk.NewConfigError(node.ID, "tool %s is not in allowed_tools", node.ToolName)
	}

	t, ok := eng.Tools().Get(node.ToolName)
	if !ok {
		return nil, sdk.NewConfigError(node.ID, "unknown tool: %s", node.ToolName)
	}

	resolved, err := resolver.ResolveValue(node.ToolArgs, input)
	if err != nil {
		return nil, sdk.NewDependencyError(node.ID, "failed to resolve tool_args: %v", err)
	}
	args, _ := resolved.(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	out, err := t.Run(ctx, args)
	if err != nil {
		return nil, sdk.NewExecutorError(node.ID, "tool %s failed: %v", node.ToolName, err)
	}
	return success(out), nil
}

func allowed(list []string, name string) bool {
	for _, entry := range list {
		if entry == name {
			return true
		}
	}
	return false
}
