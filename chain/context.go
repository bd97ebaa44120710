package chain

import (
	"strings"

	"github.com/lyzr/agentchain/common/sdk"

	"github.com/lyzr/agentchain/chain/resolver"
)

// buildInput produces the input context for a node from the accumulated
// results. Dependency outputs are exposed under their node ids, declared
// mappings bind placeholders, and the engine injects its reserved fields.
// Any resolution failure fails the node with DependencyError before the
// executor runs; this is non-retryable.
func buildInput(node *sdk.NodeConfig, results map[string]*sdk.NodeExecutionResult,
	workflowID, executionID string, bindings map[string]interface{}) (map[string]interface{}, error) {

	input := make(map[string]interface{})
	var problems []string

	// Dependency outputs keyed by node id, so templates and expressions can
	// reference them without an explicit mapping.
	for _, dep := range node.Dependencies {
		res, exists := results[dep]
		if !exists {
			problems = append(problems, "dependency "+dep+" has no result")
			continue
		}
		if !res.Success {
			problems = append(problems, "dependency "+dep+" failed")
			continue
		}
		input[dep] = res.Output
	}

	for placeholder, mapping := range node.InputMappings {
		if mapping.Source == "" {
			input[placeholder] = mapping.Value
			continue
		}
		res, exists := results[mapping.Source]
		if !exists || !res.Success {
			problems = append(problems, "mapping "+placeholder+": source "+mapping.Source+" unavailable")
			continue
		}
		value, err := resolver.Lookup(res.Output, mapping.Path)
		if err != nil {
			problems = append(problems, "mapping "+placeholder+": "+err.Error())
			continue
		}
		input[placeholder] = value
	}

	if len(problems) > 0 {
		return nil, sdk.NewDependencyError(node.ID, "%s", strings.Join(problems, "; "))
	}

	// Bindings from enclosing composite nodes (loop item vars, recursive
	// state) shadow everything above.
	for key, value := range bindings {
		input[key] = value
	}

	// Full prior-results snapshot for the result.<id>.<path> namespace.
	snapshot := make(map[string]interface{}, len(results))
	for id, res := range results {
		if res.Success {
			snapshot[id] = res.Output
		}
	}
	input[sdk.CtxKeyResults] = snapshot

	input[sdk.CtxKeyWorkflowID] = workflowID
	input[sdk.CtxKeyNodeID] = node.ID
	input[sdk.CtxKeyExecutionID] = executionID
	return input, nil
}
