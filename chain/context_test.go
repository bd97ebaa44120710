package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentchain/common/sdk"
)

func TestBuildInputDependenciesAndMappings(t *testing.T) {
	node := &sdk.NodeConfig{
		ID:           "b",
		Type:         sdk.NodeTypeTool,
		Dependencies: []string{"a"},
		InputMappings: map[string]sdk.InputMapping{
			"total":    {Source: "a", Path: "sum"},
			"constant": {Value: 42},
		},
	}
	results := map[string]*sdk.NodeExecutionResult{
		"a": {Success: true, Output: map[string]interface{}{"sum": 6.0}},
	}

	input, err := buildInput(node, results, "wf", "exec", nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"sum": 6.0}, input["a"])
	assert.Equal(t, 6.0, input["total"])
	assert.Equal(t, 42, input["constant"])
	assert.Equal(t, "wf", input[sdk.CtxKeyWorkflowID])
	assert.Equal(t, "b", input[sdk.CtxKeyNodeID])
	assert.Equal(t, "exec", input[sdk.CtxKeyExecutionID])

	snapshot, ok := input[sdk.CtxKeyResults].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, snapshot, "a")
}

func TestBuildInputFailedDependency(t *testing.T) {
	node := &sdk.NodeConfig{
		ID:           "b",
		Type:         sdk.NodeTypeTool,
		Dependencies: []string{"a"},
	}
	results := map[string]*sdk.NodeExecutionResult{
		"a": {Success: false, Error: "boom"},
	}

	_, err := buildInput(node, results, "wf", "exec", nil)
	require.Error(t, err)
	assert.Equal(t, sdk.ErrTypeDependency, sdk.ClassifyError(err))
	assert.Contains(t, err.Error(), "dependency a failed")
}

func TestBuildInputBindingsShadow(t *testing.T) {
	node := &sdk.NodeConfig{
		ID:           "body",
		Type:         sdk.NodeTypeTool,
		Dependencies: []string{"a"},
	}
	results := map[string]*sdk.NodeExecutionResult{
		"a": {Success: true, Output: map[string]interface{}{"sum": 6.0}},
	}

	input, err := buildInput(node, results, "wf", "exec", map[string]interface{}{
		"a":    "shadowed",
		"item": "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "shadowed", input["a"])
	assert.Equal(t, "x", input["item"])
}
