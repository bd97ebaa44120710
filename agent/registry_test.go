package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentchain/common/sdk"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&sdk.AgentDefinition{Package: "research/summarizer"}))

	def, ok := r.Get("research/summarizer")
	require.True(t, ok)
	assert.Equal(t, "research/summarizer", def.Package)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&sdk.AgentDefinition{}))
}

func TestMergeConfigs(t *testing.T) {
	base := map[string]interface{}{
		"temperature": 0.2,
		"limits":      map[string]interface{}{"rounds": 2.0, "tokens": 1000.0},
		"style":       "terse",
	}
	override := map[string]interface{}{
		"temperature": 0.7,
		"limits":      map[string]interface{}{"rounds": 5.0},
		"style":       nil,
	}

	merged, err := MergeConfigs(base, override)
	require.NoError(t, err)

	assert.Equal(t, 0.7, merged["temperature"])
	// Merge patch: nested objects merge rather than replace.
	limits := merged["limits"].(map[string]interface{})
	assert.Equal(t, 5.0, limits["rounds"])
	assert.Equal(t, 1000.0, limits["tokens"])
	// Null deletes.
	assert.NotContains(t, merged, "style")
}

func TestMergeConfigsEmptySides(t *testing.T) {
	base := map[string]interface{}{"a": 1}

	merged, err := MergeConfigs(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, merged)

	merged, err = MergeConfigs(nil, base)
	require.NoError(t, err)
	assert.Equal(t, base, merged)
}
