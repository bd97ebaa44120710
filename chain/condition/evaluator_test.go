package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vars() map[string]interface{} {
	return map[string]interface{}{
		"a":     map[string]interface{}{"sum": 6.0},
		"score": 0.9,
		"name":  "agent",
	}
}

func TestEvalBoolCEL(t *testing.T) {
	e := NewEvaluator()

	cases := []struct {
		expr string
		want bool
	}{
		{"a.sum > 5", true},
		{"a.sum > 10", false},
		{"score >= 0.8 && name == 'agent'", true},
		{"name == 'other'", false},
	}
	for _, tc := range cases {
		got, err := e.EvalBool(tc.expr, vars())
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestEvalExprLang(t *testing.T) {
	e := NewEvaluator()

	got, err := e.EvalBool(`expr:score >= 0.8 and name == "agent"`, vars())
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvalCompileError(t *testing.T) {
	e := NewEvaluator()
	_, err := e.EvalBool("a.sum >>> 5", vars())
	assert.Error(t, err)
}

func TestEvalNonIdentifierKeysIgnored(t *testing.T) {
	e := NewEvaluator()
	scope := vars()
	// Keys that are not valid identifiers must not break compilation.
	scope["weird-key"] = 1

	got, err := e.EvalBool("a.sum > 5", scope)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0.0))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy(1))
	assert.True(t, Truthy(map[string]interface{}{}))
}

func TestProgramCache(t *testing.T) {
	e := NewEvaluator()
	require.Equal(t, 0, e.CacheSize())

	_, err := e.EvalBool("a.sum > 5", vars())
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	// Same expression and variable set reuses the compiled program.
	_, err = e.EvalBool("a.sum > 5", vars())
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}
