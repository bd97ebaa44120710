package chain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentchain/agent"
	"github.com/lyzr/agentchain/common/logger"
	"github.com/lyzr/agentchain/common/sdk"
	"github.com/lyzr/agentchain/tool"
)

// mockLLM scripts provider responses per prompt.
type mockLLM struct {
	mu      sync.Mutex
	prompts []string
	fn      func(prompt string) (*sdk.LLMResponse, error)
}

func (m *mockLLM) Generate(ctx context.Context, settings sdk.LLMSettings, prompt string, tools []map[string]interface{}) (*sdk.LLMResponse, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(prompt)
	}
	return &sdk.LLMResponse{Text: prompt, PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
}

func newTestEngine(t *testing.T, opts *sdk.Options, svc sdk.LLMService, register func(*tool.Registry)) *Engine {
	t.Helper()
	tools := tool.NewRegistry()
	tool.RegisterBuiltins(tools)
	if register != nil {
		register(tools)
	}
	return New(EngineOpts{
		Logger:  logger.New("error", "json"),
		Options: opts,
		Tools:   tools,
		LLM:     svc,
	})
}

func workflow(nodes ...*sdk.NodeConfig) *sdk.WorkflowSpec {
	return &sdk.WorkflowSpec{Version: "1.0.0", Name: "test", Nodes: nodes}
}

func sumNode(id string, numbers ...interface{}) *sdk.NodeConfig {
	return &sdk.NodeConfig{
		ID:       id,
		Type:     sdk.NodeTypeTool,
		ToolName: "sum",
		ToolArgs: map[string]interface{}{"numbers": numbers},
	}
}

func TestLinearToolThenLLM(t *testing.T) {
	eng := newTestEngine(t, nil, &mockLLM{}, nil)

	llmNode := &sdk.NodeConfig{
		ID:             "answer",
		Type:           sdk.NodeTypeLLM,
		PromptTemplate: "Total is {{a.sum}}",
		Dependencies:   []string{"a"},
	}
	result, err := eng.Run(context.Background(), workflow(sumNode("a", 1, 2, 3), llmNode), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	require.Contains(t, result.Output, "a")
	assert.Equal(t, map[string]interface{}{"sum": 6.0}, result.Output["a"].Output)

	require.Contains(t, result.Output, "answer")
	text := result.Output["answer"].OutputMap()["text"]
	assert.Equal(t, "Total is 6", text)

	assert.Equal(t, 15, result.TokenStats.TotalTokens)
	assert.Equal(t, 1, result.TokenStats.APICalls)
	assert.Equal(t, "answer", result.Metadata["final_node_id"])
}

func TestConditionGating(t *testing.T) {
	eng := newTestEngine(t, nil, nil, nil)

	cond := &sdk.NodeConfig{
		ID:           "check",
		Type:         sdk.NodeTypeCondition,
		Expression:   "a.sum > 5",
		TrueBranch:   []string{"t"},
		FalseBranch:  []string{"f"},
		Dependencies: []string{"a"},
	}
	tNode := &sdk.NodeConfig{ID: "t", Type: sdk.NodeTypeTool, ToolName: "echo", Dependencies: []string{"check"}}
	fNode := &sdk.NodeConfig{ID: "f", Type: sdk.NodeTypeTool, ToolName: "echo", Dependencies: []string{"check"}}

	result, err := eng.Run(context.Background(), workflow(sumNode("a", 1, 2, 3), cond, tNode, fNode), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	assert.Equal(t, true, result.Output["check"].OutputMap()["result"])
	assert.Contains(t, result.Output, "t")
	assert.NotContains(t, result.Output, "f")
}

func TestRetryEventualSuccess(t *testing.T) {
	var calls atomic.Int32
	eng := newTestEngine(t, nil, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "flaky",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				if calls.Add(1) == 1 {
					return nil, fmt.Errorf("transient failure")
				}
				return map[string]interface{}{"ok": true}, nil
			},
		})
	})

	node := &sdk.NodeConfig{
		ID:             "flaky",
		Type:           sdk.NodeTypeTool,
		ToolName:       "flaky",
		Retries:        2,
		BackoffSeconds: 0.01,
	}
	result, err := eng.Run(context.Background(), workflow(node), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	res := result.Output["flaky"]
	assert.Equal(t, 1, res.Metadata.RetryCount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryExhaustion(t *testing.T) {
	eng := newTestEngine(t, nil, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "broken",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("always down")
			},
		})
	})

	node := &sdk.NodeConfig{
		ID: "b", Type: sdk.NodeTypeTool, ToolName: "broken",
		Retries: 1, BackoffSeconds: 0.01,
	}
	result, err := eng.Run(context.Background(), workflow(node), nil)
	require.NoError(t, err)
	require.False(t, result.Success)

	res := result.Output["b"]
	assert.Contains(t, res.Error, "Retry limit exceeded (2)")
	assert.Contains(t, res.Error, "always down")
}

func TestBoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	eng := newTestEngine(t, &sdk.Options{MaxParallel: 2}, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "slow",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				inFlight.Add(-1)
				return map[string]interface{}{"done": true}, nil
			},
		})
	})

	slow := func(id string) *sdk.NodeConfig {
		return &sdk.NodeConfig{ID: id, Type: sdk.NodeTypeTool, ToolName: "slow"}
	}
	result, err := eng.Run(context.Background(), workflow(slow("s1"), slow("s2"), slow("s3")), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	assert.Len(t, result.Output, 3)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRecursiveConvergence(t *testing.T) {
	eng := newTestEngine(t, nil, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "advance",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				score, _ := args["score"].(float64)
				return map[string]interface{}{"score": score + 0.3}, nil
			},
		})
	})

	body := &sdk.NodeConfig{
		ID:       "step",
		Type:     sdk.NodeTypeTool,
		ToolName: "advance",
		ToolArgs: map[string]interface{}{"score": "{{score}}"},
	}
	recursive := &sdk.NodeConfig{
		ID:                    "refine",
		Type:                  sdk.NodeTypeRecursive,
		BodyNodeID:            "step",
		ConvergenceExpression: "score >= 0.8",
		StateVariables:        map[string]interface{}{"score": 0.0},
		MaxIterations:         5,
	}
	result, err := eng.Run(context.Background(), workflow(body, recursive), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	// Body nodes never appear as top-level results.
	assert.NotContains(t, result.Output, "step")

	out := result.Output["refine"].OutputMap()
	assert.Equal(t, true, out["converged"])
	assert.Equal(t, 3, out["current_iteration"])
	state := out["final_state"].(map[string]interface{})
	assert.InDelta(t, 0.9, state["score"].(float64), 1e-9)
}

func TestTokenCeilingAbort(t *testing.T) {
	svc := &mockLLM{fn: func(prompt string) (*sdk.LLMResponse, error) {
		return &sdk.LLMResponse{Text: "big answer", PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}, nil
	}}
	opts := sdk.DefaultOptions()
	opts.TokenCeiling = 100
	eng := newTestEngine(t, opts, svc, nil)

	llmNode := &sdk.NodeConfig{ID: "big", Type: sdk.NodeTypeLLM, PromptTemplate: "expensive"}
	after := &sdk.NodeConfig{ID: "after", Type: sdk.NodeTypeTool, ToolName: "echo", Dependencies: []string{"big"}}

	result, err := eng.Run(context.Background(), workflow(llmNode, after), nil)
	require.NoError(t, err)
	require.False(t, result.Success)

	// The node itself completed; only further levels are skipped.
	assert.True(t, result.Output["big"].Success)
	assert.NotContains(t, result.Output, "after")
	assert.Contains(t, result.Error, "Token ceiling exceeded")
	assert.Equal(t, 150, result.TokenStats.TotalTokens)
}

func TestDepthCeilingAbort(t *testing.T) {
	opts := sdk.DefaultOptions()
	opts.DepthCeiling = 1
	eng := newTestEngine(t, opts, nil, nil)

	a := sumNode("a", 1)
	b := &sdk.NodeConfig{ID: "b", Type: sdk.NodeTypeTool, ToolName: "echo", Dependencies: []string{"a"}}
	c := &sdk.NodeConfig{ID: "c", Type: sdk.NodeTypeTool, ToolName: "echo", Dependencies: []string{"b"}}

	result, err := eng.Run(context.Background(), workflow(a, b, c), nil)
	require.NoError(t, err)
	require.False(t, result.Success)

	assert.Contains(t, result.Error, "Depth ceiling exceeded")
	assert.Contains(t, result.Output, "b")
	assert.NotContains(t, result.Output, "c")
}

func TestCacheIdempotence(t *testing.T) {
	var calls atomic.Int32
	eng := newTestEngine(t, nil, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "counted",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				calls.Add(1)
				return map[string]interface{}{"n": 1}, nil
			},
		})
	})

	spec := workflow(&sdk.NodeConfig{ID: "c", Type: sdk.NodeTypeTool, ToolName: "counted"})

	first, err := eng.Run(context.Background(), spec, nil)
	require.NoError(t, err)
	require.True(t, first.Success, first.Error)
	require.Equal(t, int32(1), calls.Load())

	second, err := eng.Run(context.Background(), spec, nil)
	require.NoError(t, err)
	require.True(t, second.Success, second.Error)

	// Identical run hits the cache: zero fresh executor calls.
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, map[string]interface{}{"n": 1.0}, second.Output["c"].OutputMap())
}

func TestCacheDisabledPerNode(t *testing.T) {
	var calls atomic.Int32
	eng := newTestEngine(t, nil, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "counted",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				calls.Add(1)
				return map[string]interface{}{"n": 1}, nil
			},
		})
	})

	off := false
	spec := workflow(&sdk.NodeConfig{ID: "c", Type: sdk.NodeTypeTool, ToolName: "counted", UseCache: &off})

	for i := 0; i < 2; i++ {
		result, err := eng.Run(context.Background(), spec, nil)
		require.NoError(t, err)
		require.True(t, result.Success)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoopExecutor(t *testing.T) {
	eng := newTestEngine(t, nil, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "items",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{"items": []interface{}{1.0, 2.0, 3.0}}, nil
			},
		})
		_ = r.Register(&tool.Func{
			ToolName: "double",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				n, _ := args["value"].(float64)
				return map[string]interface{}{"doubled": n * 2}, nil
			},
		})
	})

	source := &sdk.NodeConfig{ID: "src", Type: sdk.NodeTypeTool, ToolName: "items"}
	body := &sdk.NodeConfig{
		ID: "dbl", Type: sdk.NodeTypeTool, ToolName: "double",
		ToolArgs: map[string]interface{}{"value": "{{item}}"},
	}
	loop := &sdk.NodeConfig{
		ID:           "each",
		Type:         sdk.NodeTypeLoop,
		ItemsSource:  "src.items",
		ItemVar:      "item",
		BodyNodeIDs:  []string{"dbl"},
		Dependencies: []string{"src"},
	}
	result, err := eng.Run(context.Background(), workflow(source, body, loop), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	out := result.Output["each"].OutputMap()
	assert.Equal(t, 3, out["count"])

	iterations := out["iterations"].([]interface{})
	require.Len(t, iterations, 3)
	for i, want := range []float64{2, 4, 6} {
		iter := iterations[i].(map[string]interface{})
		step := iter["dbl"].(map[string]interface{})
		assert.Equal(t, want, step["doubled"], "iteration %d", i)
	}
}

func TestParallelExecutor(t *testing.T) {
	eng := newTestEngine(t, nil, nil, nil)

	b1 := sumNode("b1", 1, 2)
	b2 := sumNode("b2", 3, 4)
	par := &sdk.NodeConfig{
		ID:             "fan",
		Type:           sdk.NodeTypeParallel,
		Branches:       [][]string{{"b1"}, {"b2"}},
		MaxConcurrency: 2,
	}
	result, err := eng.Run(context.Background(), workflow(b1, b2, par), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	out := result.Output["fan"].OutputMap()
	first := out["branch_0"].(map[string]interface{})
	assert.Equal(t, true, first["success"])
	assert.Equal(t, map[string]interface{}{"sum": 3.0}, first["output"])

	second := out["branch_1"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"sum": 7.0}, second["output"])
}

func TestParallelBranchFailureHalts(t *testing.T) {
	opts := sdk.DefaultOptions()
	opts.FailurePolicy = sdk.FailureHalt
	eng := newTestEngine(t, opts, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "broken",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("boom")
			},
		})
	})

	bad := &sdk.NodeConfig{ID: "bad", Type: sdk.NodeTypeTool, ToolName: "broken"}
	ok := sumNode("ok", 1, 2)
	par := &sdk.NodeConfig{
		ID:       "fan",
		Type:     sdk.NodeTypeParallel,
		Branches: [][]string{{"bad"}, {"ok"}},
	}
	after := &sdk.NodeConfig{ID: "after", Type: sdk.NodeTypeTool, ToolName: "echo", Dependencies: []string{"fan"}}

	result, err := eng.Run(context.Background(), workflow(bad, ok, par, after), nil)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "branch 0 failed")
	assert.NotContains(t, result.Output, "after")
}

func TestParallelBranchIsolationWithoutHalt(t *testing.T) {
	eng := newTestEngine(t, nil, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "broken",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("boom")
			},
		})
	})

	bad := &sdk.NodeConfig{ID: "bad", Type: sdk.NodeTypeTool, ToolName: "broken"}
	ok := sumNode("ok", 1, 2)
	par := &sdk.NodeConfig{
		ID:       "fan",
		Type:     sdk.NodeTypeParallel,
		Branches: [][]string{{"bad"}, {"ok"}},
	}

	result, err := eng.Run(context.Background(), workflow(bad, ok, par), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	out := result.Output["fan"].OutputMap()
	slot0 := out["branch_0"].(map[string]interface{})
	assert.Equal(t, false, slot0["success"])
	assert.Contains(t, slot0["error"], "boom")
	slot1 := out["branch_1"].(map[string]interface{})
	assert.Equal(t, true, slot1["success"])
}

func TestNestedWorkflow(t *testing.T) {
	eng := newTestEngine(t, nil, nil, nil)

	inner := workflow(sumNode("inner_sum", 2, 3))
	nested := &sdk.NodeConfig{
		ID:             "sub",
		Type:           sdk.NodeTypeNestedWorkflow,
		Workflow:       inner,
		ExposedOutputs: map[string]string{"total": "inner_sum.sum"},
	}
	result, err := eng.Run(context.Background(), workflow(nested), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	out := result.Output["sub"].OutputMap()
	assert.Equal(t, 5.0, out["total"])
}

func TestNestedWorkflowByRef(t *testing.T) {
	eng := newTestEngine(t, nil, nil, nil)
	eng.RegisterWorkflow("adder", workflow(sumNode("s", 1, 1)))

	nested := &sdk.NodeConfig{ID: "sub", Type: sdk.NodeTypeNestedWorkflow, WorkflowRef: "adder"}
	result, err := eng.Run(context.Background(), workflow(nested), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	out := result.Output["sub"].OutputMap()
	assert.Equal(t, map[string]interface{}{"sum": 2.0}, out["s"])
}

func TestOutputMappings(t *testing.T) {
	eng := newTestEngine(t, nil, nil, nil)

	a := sumNode("a", 1, 2, 3)
	a.OutputMappings = map[string]string{"total": "sum"}

	consumer := &sdk.NodeConfig{
		ID: "b", Type: sdk.NodeTypeTool, ToolName: "echo",
		Dependencies: []string{"a"},
		InputMappings: map[string]sdk.InputMapping{
			"value": {Source: "a", Path: "total"},
		},
		ToolArgs: map[string]interface{}{"value": "{{value}}"},
	}
	result, err := eng.Run(context.Background(), workflow(a, consumer), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	echoed := result.Output["b"].OutputMap()["echo"].(map[string]interface{})
	assert.Equal(t, 6.0, echoed["value"])
}

func TestHaltPolicy(t *testing.T) {
	opts := sdk.DefaultOptions()
	opts.FailurePolicy = sdk.FailureHalt
	eng := newTestEngine(t, opts, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "broken",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("boom")
			},
		})
	})

	bad := &sdk.NodeConfig{ID: "bad", Type: sdk.NodeTypeTool, ToolName: "broken"}
	after := &sdk.NodeConfig{ID: "after", Type: sdk.NodeTypeTool, ToolName: "echo", Dependencies: []string{"bad"}}

	result, err := eng.Run(context.Background(), workflow(bad, after), nil)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.NotContains(t, result.Output, "after")
}

func TestContinuePossibleStopsWhenBlocked(t *testing.T) {
	eng := newTestEngine(t, nil, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "broken",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("boom")
			},
		})
	})

	bad := &sdk.NodeConfig{ID: "bad", Type: sdk.NodeTypeTool, ToolName: "broken"}
	after := &sdk.NodeConfig{ID: "after", Type: sdk.NodeTypeTool, ToolName: "echo", Dependencies: []string{"bad"}}

	result, err := eng.Run(context.Background(), workflow(bad, after), nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "no runnable nodes remain")
	assert.NotContains(t, result.Output, "after")
}

func TestContinuePossibleRunsIndependentBranch(t *testing.T) {
	eng := newTestEngine(t, nil, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "broken",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("boom")
			},
		})
	})

	bad := &sdk.NodeConfig{ID: "bad", Type: sdk.NodeTypeTool, ToolName: "broken"}
	ok := sumNode("ok", 1)
	after := &sdk.NodeConfig{ID: "after", Type: sdk.NodeTypeTool, ToolName: "echo", Dependencies: []string{"ok"}}

	result, err := eng.Run(context.Background(), workflow(bad, ok, after), nil)
	require.NoError(t, err)
	require.False(t, result.Success)

	// The independent branch still completes.
	assert.Contains(t, result.Output, "after")
	assert.True(t, result.Output["after"].Success)
}

func TestNodeTimeout(t *testing.T) {
	eng := newTestEngine(t, nil, nil, func(r *tool.Registry) {
		_ = r.Register(&tool.Func{
			ToolName: "hang",
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				select {
				case <-time.After(5 * time.Second):
					return map[string]interface{}{}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		})
	})

	node := &sdk.NodeConfig{ID: "h", Type: sdk.NodeTypeTool, ToolName: "hang", TimeoutSeconds: 1}
	result, err := eng.Run(context.Background(), workflow(node), nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Equal(t, string(sdk.ErrTypeTimeout), result.Output["h"].Metadata.ErrorType)
}

func TestValidationDemotesResult(t *testing.T) {
	eng := newTestEngine(t, nil, nil, nil)

	a := sumNode("a", 1, 2)
	a.OutputSchema = map[string]interface{}{"sum": "string"}

	result, err := eng.Run(context.Background(), workflow(a), nil)
	require.NoError(t, err)
	require.False(t, result.Success)

	res := result.Output["a"]
	assert.False(t, res.Success)
	assert.Equal(t, string(sdk.ErrTypeValidation), res.Metadata.ErrorType)
	// Deterministic failure, no retries happened.
	assert.Equal(t, 0, res.Metadata.RetryCount)
}

func TestUnknownToolRejectedUpFront(t *testing.T) {
	eng := newTestEngine(t, nil, nil, nil)

	node := &sdk.NodeConfig{ID: "x", Type: sdk.NodeTypeTool, ToolName: "nope"}
	result, err := eng.Run(context.Background(), workflow(node), nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, sdk.ErrTypeConfig, sdk.ClassifyError(err))
}

func TestInitialContextVisible(t *testing.T) {
	eng := newTestEngine(t, nil, nil, nil)

	node := &sdk.NodeConfig{
		ID: "e", Type: sdk.NodeTypeTool, ToolName: "echo",
		ToolArgs: map[string]interface{}{"who": "{{user}}"},
	}
	result, err := eng.Run(context.Background(), workflow(node), map[string]interface{}{"user": "ada"})
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	echoed := result.Output["e"].OutputMap()["echo"].(map[string]interface{})
	assert.Equal(t, "ada", echoed["who"])
}

func TestAgentExecutor(t *testing.T) {
	agents := agent.NewRegistry()
	require.NoError(t, agents.Register(&sdk.AgentDefinition{
		Package:      "math/helper",
		SystemPrompt: "You add numbers.",
		AllowedTools: []string{"sum"},
		MaxRounds:    3,
	}))

	var round atomic.Int32
	svc := &mockLLM{fn: func(prompt string) (*sdk.LLMResponse, error) {
		if round.Add(1) == 1 {
			return &sdk.LLMResponse{
				Text:         `{"tool_name": "sum", "arguments": {"numbers": [2, 2]}}`,
				TotalTokens:  10,
				PromptTokens: 8, CompletionTokens: 2,
			}, nil
		}
		return &sdk.LLMResponse{Text: "The sum is 4.", TotalTokens: 12, PromptTokens: 9, CompletionTokens: 3}, nil
	}}

	tools := tool.NewRegistry()
	tool.RegisterBuiltins(tools)
	eng := New(EngineOpts{
		Logger: logger.New("error", "json"),
		Tools:  tools,
		Agents: agents,
		LLM:    svc,
	})

	node := &sdk.NodeConfig{ID: "helper", Type: sdk.NodeTypeAgent, Package: "math/helper", PromptTemplate: "Add 2 and 2"}
	result, err := eng.Run(context.Background(), workflow(node), nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	out := result.Output["helper"].OutputMap()
	assert.Equal(t, "The sum is 4.", out["response"])
	assert.Equal(t, 2, out["rounds"])
	assert.Equal(t, 22, result.TokenStats.TotalTokens)
	assert.Equal(t, 2, result.TokenStats.APICalls)
}
