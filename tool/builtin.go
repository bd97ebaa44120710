package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Func adapts a plain function into a tool.
type Func struct {
	ToolName string
	Input    map[string]interface{}
	Output   map[string]interface{}
	Fn       func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

func (f *Func) Name() string                         { return f.ToolName }
func (f *Func) InputSchema() map[string]interface{}  { return f.Input }
func (f *Func) OutputSchema() map[string]interface{} { return f.Output }
func (f *Func) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return f.Fn(ctx, args)
}

// Sum adds a list of numbers. Args: {numbers: [..]}. Output: {sum: n}.
func Sum() *Func {
	return &Func{
		ToolName: "sum",
		Input:    map[string]interface{}{"numbers": "array"},
		Output:   map[string]interface{}{"sum": "number"},
		Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			items, ok := args["numbers"].([]interface{})
			if !ok {
				return nil, fmt.Errorf("sum requires a numbers array")
			}
			total := 0.0
			for i, item := range items {
				n, ok := toFloat(item)
				if !ok {
					return nil, fmt.Errorf("numbers[%d] is not a number", i)
				}
				total += n
			}
			return map[string]interface{}{"sum": total}, nil
		},
	}
}

// Echo returns its args unchanged. Output: {echo: args}.
func Echo() *Func {
	return &Func{
		ToolName: "echo",
		Input:    map[string]interface{}{},
		Output:   map[string]interface{}{"echo": "object"},
		Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"echo": args}, nil
		},
	}
}

// Concat joins string parts. Args: {parts: [..], separator?}. Output: {text}.
func Concat() *Func {
	return &Func{
		ToolName: "concat",
		Input:    map[string]interface{}{"parts": "array", "separator": "string"},
		Output:   map[string]interface{}{"text": "string"},
		Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			items, ok := args["parts"].([]interface{})
			if !ok {
				return nil, fmt.Errorf("concat requires a parts array")
			}
			sep, _ := args["separator"].(string)
			parts := make([]string, 0, len(items))
			for _, item := range items {
				parts = append(parts, fmt.Sprint(item))
			}
			return map[string]interface{}{"text": strings.Join(parts, sep)}, nil
		},
	}
}

// RegisterBuiltins registers the builtin tools on a registry.
func RegisterBuiltins(r *Registry) {
	_ = r.Register(Sum())
	_ = r.Register(Echo())
	_ = r.Register(Concat())
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
