// Package condition evaluates sandboxed boolean expressions for condition
// nodes, convergence checks and branch rules. Two engines are supported:
// CEL (the default) and expr-lang, selected with an "expr:" prefix. Neither
// allows I/O, assignment or reflection.
package condition

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/cel-go/cel"
)

const exprPrefix = "expr:"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Evaluator compiles and evaluates expressions with a compiled-program cache.
type Evaluator struct {
	mu        sync.RWMutex
	celCache  map[string]cel.Program
	exprCache map[string]*vm.Program
}

// NewEvaluator creates a new expression evaluator with caching.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		celCache:  make(map[string]cel.Program),
		exprCache: make(map[string]*vm.Program),
	}
}

// Eval evaluates an expression against vars and returns the raw result.
func (e *Evaluator) Eval(expression string, vars map[string]interface{}) (interface{}, error) {
	if strings.HasPrefix(expression, exprPrefix) {
		return e.evalExpr(strings.TrimPrefix(expression, exprPrefix), vars)
	}
	return e.evalCEL(expression, vars)
}

// EvalBool evaluates an expression and coerces the result to a boolean.
// Non-boolean results follow truthiness: nil, false, 0 and "" are false.
func (e *Evaluator) EvalBool(expression string, vars map[string]interface{}) (bool, error) {
	out, err := e.Eval(expression, vars)
	if err != nil {
		return false, err
	}
	return Truthy(out), nil
}

// Truthy reports the boolean interpretation of an arbitrary value.
func Truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case uint64:
		return v != 0
	default:
		return true
	}
}

// evalCEL evaluates a CEL expression. Programs are compiled against the set
// of top-level variable names in vars, so the cache key includes both.
func (e *Evaluator) evalCEL(expression string, vars map[string]interface{}) (interface{}, error) {
	names := declaredNames(vars)
	cacheKey := expression + "|" + strings.Join(names, ",")

	e.mu.RLock()
	prg, exists := e.celCache[cacheKey]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = compileCEL(expression, names)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.celCache[cacheKey] = prg
		e.mu.Unlock()
	}

	activation := make(map[string]interface{}, len(names))
	for _, name := range names {
		activation[name] = vars[name]
	}
	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("CEL evaluation error: %w", err)
	}
	return out.Value(), nil
}

func compileCEL(expression string, names []string) (cel.Program, error) {
	opts := make([]cel.EnvOption, 0, len(names))
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return prg, nil
}

// evalExpr evaluates an expr-lang expression.
func (e *Evaluator) evalExpr(expression string, vars map[string]interface{}) (interface{}, error) {
	e.mu.RLock()
	prg, exists := e.exprCache[expression]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = expr.Compile(expression, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("expr compilation error: %w", err)
		}
		e.mu.Lock()
		e.exprCache[expression] = prg
		e.mu.Unlock()
	}

	out, err := expr.Run(prg, vars)
	if err != nil {
		return nil, fmt.Errorf("expr evaluation error: %w", err)
	}
	return out, nil
}

// declaredNames returns the scope keys usable as expression identifiers,
// sorted for stable cache keys.
func declaredNames(vars map[string]interface{}) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		if identPattern.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// CacheSize returns the number of cached compiled programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.celCache) + len(e.exprCache)
}

// ClearCache drops all compiled programs.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.celCache = make(map[string]cel.Program)
	e.exprCache = make(map[string]*vm.Program)
}
