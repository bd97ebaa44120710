// Package chain is the workflow engine: it plans a validated DAG into
// topological levels, executes each level with weighted bounded parallelism,
// gates branches on condition outcomes, enforces guard ceilings and failure
// policies, and assembles the final result with aggregated usage.
package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/lyzr/agentchain/agent"
	"github.com/lyzr/agentchain/chain/executors"
	"github.com/lyzr/agentchain/common/cache"
	"github.com/lyzr/agentchain/common/logger"
	"github.com/lyzr/agentchain/common/sdk"
	"github.com/lyzr/agentchain/common/store"
	"github.com/lyzr/agentchain/memory"
	"github.com/lyzr/agentchain/tool"
)

// EngineOpts carries the injectable collaborators. Every field is optional;
// nil fields fall back to embedded in-memory implementations.
type EngineOpts struct {
	Logger    *logger.Logger
	Options   *sdk.Options
	Cache     cache.Cache
	Store     store.ContextStore
	Tools     sdk.ToolRegistry
	Agents    sdk.AgentRegistry
	LLM       sdk.LLMService
	Memory    sdk.MemoryAccessor
	Executors map[sdk.NodeType]sdk.Executor
}

// Engine executes workflows. Cross-run caches and stores are injected; the
// engine itself only holds the registries and a single-flight group that
// dedupes concurrent cache builds across runs. Safe for concurrent Run calls.
type Engine struct {
	log    *logger.Logger
	opts   *sdk.Options
	cache  cache.Cache
	store  store.ContextStore
	tools  sdk.ToolRegistry
	agents sdk.AgentRegistry
	llm    sdk.LLMService
	memory sdk.MemoryAccessor
	tracer trace.Tracer
	flight singleflight.Group

	mu        sync.RWMutex
	executors map[sdk.NodeType]sdk.Executor
	workflows map[string]*sdk.WorkflowSpec
}

// New creates an engine, defaulting any missing collaborator.
func New(o EngineOpts) *Engine {
	log := o.Logger
	if log == nil {
		log = logger.New("info", "console")
	}
	opts := o.Options
	if opts == nil {
		opts = sdk.DefaultOptions()
	}
	opts.Normalize()

	c := o.Cache
	if c == nil {
		c = cache.NewMemoryCache(log)
	}
	st := o.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	tools := o.Tools
	if tools == nil {
		tools = tool.NewRegistry()
	}
	agents := o.Agents
	if agents == nil {
		agents = agent.NewRegistry()
	}
	mem := o.Memory
	if mem == nil {
		mem = memory.NewInMemoryAccessor()
	}
	execs := o.Executors
	if execs == nil {
		execs = executors.Defaults()
	}

	return &Engine{
		log:       log,
		opts:      opts,
		cache:     c,
		store:     st,
		tools:     tools,
		agents:    agents,
		llm:       o.LLM,
		memory:    mem,
		tracer:    otel.Tracer("agentchain/chain"),
		executors: execs,
		workflows: make(map[string]*sdk.WorkflowSpec),
	}
}

func (e *Engine) Logger() sdk.Logger               { return e.log }
func (e *Engine) Options() *sdk.Options            { return e.opts }
func (e *Engine) Cache() cache.Cache               { return e.cache }
func (e *Engine) ContextStore() store.ContextStore { return e.store }

func (e *Engine) Tools() sdk.ToolRegistry    { return e.tools }
func (e *Engine) Agents() sdk.AgentRegistry  { return e.agents }
func (e *Engine) LLM() sdk.LLMService        { return e.llm }
func (e *Engine) Memory() sdk.MemoryAccessor { return e.memory }

// RegisterExecutor installs or replaces the executor for a node kind.
func (e *Engine) RegisterExecutor(t sdk.NodeType, ex sdk.Executor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executors[t] = ex
}

// RegisterWorkflow makes a spec resolvable by workflow_ref.
func (e *Engine) RegisterWorkflow(ref string, spec *sdk.WorkflowSpec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[ref] = spec
}

// Workflow resolves a registered workflow reference.
func (e *Engine) Workflow(ref string) (*sdk.WorkflowSpec, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	spec, ok := e.workflows[ref]
	return spec, ok
}

// run is the mutable state of one workflow execution. The scheduler is the
// only writer of results, branches and stats; executors see snapshots.
type run struct {
	workflowID  string
	executionID string
	graph       *Graph
	owned       map[string]bool
	initial     map[string]interface{}
	limiter     *limiter

	mu       sync.Mutex
	results  map[string]*sdk.NodeExecutionResult
	branches *branchState
	stats    sdk.TokenStats
	failed   map[string]bool
	errs     []string
}

type runCtxKey struct{}

func withRun(ctx context.Context, r *run) context.Context {
	return context.WithValue(ctx, runCtxKey{}, r)
}

func runFrom(ctx context.Context) (*run, bool) {
	r, ok := ctx.Value(runCtxKey{}).(*run)
	return r, ok
}

// Run executes a workflow to completion. A fresh execution id is generated;
// initial entries are visible in every node's input context. Config errors
// return a nil result; under the halt policy the first node error is also
// returned alongside the partial result.
func (e *Engine) Run(ctx context.Context, spec *sdk.WorkflowSpec, initial map[string]interface{}) (*sdk.WorkflowResult, error) {
	return e.runWorkflow(ctx, spec, initial, uuid.New().String(), nil)
}

// RunWithExecutionID executes under a caller-provided execution id, used to
// correlate context-store writes with an external request.
func (e *Engine) RunWithExecutionID(ctx context.Context, spec *sdk.WorkflowSpec, initial map[string]interface{}, executionID string) (*sdk.WorkflowResult, error) {
	if executionID == "" {
		executionID = uuid.New().String()
	}
	return e.runWorkflow(ctx, spec, initial, executionID, nil)
}

func (e *Engine) runWorkflow(ctx context.Context, spec *sdk.WorkflowSpec, initial map[string]interface{}, executionID string, parent *run) (*sdk.WorkflowResult, error) {
	start := time.Now()

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	graph, err := NewGraph(spec.Nodes)
	if err != nil {
		return nil, err
	}
	if err := e.validateStatic(spec, graph); err != nil {
		return nil, err
	}

	workflowID := spec.BlueprintID
	if workflowID == "" {
		workflowID = spec.Name
	}
	if workflowID == "" {
		workflowID = "workflow"
	}

	r := &run{
		workflowID:  workflowID,
		executionID: executionID,
		graph:       graph,
		owned:       graph.Owned(),
		initial:     initial,
		results:     make(map[string]*sdk.NodeExecutionResult),
		branches:    newBranchState(graph),
		failed:      make(map[string]bool),
	}
	if parent != nil {
		// Nested workflows share the parent's admission capacity so total
		// in-flight weight stays bounded.
		r.limiter = parent.limiter
	} else {
		r.limiter = newLimiter(e.opts.MaxParallel)
	}

	log := e.log.WithWorkflow(workflowID).WithExecutionID(executionID)
	log.Info("workflow started", "nodes", graph.Size())

	ctx = withRun(ctx, r)
	levels := graph.Levels()

	var halted error
	for levelIdx, level := range levels {
		if stop := e.checkDepthGuard(r, levelIdx); stop {
			break
		}

		active := make([]string, 0, len(level))
		for _, id := range level {
			// Owned nodes run inside their composite, not at the top level.
			if !r.owned[id] && r.branches.isActive(id) {
				active = append(active, id)
			}
		}
		if len(active) == 0 {
			continue
		}

		failures := e.runLevel(ctx, r, active)

		if stop := e.checkTokenGuard(r); stop {
			break
		}

		if len(failures) > 0 {
			switch e.opts.FailurePolicy {
			case sdk.FailureHalt:
				halted = failures[len(failures)-1]
				log.Error("workflow halted", "error", halted)
			case sdk.FailureContinuePossible:
				if !r.hasRunnableRemaining(levels, levelIdx+1) {
					r.errs = append(r.errs, (&sdk.Error{
						Type: sdk.ErrTypePolicyStop,
						Msg:  "no runnable nodes remain after failures",
					}).Error())
					log.Warn("workflow stopped, no runnable nodes remain")
					halted = nil
				} else {
					continue
				}
			case sdk.FailureAlways:
				continue
			}
			break
		}
	}

	result := e.assemble(r, graph, start)
	log.Info("workflow finished",
		"success", result.Success,
		"duration", result.ExecutionTime,
		"total_tokens", result.TokenStats.TotalTokens)
	return result, halted
}

// validateStatic applies registry-dependent checks after structural
// validation: tool references and, in strict mode, schema alignment.
func (e *Engine) validateStatic(spec *sdk.WorkflowSpec, graph *Graph) error {
	for _, node := range spec.Nodes {
		if node.Type == sdk.NodeTypeTool {
			if _, ok := e.tools.Get(node.ToolName); !ok {
				return sdk.NewConfigError(node.ID, "unknown tool: %s", node.ToolName)
			}
		}
	}
	if warnings := graph.ValidateSchemaAlignment(); len(warnings) > 0 {
		if e.opts.StrictSchemaAlignment {
			return sdk.NewConfigError("", "schema alignment: %s", strings.Join(warnings, "; "))
		}
		for _, w := range warnings {
			e.log.Warn("schema alignment", "warning", w)
		}
	}
	return nil
}

// runLevel executes the active nodes of one level concurrently and commits
// their results. Returns the errors of nodes that failed at this level.
func (e *Engine) runLevel(ctx context.Context, r *run, active []string) []error {
	levelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		id  string
		res *sdk.NodeExecutionResult
	}
	outcomes := make(chan outcome, len(active))

	resultsSnapshot := r.snapshotResults()

	var wg sync.WaitGroup
	for _, id := range active {
		node := r.graph.Node(id)
		wg.Add(1)
		go func(node *sdk.NodeConfig) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					outcomes <- outcome{node.ID, failedResult(node, time.Now(), 0,
						sdk.NewExecutorError(node.ID, "scheduler panic: %v", rec))}
				}
			}()
			res := e.runOne(levelCtx, r, node, resultsSnapshot, nil)
			if !res.Success && e.opts.FailurePolicy == sdk.FailureHalt {
				cancel()
			}
			outcomes <- outcome{node.ID, res}
		}(node)
	}
	wg.Wait()
	close(outcomes)

	var failures []error
	r.mu.Lock()
	for o := range outcomes {
		r.results[o.id] = o.res
		node := r.graph.Node(o.id)
		if o.res.Success {
			if o.res.Usage != nil {
				r.stats.Record(o.id, o.res.Usage)
			}
			if node.Type == sdk.NodeTypeCondition {
				if out := o.res.OutputMap(); out != nil {
					r.branches.record(o.id, truthyResult(out["result"]))
				}
			}
		} else {
			r.failed[o.id] = true
			err := fmt.Errorf("node %s: %s", o.id, o.res.Error)
			failures = append(failures, err)
			r.errs = append(r.errs, err.Error())
		}
	}
	r.mu.Unlock()
	return failures
}

// runOne builds a node's input and pushes it through the weighted limiter
// and the per-node wrapper.
func (e *Engine) runOne(ctx context.Context, r *run, node *sdk.NodeConfig, results map[string]*sdk.NodeExecutionResult, extraBindings map[string]interface{}) *sdk.NodeExecutionResult {
	start := time.Now()

	bindings := mergeBindings(r.initial, extraBindings)
	input, err := buildInput(node, results, r.workflowID, r.executionID, bindings)
	if err != nil {
		return failedResult(node, start, 0, err)
	}

	if !isComposite(node.Type) {
		weight := nodeWeight(node)
		if err := r.limiter.acquire(ctx, weight); err != nil {
			return failedResult(node, start, 0, err)
		}
		defer r.limiter.release(weight)
	}

	return e.executeNode(ctx, r, node, input)
}

func (e *Engine) checkDepthGuard(r *run, levelIdx int) bool {
	ceiling := e.opts.DepthCeiling
	tripped := false
	if ceiling > 0 && levelIdx > ceiling {
		tripped = true
	}
	if e.opts.DepthGuard != nil && !e.opts.DepthGuard(levelIdx, ceiling) {
		tripped = true
	}
	if tripped {
		r.mu.Lock()
		r.errs = append(r.errs, sdk.NewGuardAbort("Depth ceiling exceeded at level %d", levelIdx).Error())
		r.mu.Unlock()
		e.log.Warn("depth guard tripped", "level", levelIdx, "ceiling", ceiling)
	}
	return tripped
}

func (e *Engine) checkTokenGuard(r *run) bool {
	ceiling := e.opts.TokenCeiling
	r.mu.Lock()
	total := r.stats.TotalTokens
	r.mu.Unlock()

	tripped := false
	if ceiling > 0 && total > ceiling {
		tripped = true
	}
	if e.opts.TokenGuard != nil && !e.opts.TokenGuard(total, ceiling) {
		tripped = true
	}
	if tripped {
		r.mu.Lock()
		r.errs = append(r.errs, sdk.NewGuardAbort("Token ceiling exceeded: %d tokens used, ceiling %d", total, ceiling).Error())
		r.mu.Unlock()
		e.log.Warn("token guard tripped", "total_tokens", total, "ceiling", ceiling)
	}
	return tripped
}

// hasRunnableRemaining reports whether any active node in the remaining
// levels still has a fully successful transitive dependency closure.
func (r *run) hasRunnableRemaining(levels [][]string, nextLevel int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocked := make(map[string]bool)
	var isBlocked func(id string) bool
	isBlocked = func(id string) bool {
		if b, ok := blocked[id]; ok {
			return b
		}
		b := false
		for _, dep := range r.graph.Dependencies(id) {
			if r.failed[dep] || isBlocked(dep) {
				b = true
				break
			}
		}
		blocked[id] = b
		return b
	}

	for li := nextLevel; li < len(levels); li++ {
		for _, id := range levels[li] {
			if !r.owned[id] && r.branches.isActive(id) && !isBlocked(id) {
				return true
			}
		}
	}
	return false
}

func (r *run) snapshotResults() map[string]*sdk.NodeExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[string]*sdk.NodeExecutionResult, len(r.results))
	for id, res := range r.results {
		snap[id] = res
	}
	return snap
}

func (e *Engine) assemble(r *run, graph *Graph, start time.Time) *sdk.WorkflowResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	metadata := map[string]interface{}{
		"workflow_id":  r.workflowID,
		"execution_id": r.executionID,
	}
	for _, leaf := range graph.Leaves() {
		// Last non-owned leaf in declaration order.
		if !r.owned[leaf] {
			metadata["final_node_id"] = leaf
		}
	}

	return &sdk.WorkflowResult{
		Success:       len(r.errs) == 0,
		Output:        r.results,
		Error:         strings.Join(r.errs, "; "),
		Metadata:      metadata,
		ExecutionTime: time.Since(start).Seconds(),
		TokenStats:    r.stats,
	}
}

// ExecuteSubgraph runs a subset of the current workflow's nodes as an inner
// DAG, with bindings layered over the run's initial context. Results are
// returned to the caller and not committed to the outer results map; usage
// is folded into the run totals.
func (e *Engine) ExecuteSubgraph(ctx context.Context, nodeIDs []string, bindings map[string]interface{}) (map[string]*sdk.NodeExecutionResult, error) {
	r, ok := runFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no active workflow run in context")
	}

	subset := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		if r.graph.Node(id) == nil {
			return nil, sdk.NewConfigError(id, "subgraph references unknown node")
		}
		subset[id] = true
	}

	// Leveling considers only edges inside the subset; dependencies on outer
	// nodes resolve from the enclosing run's committed results.
	scoped := make([]*sdk.NodeConfig, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		node := *r.graph.Node(id)
		var inner []string
		for _, dep := range node.Dependencies {
			if subset[dep] {
				inner = append(inner, dep)
			}
		}
		node.Dependencies = inner
		scoped = append(scoped, &node)
	}
	sub, err := NewGraph(scoped)
	if err != nil {
		return nil, err
	}

	results := r.snapshotResults()
	out := make(map[string]*sdk.NodeExecutionResult, len(nodeIDs))

	for _, level := range sub.Levels() {
		type outcome struct {
			id  string
			res *sdk.NodeExecutionResult
		}
		outcomes := make(chan outcome, len(level))
		var wg sync.WaitGroup
		for _, id := range level {
			node := r.graph.Node(id)
			wg.Add(1)
			go func(node *sdk.NodeConfig) {
				defer wg.Done()
				res := e.runOne(ctx, r, node, results, bindings)
				outcomes <- outcome{node.ID, res}
			}(node)
		}
		wg.Wait()
		close(outcomes)

		for o := range outcomes {
			results[o.id] = o.res
			out[o.id] = o.res
			if o.res.Success && o.res.Usage != nil {
				r.mu.Lock()
				r.stats.Record(o.id, o.res.Usage)
				r.mu.Unlock()
			}
		}
	}
	return out, nil
}

// RunSubWorkflow executes a nested workflow under an isolated execution id.
// The parent's cache, stores and admission capacity are shared; the nested
// run keeps its own results, gating and token totals.
func (e *Engine) RunSubWorkflow(ctx context.Context, spec *sdk.WorkflowSpec, initial map[string]interface{}) (*sdk.WorkflowResult, error) {
	parent, _ := runFrom(ctx)
	return e.runWorkflow(ctx, spec, initial, uuid.New().String(), parent)
}

func mergeBindings(initial, extra map[string]interface{}) map[string]interface{} {
	if len(extra) == 0 {
		return initial
	}
	if len(initial) == 0 {
		return extra
	}
	merged := make(map[string]interface{}, len(initial)+len(extra))
	for k, v := range initial {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// truthyResult interprets a condition node's published result value.
func truthyResult(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case nil:
		return false
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return true
	}
}
