package sdk

import (
	"time"
)

// NodeType identifies the kind of a workflow node. The executor registry is
// keyed by this tag; unknown tags are rejected at parse time.
type NodeType string

const (
	NodeTypeTool           NodeType = "tool"
	NodeTypeLLM            NodeType = "llm"
	NodeTypeAgent          NodeType = "agent"
	NodeTypeCondition      NodeType = "condition"
	NodeTypeLoop           NodeType = "loop"
	NodeTypeParallel       NodeType = "parallel"
	NodeTypeRecursive      NodeType = "recursive"
	NodeTypeNestedWorkflow NodeType = "nested_workflow"
)

// KnownNodeTypes lists every node kind the engine can execute.
var KnownNodeTypes = map[NodeType]bool{
	NodeTypeTool:           true,
	NodeTypeLLM:            true,
	NodeTypeAgent:          true,
	NodeTypeCondition:      true,
	NodeTypeLoop:           true,
	NodeTypeParallel:       true,
	NodeTypeRecursive:      true,
	NodeTypeNestedWorkflow: true,
}

// InputMapping binds a placeholder in a node's input context to either the
// output of a dependency (Source + Path) or a literal value.
type InputMapping struct {
	// Source is the id of the dependency node whose output is read.
	// Empty means Value is bound as a literal.
	Source string `json:"source,omitempty"`

	// Path is a dotted path into the source output ("" or "." yields the
	// whole output). Segments index maps by key and arrays by integer.
	Path string `json:"path,omitempty"`

	// Transform holds optional transform rules applied after resolution.
	Transform map[string]interface{} `json:"transform,omitempty"`

	// Value is the literal bound when Source is empty.
	Value interface{} `json:"value,omitempty"`
}

// LLMSettings configures a provider call for llm nodes and agents.
type LLMSettings struct {
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// NodeConfig is the tagged-union description of a workflow node. Common
// fields apply to every kind; kind-specific fields are only read for the
// matching Type. Configs are immutable during a run.
type NodeConfig struct {
	ID             string                  `json:"id"`
	Type           NodeType                `json:"type"`
	Name           string                  `json:"name,omitempty"`
	Dependencies   []string                `json:"dependencies,omitempty"`
	TimeoutSeconds int                     `json:"timeout_seconds,omitempty"`
	Retries        int                     `json:"retries,omitempty"`
	BackoffSeconds float64                 `json:"backoff_seconds,omitempty"`
	InputMappings  map[string]InputMapping `json:"input_mappings,omitempty"`
	OutputMappings map[string]string       `json:"output_mappings,omitempty"`
	InputSchema    map[string]interface{}  `json:"input_schema,omitempty"`
	OutputSchema   map[string]interface{}  `json:"output_schema,omitempty"`
	UseCache       *bool                   `json:"use_cache,omitempty"`
	AllowedTools   []string                `json:"allowed_tools,omitempty"`

	// tool
	ToolName string                 `json:"tool_name,omitempty"`
	ToolArgs map[string]interface{} `json:"tool_args,omitempty"`

	// llm
	Model          string       `json:"model,omitempty"`
	PromptTemplate string       `json:"prompt_template,omitempty"`
	LLMConfig      *LLMSettings `json:"llm_config,omitempty"`
	Tools          []string     `json:"tools,omitempty"`

	// agent
	Package      string                 `json:"package,omitempty"`
	AgentConfig  map[string]interface{} `json:"agent_config,omitempty"`
	EnableMemory bool                   `json:"enable_memory,omitempty"`

	// condition
	Expression  string   `json:"expression,omitempty"`
	TrueBranch  []string `json:"true_branch,omitempty"`
	FalseBranch []string `json:"false_branch,omitempty"`

	// loop
	ItemsSource   string   `json:"items_source,omitempty"`
	ItemVar       string   `json:"item_var,omitempty"`
	BodyNodeIDs   []string `json:"body_node_ids,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty"`

	// parallel
	Branches       [][]string `json:"branches,omitempty"`
	MaxConcurrency int        `json:"max_concurrency,omitempty"`

	// recursive (MaxIterations shared with loop)
	BodyNodeID            string                 `json:"body_node_id,omitempty"`
	ConvergenceExpression string                 `json:"convergence_expression,omitempty"`
	StateVariables        map[string]interface{} `json:"state_variables,omitempty"`
	PreserveContext       bool                   `json:"preserve_context,omitempty"`

	// nested_workflow
	Workflow       *WorkflowSpec     `json:"workflow,omitempty"`
	WorkflowRef    string            `json:"workflow_ref,omitempty"`
	ExposedOutputs map[string]string `json:"exposed_outputs,omitempty"`
}

// CacheEnabled reports whether result caching applies to this node.
// Defaults to true when use_cache is omitted.
func (n *NodeConfig) CacheEnabled() bool {
	return n.UseCache == nil || *n.UseCache
}

// DisplayName returns the human name, falling back to the id.
func (n *NodeConfig) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Usage captures token consumption and cost reported by a single node.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
	APICalls         int     `json:"api_calls"`
	Model            string  `json:"model,omitempty"`
	Provider         string  `json:"provider,omitempty"`
	NodeID           string  `json:"node_id,omitempty"`
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Cost += other.Cost
	u.APICalls += other.APICalls
}

// NodeMetadata describes the execution envelope of a node result.
type NodeMetadata struct {
	NodeID     string    `json:"node_id"`
	Type       NodeType  `json:"type"`
	Name       string    `json:"name,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Duration   float64   `json:"duration"`
	ErrorType  string    `json:"error_type,omitempty"`
	RetryCount int       `json:"retry_count"`
}

// NodeExecutionResult is the uniform result envelope returned by every
// executor. Results are sealed once returned to the scheduler.
type NodeExecutionResult struct {
	Success       bool                   `json:"success"`
	Output        interface{}            `json:"output"`
	Error         string                 `json:"error,omitempty"`
	Metadata      NodeMetadata           `json:"metadata"`
	Usage         *Usage                 `json:"usage,omitempty"`
	ExecutionTime float64                `json:"execution_time"`
	ContextUsed   map[string]interface{} `json:"context_used,omitempty"`
}

// OutputMap returns the output as a map when it is one, else nil.
func (r *NodeExecutionResult) OutputMap() map[string]interface{} {
	m, _ := r.Output.(map[string]interface{})
	return m
}

// TokenStats aggregates usage across a workflow run.
type TokenStats struct {
	PromptTokens     int               `json:"prompt_tokens"`
	CompletionTokens int               `json:"completion_tokens"`
	TotalTokens      int               `json:"total_tokens"`
	TotalCost        float64           `json:"total_cost"`
	APICalls         int               `json:"api_calls"`
	PerNodeUsage     map[string]*Usage `json:"per_node_usage,omitempty"`
}

// Record folds a node's usage into the running totals.
func (s *TokenStats) Record(nodeID string, u *Usage) {
	if u == nil {
		return
	}
	s.PromptTokens += u.PromptTokens
	s.CompletionTokens += u.CompletionTokens
	s.TotalTokens += u.TotalTokens
	s.TotalCost += u.Cost
	s.APICalls += u.APICalls
	if s.PerNodeUsage == nil {
		s.PerNodeUsage = make(map[string]*Usage)
	}
	snapshot := *u
	s.PerNodeUsage[nodeID] = &snapshot
}

// WorkflowResult is the final output of a workflow run. Output holds one
// entry per executed node; inactive nodes are absent.
type WorkflowResult struct {
	Success       bool                            `json:"success"`
	Output        map[string]*NodeExecutionResult `json:"output"`
	Error         string                          `json:"error,omitempty"`
	Metadata      map[string]interface{}          `json:"metadata,omitempty"`
	ExecutionTime float64                         `json:"execution_time"`
	TokenStats    TokenStats                      `json:"token_stats"`
}

// Reserved input-context keys injected by the engine. They are available to
// executors but excluded from cache-key canonicalization.
const (
	CtxKeyWorkflowID    = "workflow_id"
	CtxKeyNodeID        = "node_id"
	CtxKeyExecutionID   = "execution_id"
	CtxKeyAttemptNumber = "attempt_number"
	CtxKeyResults       = "result"
)
