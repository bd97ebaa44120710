package sdk

import (
	"context"

	"github.com/lyzr/agentchain/common/cache"
	"github.com/lyzr/agentchain/common/store"
)

// Logger is the logging interface consumed throughout the engine.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Executor implements one node kind behind the uniform contract. Executors
// honor ctx cancellation, return failed results (not errors) for expected
// failure modes, and populate usage when external services were called.
type Executor func(ctx context.Context, eng Engine, node *NodeConfig, input map[string]interface{}) (*NodeExecutionResult, error)

// Tool is an externally provided deterministic capability. Tools must be
// side-effect-safe to retry; the engine does not guarantee once-only
// execution under retries.
type Tool interface {
	Name() string
	InputSchema() map[string]interface{}
	OutputSchema() map[string]interface{}
	Run(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ToolRegistry resolves tool names for tool nodes and agent loops.
type ToolRegistry interface {
	Get(name string) (Tool, bool)
	Names() []string
}

// AgentDefinition describes a loadable agent package.
type AgentDefinition struct {
	Package      string                 `json:"package"`
	Name         string                 `json:"name,omitempty"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
	Settings     LLMSettings            `json:"settings,omitempty"`
	AllowedTools []string               `json:"allowed_tools,omitempty"`
	Config       map[string]interface{} `json:"config,omitempty"`
	MaxRounds    int                    `json:"max_rounds,omitempty"`
}

// AgentRegistry resolves agent package references.
type AgentRegistry interface {
	Get(pkg string) (*AgentDefinition, bool)
}

// LLMResponse is the provider answer for one generate call.
type LLMResponse struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMService abstracts the provider clients.
type LLMService interface {
	Generate(ctx context.Context, settings LLMSettings, prompt string, tools []map[string]interface{}) (*LLMResponse, error)
}

// MemoryEntry is one stored memory item.
type MemoryEntry struct {
	Key      string                 `json:"key"`
	Content  interface{}            `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MemoryStore is one memory scope (working, episodic, semantic, procedural).
type MemoryStore interface {
	Store(ctx context.Context, key string, content interface{}, metadata map[string]interface{}) error
	Retrieve(ctx context.Context, key string) (*MemoryEntry, bool, error)
	Search(ctx context.Context, query string, filters map[string]interface{}, limit int) ([]*MemoryEntry, error)
}

// MemoryAccessor exposes the four memory scopes to agents. Opaque to the
// engine itself.
type MemoryAccessor interface {
	Working() MemoryStore
	Episodic() MemoryStore
	Semantic() MemoryStore
	Procedural() MemoryStore
}

// Engine is the handle passed to executors. It exposes the injected
// collaborators and the scheduling operations composite nodes need.
type Engine interface {
	Logger() Logger
	Options() *Options
	Cache() cache.Cache
	ContextStore() store.ContextStore
	Tools() ToolRegistry
	Agents() AgentRegistry
	LLM() LLMService
	Memory() MemoryAccessor

	// Workflow resolves a registered workflow by reference for
	// nested_workflow nodes.
	Workflow(ref string) (*WorkflowSpec, bool)

	// ExecuteSubgraph runs the named nodes of the current workflow as an
	// inner DAG. Bindings are merged into every body node's input context;
	// prior results of the enclosing run stay visible.
	ExecuteSubgraph(ctx context.Context, nodeIDs []string, bindings map[string]interface{}) (map[string]*NodeExecutionResult, error)

	// RunSubWorkflow executes a nested workflow to completion under an
	// isolated execution id, sharing guards and cache with the parent.
	RunSubWorkflow(ctx context.Context, spec *WorkflowSpec, initial map[string]interface{}) (*WorkflowResult, error)
}
