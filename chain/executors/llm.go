package executors

import (
	"context"

	"github.com/lyzr/agentchain/chain/resolver"
	"github.com/lyzr/agentchain/common/sdk"
	"github.com/lyzr/agentchain/llm"
)

// LLM executes an llm node: renders the prompt template over the input
// context and calls the provider with the node's settings and optional tool
// schemas. Provider errors are retryable; usage and cost are reported.
func LLM(ctx context.Context, eng sdk.Engine, node *sdk.NodeConfig, input map[string]interface{}) (*sdk.NodeExecutionResult, error) {
	svc := eng.LLM()
	if svc == nil {
		return nil, sdk.NewConfigError(node.ID, "no LLM service configured")
	}

	prompt, err := resolver.Render(node.PromptTemplate, input)
	if err != nil {
		return nil, sdk.NewDependencyError(node.ID, "failed to render prompt: %v", err)
	}

	settings := sdk.LLMSettings{}
	if node.LLMConfig != nil {
		settings = *node.LLMConfig
	}
	if settings.Model == "" {
		settings.Model = node.Model
	}

	schemas := toolSchemas(eng.Tools(), node.Tools)

	resp, err := svc.Generate(ctx, settings, prompt, schemas)
	if err != nil {
		return nil, sdk.NewExecutorError(node.ID, "provider error: %v", err)
	}

	res := success(map[string]interface{}{"text": resp.Text})
	res.Usage = &sdk.Usage{
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
		Cost:             llm.Cost(settings.Provider, settings.Model, resp.PromptTokens, resp.CompletionTokens),
		APICalls:         1,
		Model:            settings.Model,
		Provider:         settings.Provider,
		NodeID:           node.ID,
	}
	return res, nil
}

// toolSchemas builds provider tool descriptors for the named tools; unknown
// names are skipped.
func toolSchemas(registry sdk.ToolRegistry, names []string) []map[string]interface{} {
	if len(names) == 0 || registry == nil {
		return nil
	}
	schemas := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		t, ok := registry.Get(name)
		if !ok {
			continue
		}
		schemas = append(schemas, map[string]interface{}{
			"name":       t.Name(),
			"parameters": t.InputSchema(),
		})
	}
	return schemas
}
