package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lyzr/agentchain/agent"
	"github.com/lyzr/agentchain/chain/resolver"
	"github.com/lyzr/agentchain/common/sdk"
	"github.com/lyzr/agentchain/llm"
)

const defaultAgentRounds = 2

// toolCall is the provider-neutral tool invocation surfaced by LLMService as
// a JSON text response.
type toolCall struct {
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Agent executes an agent node: loads the package definition, layers configs
// (registry < node), and runs a bounded react loop where the model may call
// allowed tools. A repeated identical tool call short-circuits the loop with
// the cached tool result, which breaks model loops cheaply.
func Agent(ctx context.Context, eng sdk.Engine, node *sdk.NodeConfig, input map[string]interface{}) (*sdk.NodeExecutionResult, error) {
	def, ok := eng.Agents().Get(node.Package)
	if !ok {
		return nil, sdk.NewConfigError(node.ID, "unknown agent package: %s", node.Package)
	}
	svc := eng.LLM()
	if svc == nil {
		return nil, sdk.NewConfigError(node.ID, "no LLM service configured")
	}

	cfg, err := agent.MergeConfigs(def.Config, node.AgentConfig)
	if err != nil {
		return nil, sdk.NewConfigError(node.ID, "failed to merge agent config: %v", err)
	}

	settings := def.Settings
	if node.LLMConfig != nil {
		settings = *node.LLMConfig
	}

	toolNames := def.AllowedTools
	if len(node.AllowedTools) > 0 {
		toolNames = node.AllowedTools
	}
	schemas := toolSchemas(eng.Tools(), toolNames)

	maxRounds := def.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultAgentRounds
	}

	prompt, err := agentPrompt(def, cfg, node, input)
	if err != nil {
		return nil, err
	}

	usage := &sdk.Usage{
		Model:    settings.Model,
		Provider: settings.Provider,
		NodeID:   node.ID,
	}
	seen := make(map[string]interface{})
	finalText := ""
	rounds := 0

	for rounds = 1; rounds <= maxRounds; rounds++ {
		resp, err := svc.Generate(ctx, settings, prompt, schemas)
		if err != nil {
			return nil, sdk.NewExecutorError(node.ID, "provider error: %v", err)
		}
		usage.Add(&sdk.Usage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.TotalTokens,
			Cost:             llm.Cost(settings.Provider, settings.Model, resp.PromptTokens, resp.CompletionTokens),
			APICalls:         1,
		})

		call, isCall := parseToolCall(resp.Text)
		if !isCall {
			finalText = resp.Text
			break
		}

		if !allowed(toolNames, call.ToolName) {
			return nil, sdk.NewConfigError(node.ID, "agent requested tool %s outside allowed_tools", call.ToolName)
		}

		key := callKey(call)
		if cached, repeated := seen[key]; repeated {
			finalText = stringifyToolResult(cached)
			break
		}

		t, ok := eng.Tools().Get(call.ToolName)
		if !ok {
			return nil, sdk.NewConfigError(node.ID, "agent requested unknown tool: %s", call.ToolName)
		}
		out, err := t.Run(ctx, call.Arguments)
		if err != nil {
			return nil, sdk.NewExecutorError(node.ID, "tool %s failed: %v", call.ToolName, err)
		}
		seen[key] = out

		prompt = fmt.Sprintf("%s\n\nTool %s returned: %s\nUse this result to answer.",
			prompt, call.ToolName, stringifyToolResult(out))
	}
	if rounds > maxRounds {
		rounds = maxRounds
	}
	if finalText == "" {
		// Round budget exhausted mid-loop; answer with the last tool result.
		finalText = lastToolResult(seen)
	}

	if node.EnableMemory && eng.Memory() != nil {
		executionID, _ := input[sdk.CtxKeyExecutionID].(string)
		key := fmt.Sprintf("%s:%s", executionID, node.ID)
		if err := eng.Memory().Episodic().Store(ctx, key, finalText, map[string]interface{}{
			"agent": node.Package,
		}); err != nil {
			eng.Logger().Warn("failed to store agent memory", "node_id", node.ID, "error", err)
		}
	}

	res := success(map[string]interface{}{
		"response": finalText,
		"rounds":   rounds,
	})
	if usage.APICalls > 0 {
		res.Usage = usage
	}
	return res, nil
}

// agentPrompt assembles the system prompt, any configured instructions and
// the node's rendered task.
func agentPrompt(def *sdk.AgentDefinition, cfg map[string]interface{}, node *sdk.NodeConfig, input map[string]interface{}) (string, error) {
	var parts []string
	if def.SystemPrompt != "" {
		parts = append(parts, def.SystemPrompt)
	}
	if instructions, ok := cfg["instructions"].(string); ok && instructions != "" {
		parts = append(parts, instructions)
	}

	task := node.PromptTemplate
	if task == "" {
		if t, ok := cfg["task"].(string); ok {
			task = t
		}
	}
	if task != "" {
		rendered, err := resolver.Render(task, input)
		if err != nil {
			return "", sdk.NewDependencyError(node.ID, "failed to render agent task: %v", err)
		}
		parts = append(parts, rendered)
	} else if t, ok := input["task"].(string); ok {
		parts = append(parts, t)
	}
	return strings.Join(parts, "\n\n"), nil
}

func parseToolCall(text string) (*toolCall, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var call toolCall
	if err := json.Unmarshal([]byte(trimmed), &call); err != nil || call.ToolName == "" {
		return nil, false
	}
	return &call, true
}

func callKey(call *toolCall) string {
	args, _ := json.Marshal(call.Arguments)
	return call.ToolName + ":" + string(args)
}

func stringifyToolResult(out interface{}) string {
	if s, ok := out.(string); ok {
		return s
	}
	doc, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprint(out)
	}
	return string(doc)
}

func lastToolResult(seen map[string]interface{}) string {
	for _, out := range seen {
		return stringifyToolResult(out)
	}
	return ""
}
