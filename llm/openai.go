// Package llm implements the provider clients behind sdk.LLMService and the
// pricing table used for cost accounting.
package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lyzr/agentchain/common/logger"
	"github.com/lyzr/agentchain/common/sdk"
)

// OpenAIService calls the OpenAI chat completion API (or any compatible
// endpoint via base URL override).
type OpenAIService struct {
	client *openai.Client
	log    *logger.Logger
}

// NewOpenAIService creates an OpenAI-backed LLM service.
func NewOpenAIService(apiKey, baseURL string, log *logger.Logger) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		log:    log,
	}
}

// Generate sends one chat completion request.
func (s *OpenAIService) Generate(ctx context.Context, settings sdk.LLMSettings, prompt string, tools []map[string]interface{}) (*sdk.LLMResponse, error) {
	model := settings.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if settings.Temperature > 0 {
		req.Temperature = float32(settings.Temperature)
	}
	if settings.MaxTokens > 0 {
		req.MaxTokens = settings.MaxTokens
	}
	for _, t := range tools {
		name, _ := t["name"].(string)
		description, _ := t["description"].(string)
		parameters := t["parameters"]
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: description,
				Parameters:  parameters,
			},
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	text := resp.Choices[0].Message.Content
	if text == "" && len(resp.Choices[0].Message.ToolCalls) > 0 {
		// Surface the first tool call as text so agent loops can parse it.
		call := resp.Choices[0].Message.ToolCalls[0]
		text = fmt.Sprintf(`{"tool_name": %q, "arguments": %s}`, call.Function.Name, call.Function.Arguments)
	}

	s.log.Debug("chat completion",
		"model", model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return &sdk.LLMResponse{
		Text:             text,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}
