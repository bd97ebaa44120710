package llm

import "strings"

// modelPrice is USD per 1M tokens.
type modelPrice struct {
	prompt     float64
	completion float64
}

// Pricing per (provider, model). Unknown models cost zero so accounting
// never blocks execution.
var pricing = map[string]map[string]modelPrice{
	"openai": {
		"gpt-4o":        {prompt: 2.50, completion: 10.00},
		"gpt-4o-mini":   {prompt: 0.15, completion: 0.60},
		"gpt-4.1":       {prompt: 2.00, completion: 8.00},
		"gpt-4.1-mini":  {prompt: 0.40, completion: 1.60},
		"o3-mini":       {prompt: 1.10, completion: 4.40},
	},
	"anthropic": {
		"claude-3-5-haiku":  {prompt: 0.80, completion: 4.00},
		"claude-3-5-sonnet": {prompt: 3.00, completion: 15.00},
	},
}

// Cost computes the USD cost for a call. Unknown providers or models cost 0.
func Cost(provider, model string, promptTokens, completionTokens int) float64 {
	if provider == "" {
		provider = "openai"
	}
	models, ok := pricing[strings.ToLower(provider)]
	if !ok {
		return 0
	}
	price, ok := models[strings.ToLower(model)]
	if !ok {
		return 0
	}
	return float64(promptTokens)*price.prompt/1e6 + float64(completionTokens)*price.completion/1e6
}
