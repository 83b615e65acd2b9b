package llm

import (
	"fmt"
	"strings"
)

// Model represents an LLM model with its pricing metadata
type Model struct {
	Provider    Provider `json:"provider"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	ContextSize int      `json:"context_size"`
	InputCost   float64  `json:"input_cost"`  // Cost per 1M input tokens in USD
	OutputCost  float64  `json:"output_cost"` // Cost per 1M output tokens in USD
	ToolUse     bool     `json:"tool_use"`
}

// Provider represents LLM providers
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// OpenAI Models
const (
	ModelGPT4o     = "gpt-4o"
	ModelGPT4oMini = "gpt-4o-mini"
	ModelGPT41     = "gpt-4.1"
	ModelGPT41Mini = "gpt-4.1-mini"
)

// Anthropic Models
const (
	ModelClaudeSonnet4  = "claude-sonnet-4-20250514"
	ModelClaude35Sonnet = "claude-3-5-sonnet-20241022"
	ModelClaude35Haiku  = "claude-3-5-haiku-20241022"
)

// AvailableModels contains the models the orchestrator knows how to price.
// Unknown models are still accepted; they are routed by name prefix and
// priced at zero.
var AvailableModels = map[string]Model{
	ModelGPT4o: {
		Provider: ProviderOpenAI, Name: ModelGPT4o, DisplayName: "GPT-4o",
		ContextSize: 128000, InputCost: 2.50, OutputCost: 10.0, ToolUse: true,
	},
	ModelGPT4oMini: {
		Provider: ProviderOpenAI, Name: ModelGPT4oMini, DisplayName: "GPT-4o Mini",
		ContextSize: 128000, InputCost: 0.15, OutputCost: 0.60, ToolUse: true,
	},
	ModelGPT41: {
		Provider: ProviderOpenAI, Name: ModelGPT41, DisplayName: "GPT-4.1",
		ContextSize: 1047576, InputCost: 2.0, OutputCost: 8.0, ToolUse: true,
	},
	ModelGPT41Mini: {
		Provider: ProviderOpenAI, Name: ModelGPT41Mini, DisplayName: "GPT-4.1 Mini",
		ContextSize: 1047576, InputCost: 0.40, OutputCost: 1.60, ToolUse: true,
	},
	ModelClaudeSonnet4: {
		Provider: ProviderAnthropic, Name: ModelClaudeSonnet4, DisplayName: "Claude Sonnet 4",
		ContextSize: 200000, InputCost: 3.0, OutputCost: 15.0, ToolUse: true,
	},
	ModelClaude35Sonnet: {
		Provider: ProviderAnthropic, Name: ModelClaude35Sonnet, DisplayName: "Claude 3.5 Sonnet",
		ContextSize: 200000, InputCost: 3.0, OutputCost: 15.0, ToolUse: true,
	},
	ModelClaude35Haiku: {
		Provider: ProviderAnthropic, Name: ModelClaude35Haiku, DisplayName: "Claude 3.5 Haiku",
		ContextSize: 200000, InputCost: 0.80, OutputCost: 4.0, ToolUse: true,
	},
}

// GetModel returns model metadata for a given model name
func GetModel(name string) (Model, error) {
	model, exists := AvailableModels[name]
	if !exists {
		return Model{}, fmt.Errorf("unknown model: %s", name)
	}
	return model, nil
}

// ProviderFor infers the provider serving a model name.
func ProviderFor(name string) (Provider, bool) {
	if m, ok := AvailableModels[name]; ok {
		return m.Provider, true
	}
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "claude"):
		return ProviderAnthropic, true
	case strings.HasPrefix(lower, "gpt"), strings.HasPrefix(lower, "o1"),
		strings.HasPrefix(lower, "o3"), strings.HasPrefix(lower, "o4"):
		return ProviderOpenAI, true
	}
	return "", false
}

// EstimateCost estimates the cost for given token counts
func (m Model) EstimateCost(inputTokens, outputTokens int) float64 {
	inputCost := (float64(inputTokens) / 1000000) * m.InputCost
	outputCost := (float64(outputTokens) / 1000000) * m.OutputCost
	return inputCost + outputCost
}

// EstimateCost prices a call against a possibly unknown model.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	m, err := GetModel(model)
	if err != nil {
		return 0
	}
	return m.EstimateCost(inputTokens, outputTokens)
}
