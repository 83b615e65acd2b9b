package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/KamdynS/payroll-agents/llm"
	"github.com/liushuangls/go-anthropic/v2"
)

// Client implements the llm.Client interface for Anthropic
type Client struct {
	client  *anthropic.Client
	config  Config
	retrier *llm.Retrier
}

// Config holds Anthropic-specific configuration
type Config struct {
	APIKey      string          `json:"api_key" mapstructure:"api_key"`
	Model       string          `json:"model" mapstructure:"model"` // e.g., "claude-3-5-sonnet-20241022"
	BaseURL     string          `json:"base_url,omitempty" mapstructure:"base_url"`
	Temperature float64         `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Timeout     time.Duration   `json:"timeout,omitempty" mapstructure:"timeout"`
	RetryConfig llm.RetryConfig `json:"retry_config,omitempty" mapstructure:"retry"`
}

// NewClient creates a new Anthropic client
func NewClient(config Config) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Model == "" {
		config.Model = llm.ModelClaude35Haiku
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryConfig.MaxRetries == 0 {
		config.RetryConfig = llm.DefaultRetryConfig()
	}

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
	}

	return &Client{
		client:  anthropic.NewClient(config.APIKey, opts...),
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig),
	}, nil
}

func validateConfig(config Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if config.Model != "" {
		if p, ok := llm.ProviderFor(config.Model); ok && p != llm.ProviderAnthropic {
			return fmt.Errorf("model %s is not an Anthropic model", config.Model)
		}
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// Chat implements llm.Client interface
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	start := time.Now()

	result, err := llm.Execute(c.retrier, ctx, func(ctx context.Context, attempt int) (*llm.Response, error) {
		return c.chat(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	result.Latency = time.Since(start)
	result.Timestamp = start
	return result, nil
}

func (c *Client) chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	systemPrompt, messages := convertMessages(req)

	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	anthReq := anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		Messages:  messages,
		System:    systemPrompt,
		MaxTokens: c.config.MaxTokens,
	}
	if req.MaxTokens != nil {
		anthReq.MaxTokens = *req.MaxTokens
	}

	temp := float32(c.config.Temperature)
	if req.Temperature != nil {
		// Anthropic caps temperature at 1.
		temp = float32(min(*req.Temperature, 1))
	}
	anthReq.Temperature = &temp

	if len(req.Stop) > 0 {
		anthReq.StopSequences = req.Stop
	}

	for _, tool := range req.Tools {
		schema := tool.Function.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		anthReq.Tools = append(anthReq.Tools, anthropic.ToolDefinition{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}

	resp, err := c.client.CreateMessages(ctx, anthReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Content) == 0 {
		return nil, llm.NewLLMError(llm.ProviderAnthropic, llm.ErrorTypeEmptyResponse, "no content returned")
	}

	var content strings.Builder
	var toolCalls []llm.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				content.WriteString(*block.Text)
			}
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse == nil {
				continue
			}
			args := string(block.MessageContentToolUse.Input)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   block.MessageContentToolUse.ID,
				Type: "function",
				Function: llm.Function{
					Name:      block.MessageContentToolUse.Name,
					Arguments: args,
				},
			})
		}
	}

	var usage *llm.Usage
	if resp.Usage.OutputTokens > 0 {
		usage = &llm.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
			Cost:         llm.EstimateCost(model, resp.Usage.InputTokens, resp.Usage.OutputTokens),
		}
	}

	return &llm.Response{
		Content:      content.String(),
		Role:         llm.RoleAssistant,
		Model:        model,
		Provider:     llm.ProviderAnthropic,
		Usage:        usage,
		FinishReason: string(resp.StopReason),
		ToolCalls:    toolCalls,
		Meta: map[string]string{
			"id": resp.ID,
		},
	}, nil
}

// convertMessages folds system messages into the system prompt and maps
// tool traffic onto tool_use / tool_result content blocks.
func convertMessages(req *llm.ChatRequest) (string, []anthropic.Message) {
	systemPrompt := req.SystemPrompt
	messages := make([]anthropic.Message, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n\n" + msg.Content
			} else {
				systemPrompt = msg.Content
			}
		case llm.RoleAssistant:
			var blocks []anthropic.MessageContent
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseMessageContent(tc.ID, tc.Function.Name, input))
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, anthropic.Message{Role: anthropic.RoleAssistant, Content: blocks})
		case llm.RoleTool:
			messages = append(messages, anthropic.NewToolResultsMessage(msg.ToolCallID, msg.Content, false))
		default:
			messages = append(messages, anthropic.NewUserTextMessage(msg.Content))
		}
	}
	return systemPrompt, messages
}

// convertError converts Anthropic SDK errors to LLM errors
func convertError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		llmErr := llm.NewLLMErrorWithCause(llm.ProviderAnthropic, errorTypeFor(string(apiErr.Type)), apiErr.Message, err)
		llmErr.Code = string(apiErr.Type)
		return llmErr
	}

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderAnthropic, reqErr.StatusCode, reqErr.Error())
		llmErr.Cause = err
		return llmErr
	}

	return llm.ConvertTransportError(llm.ProviderAnthropic, err)
}

func errorTypeFor(apiType string) llm.ErrorType {
	switch apiType {
	case "invalid_request_error":
		return llm.ErrorTypeInvalidRequest
	case "authentication_error":
		return llm.ErrorTypeAuthentication
	case "permission_error":
		return llm.ErrorTypePermission
	case "not_found_error":
		return llm.ErrorTypeNotFound
	case "rate_limit_error":
		return llm.ErrorTypeRateLimit
	case "api_error", "overloaded_error":
		return llm.ErrorTypeServerError
	default:
		return llm.ErrorTypeUnknown
	}
}

// Model implements llm.Client interface
func (c *Client) Model() string {
	return c.config.Model
}

// Provider implements llm.Client interface
func (c *Client) Provider() llm.Provider {
	return llm.ProviderAnthropic
}

// Validate implements llm.Client interface
func (c *Client) Validate() error {
	return validateConfig(c.config)
}
