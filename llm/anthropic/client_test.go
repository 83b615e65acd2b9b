package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KamdynS/payroll-agents/llm"
)

func TestChatDecodesToolUse(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",
			"content":[
				{"type":"text","text":"Let me compute that."},
				{"type":"tool_use","id":"tu_1","name":"calculator","input":{"operation":"mul","a":2,"b":3}}
			],
			"stop_reason":"tool_use",
			"usage":{"input_tokens":12,"output_tokens":7}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a payroll data analyst."},
			{Role: llm.RoleUser, Content: "2 times 3"},
		},
		Tools: []llm.Tool{{Type: "function", Function: llm.ToolFunction{Name: "calculator", Description: "math"}}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "Let me compute that." {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "tu_1" {
		t.Fatalf("tool_use not decoded: %+v", resp.ToolCalls)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(resp.ToolCalls[0].Function.Arguments), &args); err != nil || args["operation"] != "mul" {
		t.Fatalf("arguments not preserved: %v %v", err, resp.ToolCalls[0].Function.Arguments)
	}
	if got["system"] != "You are a payroll data analyst." {
		t.Errorf("system prompt not folded: %v", got["system"])
	}
	if msgs, _ := got["messages"].([]any); len(msgs) != 1 {
		t.Errorf("expected only the user message on the wire, got %d", len(msgs))
	}
}

func TestChatMapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Chat(context.Background(), &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	llmErr, ok := llm.IsLLMError(err)
	if !ok {
		t.Fatalf("expected LLMError, got %v", err)
	}
	if llmErr.Type != llm.ErrorTypeAuthentication || llmErr.IsRetryable() {
		t.Fatalf("unexpected mapping: %+v", llmErr)
	}
}

func TestConvertMessagesToolResult(t *testing.T) {
	system, msgs := convertMessages(&llm.ChatRequest{
		SystemPrompt: "base",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "extra"},
			{Role: llm.RoleUser, Content: "q"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "t1", Function: llm.Function{Name: "calculator", Arguments: "not json"}}}},
			{Role: llm.RoleTool, ToolCallID: "t1", Content: "6"},
		},
	})
	if system != "base\n\nextra" {
		t.Errorf("unexpected system prompt %q", system)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(msgs))
	}
	if string(msgs[1].Content[0].MessageContentToolUse.Input) != "{}" {
		t.Errorf("invalid arguments must be replaced with an empty object")
	}
}
