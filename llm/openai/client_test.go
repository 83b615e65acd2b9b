package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KamdynS/payroll-agents/llm"
)

func TestChatToolCallRoundTrip(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1","object":"chat.completion","created":1,
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"",
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"calculator","arguments":"{\"operation\":\"pct\",\"a\":6.2,\"b\":50000}"}}]}}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		SystemPrompt: "You are a tax specialist.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "What is social security on 50000?"},
		},
		Tools: []llm.Tool{{Type: "function", Function: llm.ToolFunction{Name: "calculator"}}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "calculator" {
		t.Fatalf("tool calls not decoded: %+v", resp.ToolCalls)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Fatalf("usage not decoded: %+v", resp.Usage)
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(msgs))
	}
	if tools, _ := got["tools"].([]any); len(tools) != 1 {
		t.Fatalf("expected tools in request, got %v", got["tools"])
	}
}

func TestChatErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Chat(context.Background(), &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	llmErr, ok := llm.IsLLMError(err)
	if !ok {
		t.Fatalf("expected LLMError, got %v", err)
	}
	if llmErr.Type != llm.ErrorTypeAuthentication || llmErr.Code != "invalid_api_key" {
		t.Fatalf("unexpected mapping: %+v", llmErr)
	}
}

func TestConvertMessages_ToolTraffic(t *testing.T) {
	msgs := convertMessages(&llm.ChatRequest{Messages: []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Type: "function", Function: llm.Function{Name: "calculator", Arguments: "{}"}}}},
		{Role: llm.RoleTool, ToolCallID: "c1", Content: "42"},
	}})
	if len(msgs) != 2 || len(msgs[0].ToolCalls) != 1 || msgs[1].ToolCallID != "c1" {
		t.Fatalf("unexpected conversion: %+v", msgs)
	}
}

func TestValidateRejectsForeignModel(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "k", Model: llm.ModelClaude35Haiku}); err == nil {
		t.Fatal("expected anthropic model to be rejected")
	}
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected missing key to be rejected")
	}
}
