// Package llmtest provides a scriptable llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/KamdynS/payroll-agents/llm"
)

// HandlerFunc answers one chat request.
type HandlerFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error)

// Fake is a concurrency-safe llm.Client. Calls are recorded in order.
type Fake struct {
	Handler HandlerFunc
	// ModelName is reported by Model; defaults to "fake-model".
	ModelName string

	mu    sync.Mutex
	calls []llm.ChatRequest
}

// New returns a Fake driven by h.
func New(h HandlerFunc) *Fake { return &Fake{Handler: h} }

// Text returns a Fake that always answers text.
func Text(text string) *Fake {
	return New(func(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
		return Response(text), nil
	})
}

// Failing returns a Fake whose every call fails with err.
func Failing(err error) *Fake {
	return New(func(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
		return nil, err
	})
}

// Sequence returns a Fake that plays responses in order and repeats the last
// one once exhausted.
func Sequence(responses ...*llm.Response) *Fake {
	var mu sync.Mutex
	i := 0
	return New(func(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		r := responses[min(i, len(responses)-1)]
		i++
		cp := *r
		return &cp, nil
	})
}

// Response builds a plain assistant response.
func Response(text string) *llm.Response {
	return &llm.Response{
		Content:  text,
		Role:     llm.RoleAssistant,
		Model:    "fake-model",
		Provider: llm.ProviderOpenAI,
		Usage:    &llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

// ToolCall builds a response requesting one function call.
func ToolCall(id, name, args string) *llm.Response {
	r := Response("")
	r.FinishReason = "tool_calls"
	r.ToolCalls = []llm.ToolCall{{ID: id, Type: "function", Function: llm.Function{Name: name, Arguments: args}}}
	return r
}

func (f *Fake) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	f.mu.Lock()
	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	f.calls = append(f.calls, cp)
	f.mu.Unlock()

	if f.Handler == nil {
		return Response("ok"), nil
	}
	return f.Handler(ctx, req)
}

func (f *Fake) Model() string {
	if f.ModelName == "" {
		return "fake-model"
	}
	return f.ModelName
}

func (f *Fake) Provider() llm.Provider { return llm.ProviderOpenAI }
func (f *Fake) Validate() error        { return nil }

// Calls returns the requests received so far.
func (f *Fake) Calls() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.ChatRequest(nil), f.calls...)
}

// CallCount returns the number of requests received so far.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var _ llm.Client = (*Fake)(nil)
