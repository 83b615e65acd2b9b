package core

import (
	"context"
	"errors"
	"strings"

	"github.com/KamdynS/payroll-agents/llm"
)

// ErrBlocked is returned by guardrails that refuse a request.
var ErrBlocked = errors.New("request blocked by guardrails")

// Guardrails inspects and may rewrite a request before it reaches the model.
type Guardrails interface {
	BeforeLLMCall(ctx context.Context, req *llm.ChatRequest) error
}

// SimpleGuardrails truncates oversized user input and refuses inputs that
// contain a denied term.
type SimpleGuardrails struct {
	DenySubstrings []string
	// MaxInputChars caps the last user message, counted in runes. Zero disables.
	MaxInputChars int
}

func (g *SimpleGuardrails) BeforeLLMCall(ctx context.Context, req *llm.ChatRequest) error {
	if req == nil || len(req.Messages) == 0 {
		return nil
	}
	last := &req.Messages[len(req.Messages)-1]
	if last.Role != llm.RoleUser {
		return nil
	}
	if g.MaxInputChars > 0 {
		if r := []rune(last.Content); len(r) > g.MaxInputChars {
			last.Content = string(r[:g.MaxInputChars])
		}
	}
	lower := strings.ToLower(last.Content)
	for _, s := range g.DenySubstrings {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return ErrBlocked
		}
	}
	return nil
}
