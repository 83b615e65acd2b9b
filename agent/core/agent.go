package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/KamdynS/payroll-agents/llm"
	"github.com/KamdynS/payroll-agents/memory"
	"github.com/KamdynS/payroll-agents/rag"
	"github.com/KamdynS/payroll-agents/tools"
)

// FallbackText is returned to the user whenever a unit could not produce an
// answer. The conversation stays usable for the next turn.
const FallbackText = "I'm sorry, I wasn't able to answer that right now. Please try again in a moment."

// Answerer is the behaviour the orchestrator needs from an agent unit.
type Answerer interface {
	Answer(ctx context.Context, text string) Reply
}

// Config holds the per-unit model and conversation settings.
type Config struct {
	// Name labels logs, metrics and the assistant messages the unit writes.
	Name         string
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	// Tools lists the registry tools this unit may call. Tools outside the
	// list cannot be resolved even if the registry holds them.
	Tools []string

	// Memory enables loading and persisting the conversation log.
	Memory         bool
	ConversationID string
	UserID         string
	// History seeds the log after the system message when nothing is loaded
	// from the store.
	History []memory.Message

	// Timeout bounds a whole Answer call. Zero means no unit-level deadline.
	Timeout time.Duration
}

// Deps are the collaborators injected into a unit.
type Deps struct {
	LLM        llm.Client
	Store      memory.ConversationStore
	Retriever  rag.Retriever
	Tools      tools.Registry
	Guardrails Guardrails
	Logger     *zap.Logger
}

// Reply is the outcome of one Answer call. Text is always safe to show; Err
// is set when Text is FallbackText because something failed.
type Reply struct {
	Text           string
	Err            error
	ConversationID string
	Model          string
	Usage          *llm.Usage
	ToolCalls      []memory.ToolCall
	Latency        time.Duration
}

// OK reports whether the reply carries a real answer.
func (r Reply) OK() bool { return r.Err == nil }
