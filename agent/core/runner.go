package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KamdynS/payroll-agents/llm"
	"github.com/KamdynS/payroll-agents/logging"
	"github.com/KamdynS/payroll-agents/memory"
	obs "github.com/KamdynS/payroll-agents/observability"
	"github.com/KamdynS/payroll-agents/rag"
	"github.com/KamdynS/payroll-agents/tools"
)

// Unit is one agent role bound to one conversation log. Calls on a Unit are
// serialized so appends to its log are strictly ordered.
type Unit struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	mu      sync.Mutex
	history []memory.Message
	convID  string
}

var _ Answerer = (*Unit)(nil)

var errNilResponse = errors.New("model returned no response")

// New builds a unit. When memory is enabled and a conversation id is set, the
// stored log is loaded before New returns. A failed or missing load is logged
// and the unit starts a fresh conversation instead.
func New(ctx context.Context, cfg Config, deps Deps) *Unit {
	u := &Unit{
		cfg:  cfg,
		deps: deps,
		log:  logging.OrNop(deps.Logger).With(zap.String(logging.FieldAgent, cfg.Name)),
	}
	u.history = []memory.Message{u.systemMessage()}

	if cfg.Memory && cfg.ConversationID != "" && deps.Store != nil {
		stored, err := deps.Store.Load(ctx, cfg.ConversationID)
		switch {
		case errors.Is(err, memory.ErrNotFound):
			u.log.Info("conversation not found, starting fresh",
				zap.String(logging.FieldConversationID, cfg.ConversationID))
		case err != nil:
			u.log.Warn("failed to load conversation, starting fresh",
				zap.String(logging.FieldConversationID, cfg.ConversationID), zap.Error(err))
		default:
			u.convID = cfg.ConversationID
			u.history = append(u.history, withoutSystem(stored)...)
			return u
		}
	}
	u.history = append(u.history, withoutSystem(cfg.History)...)
	return u
}

func (u *Unit) systemMessage() memory.Message {
	return memory.Message{Role: llm.RoleSystem, Content: u.cfg.SystemPrompt, Timestamp: time.Now().Unix()}
}

// withoutSystem drops stored system messages; the unit's own prompt leads the log.
func withoutSystem(msgs []memory.Message) []memory.Message {
	out := make([]memory.Message, 0, len(msgs))
	for _, m := range memory.CloneMessages(msgs) {
		if m.Role == llm.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Name returns the configured unit name.
func (u *Unit) Name() string { return u.cfg.Name }

// ConversationID returns the id of the persisted conversation, or "" before
// the first successful save.
func (u *Unit) ConversationID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.convID
}

// History returns a copy of the message log.
func (u *Unit) History() []memory.Message {
	u.mu.Lock()
	defer u.mu.Unlock()
	return memory.CloneMessages(u.history)
}

// Reset truncates the log to the system message and forgets the conversation
// id, so the next persisted turn creates a new conversation.
func (u *Unit) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.history = []memory.Message{u.systemMessage()}
	u.convID = ""
}

// Answer runs one turn. It never returns an error: failures produce
// FallbackText with Reply.Err set, and the user message stays in the log.
func (u *Unit) Answer(ctx context.Context, text string) Reply {
	u.mu.Lock()
	defer u.mu.Unlock()

	start := time.Now()
	span, ctx := obs.TracerImpl.StartSpan(ctx, "agent.answer")
	defer span.End()
	span.SetAttribute(obs.AttrAgentType, u.cfg.Name)
	span.SetAttribute(obs.AttrModel, u.cfg.Model)

	if u.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.Timeout)
		defer cancel()
	}

	u.history = append(u.history, memory.Message{
		Role:      llm.RoleUser,
		Content:   text,
		Timestamp: time.Now().Unix(),
	})

	reply, err := u.safeTurn(ctx, text)
	reply.Latency = time.Since(start)
	labels := map[string]string{"agent": u.cfg.Name}

	if err != nil {
		u.log.Warn("agent turn failed", zap.Error(err), zap.Duration("latency", reply.Latency))
		span.SetStatus(obs.StatusCodeError, err.Error())
		labels["outcome"] = "error"
		obs.MetricsImpl.RecordLatency(reply.Latency, labels)
		obs.MetricsImpl.RecordError("agent_error", map[string]string{"agent": u.cfg.Name})
		return Reply{Text: FallbackText, Err: err, ConversationID: u.convID, Model: u.cfg.Model, Latency: reply.Latency}
	}

	labels["outcome"] = "ok"
	obs.MetricsImpl.RecordLatency(reply.Latency, labels)
	if reply.Usage != nil {
		obs.MetricsImpl.IncrementTokensUsed(reply.Usage.TotalTokens, map[string]string{"agent": u.cfg.Name})
	}

	u.history = append(u.history, memory.Message{
		Role:      llm.RoleAssistant,
		Content:   reply.Text,
		Name:      u.cfg.Name,
		ToolCall:  lastToolCall(reply.ToolCalls),
		Timestamp: time.Now().Unix(),
	})
	u.persist(ctx)

	reply.ConversationID = u.convID
	span.SetAttribute(obs.AttrConversationID, u.convID)
	span.SetStatus(obs.StatusCodeOk, "")
	return reply
}

// safeTurn converts a panic in a tool or model adapter into a turn error so it
// cannot escape a fan-out goroutine.
func (u *Unit) safeTurn(ctx context.Context, query string) (reply Reply, err error) {
	defer func() {
		if p := recover(); p != nil {
			u.log.Error("agent panic", zap.Any("panic", p), zap.Stack("stack"))
			reply, err = Reply{}, fmt.Errorf("agent panic: %v", p)
		}
	}()
	return u.turn(ctx, query)
}

// turn performs the model call and at most one tool round.
func (u *Unit) turn(ctx context.Context, query string) (Reply, error) {
	if u.deps.LLM == nil {
		return Reply{}, errors.New("no model client configured")
	}

	system := u.cfg.SystemPrompt
	if snippets := u.retrieve(ctx, query); len(snippets) > 0 {
		system += "\n\nUse the following reference material when it is relevant:\n\n" + rag.BuildContext(snippets)
	}

	messages := make([]llm.Message, 0, len(u.history))
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range u.history[1:] {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content, Name: m.Name})
	}

	req := &llm.ChatRequest{
		Messages: messages,
		Model:    u.cfg.Model,
		Tools:    u.toolDefinitions(),
		User:     u.cfg.UserID,
	}
	if u.cfg.Temperature > 0 {
		req.Temperature = llm.Float64(u.cfg.Temperature)
	}
	if u.cfg.MaxTokens > 0 {
		req.MaxTokens = llm.Int(u.cfg.MaxTokens)
	}
	if u.deps.Guardrails != nil {
		if err := u.deps.Guardrails.BeforeLLMCall(ctx, req); err != nil {
			return Reply{}, err
		}
	}

	resp, err := u.deps.LLM.Chat(ctx, req)
	if err != nil {
		return Reply{}, fmt.Errorf("model call: %w", err)
	}
	if resp == nil {
		return Reply{}, errNilResponse
	}
	usage := addUsage(nil, resp.Usage)

	var calls []memory.ToolCall
	if len(resp.ToolCalls) > 0 {
		req.Messages = append(req.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			result, err := u.runTool(ctx, tc)
			if err != nil {
				return Reply{}, err
			}
			calls = append(calls, memory.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
				Result:    result,
			})
			req.Messages = append(req.Messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}

		resp, err = u.deps.LLM.Chat(ctx, req)
		if err != nil {
			return Reply{}, fmt.Errorf("model follow-up after tool call: %w", err)
		}
		if resp == nil {
			return Reply{}, errNilResponse
		}
		usage = addUsage(usage, resp.Usage)
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return Reply{}, llm.NewLLMError(resp.Provider, llm.ErrorTypeEmptyResponse, "model returned no text")
	}
	return Reply{Text: answer, Model: resp.Model, Usage: usage, ToolCalls: calls}, nil
}

func (u *Unit) toolDefinitions() []llm.Tool {
	if len(u.cfg.Tools) == 0 {
		return nil
	}
	return tools.Definitions(u.deps.Tools, u.cfg.Tools)
}

func (u *Unit) runTool(ctx context.Context, tc llm.ToolCall) (string, error) {
	name := tc.Function.Name
	if u.deps.Tools == nil || !slices.Contains(u.cfg.Tools, name) {
		return "", fmt.Errorf("tool %q is not available to %s", name, u.cfg.Name)
	}
	result, err := u.deps.Tools.Execute(ctx, name, tc.Function.Arguments)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}
	return result, nil
}

// retrieve is best-effort: errors are logged and yield no snippets.
func (u *Unit) retrieve(ctx context.Context, query string) []string {
	if u.deps.Retriever == nil {
		return nil
	}
	snippets, err := u.deps.Retriever.Search(ctx, query)
	if err != nil {
		u.log.Warn("knowledge retrieval failed", zap.Error(err))
		return nil
	}
	return snippets
}

// persist saves the log. Save errors never change the reply.
func (u *Unit) persist(ctx context.Context) {
	if !u.cfg.Memory || u.deps.Store == nil {
		return
	}
	msgs := memory.CloneMessages(u.history)
	if u.convID != "" {
		err := u.deps.Store.Update(ctx, u.convID, msgs)
		if err == nil {
			return
		}
		if !errors.Is(err, memory.ErrNotFound) {
			u.log.Warn("failed to update conversation",
				zap.String(logging.FieldConversationID, u.convID), zap.Error(err))
			return
		}
		u.log.Info("conversation vanished, creating a new one",
			zap.String(logging.FieldConversationID, u.convID))
	}
	id, err := u.deps.Store.Create(ctx, u.cfg.UserID, msgs, map[string]string{"agent": u.cfg.Name})
	if err != nil {
		u.log.Warn("failed to create conversation", zap.Error(err))
		return
	}
	u.convID = id
}

func lastToolCall(calls []memory.ToolCall) *memory.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	tc := calls[len(calls)-1]
	return &tc
}

func addUsage(total, u *llm.Usage) *llm.Usage {
	if u == nil {
		return total
	}
	if total == nil {
		total = &llm.Usage{}
	}
	total.InputTokens += u.InputTokens
	total.OutputTokens += u.OutputTokens
	total.TotalTokens += u.TotalTokens
	total.Cost += u.Cost
	return total
}
