package relevance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KamdynS/payroll-agents/agent/catalog"
	"github.com/KamdynS/payroll-agents/llm"
	"github.com/KamdynS/payroll-agents/logging"
	obs "github.com/KamdynS/payroll-agents/observability"
)

// LLMAnalyzer asks a model to score every catalog agent.
type LLMAnalyzer struct {
	Client  llm.Client
	Catalog *catalog.Catalog
	// Model overrides the client's default model when set.
	Model  string
	Policy Policy
	Logger *zap.Logger
}

type analysisOutput struct {
	Analysis       string                    `json:"analysis"`
	AgentRelevance map[string]relevanceEntry `json:"agent_relevance"`
}

type relevanceEntry struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

func (a *analysisOutput) Validate() error {
	if len(a.AgentRelevance) == 0 {
		return errors.New("agent_relevance is empty")
	}
	return nil
}

// Analyze never fails. Model, parse and validation errors yield the
// fallback plan.
func (a *LLMAnalyzer) Analyze(ctx context.Context, query string) Plan {
	span, ctx := obs.TracerImpl.StartSpan(ctx, "relevance.analyze")
	defer span.End()

	plan, err := a.analyze(ctx, query)
	if err != nil {
		logging.OrNop(a.Logger).Warn("relevance analysis failed, using default agent", zap.Error(err))
		span.SetStatus(obs.StatusCodeError, err.Error())
		plan = a.Policy.FallbackPlan()
	} else {
		span.SetStatus(obs.StatusCodeOk, "")
	}
	span.SetAttribute(obs.AttrPlanWidth, len(plan.Chosen))
	span.SetAttribute(obs.AttrPlanFallback, plan.Fallback)
	return plan
}

func (a *LLMAnalyzer) analyze(ctx context.Context, query string) (Plan, error) {
	if a.Client == nil || a.Catalog == nil {
		return Plan{}, errors.New("analyzer not configured")
	}
	resp, err := a.Client.Chat(ctx, &llm.ChatRequest{
		Model:          a.Model,
		SystemPrompt:   a.systemPrompt(),
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: query}},
		Temperature:    llm.Float64(0),
		MaxTokens:      llm.Int(800),
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return Plan{}, fmt.Errorf("relevance model call: %w", err)
	}
	out, err := llm.ParseStructured[*analysisOutput](resp.Content)
	if err != nil {
		return Plan{}, err
	}

	scores := make(map[catalog.Type]Score, len(out.AgentRelevance))
	for tag, e := range out.AgentRelevance {
		t, err := catalog.ParseType(tag)
		if err != nil {
			continue
		}
		scores[t] = Score{Score: e.Score, Reason: strings.TrimSpace(e.Reason)}
	}
	if len(scores) == 0 {
		return Plan{}, errors.New("analysis scored no known agents")
	}
	return a.Policy.Build(scores, strings.TrimSpace(out.Analysis)), nil
}

func (a *LLMAnalyzer) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You route payroll questions to specialist agents. Score how relevant each agent is ")
	b.WriteString("to the user's question on a scale from 0 to 1 and give a one-line reason.\n\nAgents:\n")
	for _, d := range a.Catalog.Descriptors() {
		fmt.Fprintf(&b, "- %s (%s): %s\n", d.Type, d.DisplayName, d.Capability)
	}
	b.WriteString("\nRespond with a JSON object only, in this shape:\n")
	b.WriteString(`{"analysis": "<one or two sentences>", "agent_relevance": {"<agent>": {"score": 0.0, "reason": "<why>"}}}`)
	b.WriteString("\nInclude every agent listed above.")
	return b.String()
}

var _ Analyzer = (*LLMAnalyzer)(nil)
