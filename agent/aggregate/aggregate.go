// Package aggregate merges agent contributions into one answer.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/KamdynS/payroll-agents/agent/catalog"
	"github.com/KamdynS/payroll-agents/llm"
	"github.com/KamdynS/payroll-agents/logging"
	obs "github.com/KamdynS/payroll-agents/observability"
)

// DegradedText is the answer when every contribution failed.
const DegradedText = "We could not complete your request right now. Our assistants are temporarily unavailable; please try again shortly."

// Contribution is one agent's answer for a turn. Failed contributions keep
// their slot with confidence 0.
type Contribution struct {
	AgentType      catalog.Type `json:"agentType"`
	AgentName      string       `json:"agentName"`
	Response       string       `json:"response"`
	Confidence     float64      `json:"confidence"`
	Failed         bool         `json:"failed"`
	Error          string       `json:"error,omitempty"`
	ReasoningSteps []string     `json:"reasoningSteps,omitempty"`
}

// Result is the aggregated answer plus the ordered contributions.
type Result struct {
	FinalText     string
	Contributions []Contribution
	// Degraded is set when no contribution succeeded.
	Degraded bool
	// Synthesized is set when a model wrote FinalText.
	Synthesized bool
}

// Order returns cs sorted by descending confidence, ties in catalog order.
// The input is not modified.
func Order(cs []Contribution) []Contribution {
	out := append([]Contribution(nil), cs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return catalog.Rank(out[i].AgentType) < catalog.Rank(out[j].AgentType)
	})
	return out
}

// Synthesizer writes one answer from several ordered contributions.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, ordered []Contribution) (string, error)
}

// Aggregator combines contributions. With no Synthesizer, or when it fails,
// a deterministic attributed template is used.
type Aggregator struct {
	Synthesizer Synthesizer
	Logger      *zap.Logger
}

func (a *Aggregator) Aggregate(ctx context.Context, query string, cs []Contribution) Result {
	ordered := Order(cs)
	res := Result{Contributions: ordered}

	var ok []Contribution
	for _, c := range ordered {
		if !c.Failed {
			ok = append(ok, c)
		}
	}

	switch len(ok) {
	case 0:
		res.FinalText = DegradedText
		res.Degraded = true
		return res
	case 1:
		res.FinalText = ok[0].Response
		return res
	}

	if a.Synthesizer != nil {
		span, sctx := obs.TracerImpl.StartSpan(ctx, "aggregate.synthesize")
		text, err := a.Synthesizer.Synthesize(sctx, query, ok)
		if err == nil && strings.TrimSpace(text) != "" {
			span.SetStatus(obs.StatusCodeOk, "")
			span.End()
			res.FinalText = strings.TrimSpace(text)
			res.Synthesized = true
			return res
		}
		if err == nil {
			err = errors.New("empty synthesis")
		}
		span.SetStatus(obs.StatusCodeError, err.Error())
		span.End()
		logging.OrNop(a.Logger).Warn("synthesis failed, using template", zap.Error(err))
	}
	res.FinalText = Template(ordered)
	return res
}

// Template renders ordered contributions as an attributed answer. Failed
// contributions are noted at the end.
func Template(ordered []Contribution) string {
	var b strings.Builder
	b.WriteString("Here is what our specialists found:\n")
	var failed []string
	for _, c := range ordered {
		if c.Failed {
			failed = append(failed, c.AgentName)
			continue
		}
		fmt.Fprintf(&b, "\n**%s** (confidence %.2f):\n%s\n", c.AgentName, c.Confidence, strings.TrimSpace(c.Response))
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nNot available for this answer: %s.\n", strings.Join(failed, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// LLMSynthesizer asks a model to merge the contributions.
type LLMSynthesizer struct {
	Client llm.Client
	Model  string
}

const synthesisPrompt = "You combine answers from payroll specialists into one clear, coherent answer for the user. " +
	"Attribute each claim to the specialist who made it, for example \"(Tax Specialist)\". " +
	"Answers are listed from most to least relevant; when they conflict, prefer the more relevant one and say so. " +
	"Do not add facts that none of the specialists stated."

func (s *LLMSynthesizer) Synthesize(ctx context.Context, query string, ordered []Contribution) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nSpecialist answers, most relevant first:\n", query)
	for _, c := range ordered {
		fmt.Fprintf(&b, "\n[%s, confidence %.2f]\n%s\n", c.AgentName, c.Confidence, strings.TrimSpace(c.Response))
	}
	resp, err := s.Client.Chat(ctx, &llm.ChatRequest{
		Model:        s.Model,
		SystemPrompt: synthesisPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		Temperature:  llm.Float64(0.3),
	})
	if err != nil {
		return "", fmt.Errorf("synthesis: %w", err)
	}
	return resp.Content, nil
}
