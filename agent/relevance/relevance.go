// Package relevance scores how applicable each catalog agent is to a query
// and turns the scores into an execution plan.
package relevance

import (
	"context"
	"math"
	"sort"

	"github.com/KamdynS/payroll-agents/agent/catalog"
)

const (
	// DefaultCutoff is the minimum score for an agent to join a plan.
	DefaultCutoff = 0.5
	// DefaultMaxAgents caps fan-out width.
	DefaultMaxAgents = 3

	// FallbackReason explains plans built without a usable analysis.
	FallbackReason = "fallback: analysis unavailable"
	notAssessed    = "not assessed"
)

// Score is one agent's applicability to a query.
type Score struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Plan is the routing decision for one query.
type Plan struct {
	Scores    map[catalog.Type]Score
	Narrative string
	// Chosen is never empty and is ordered best first.
	Chosen []catalog.Type
	// Fallback is set when the analysis failed and the default agent was used.
	Fallback bool
}

// Analyzer produces a plan for a query. Implementations never fail: an
// unusable analysis degrades to Policy.FallbackPlan.
type Analyzer interface {
	Analyze(ctx context.Context, query string) Plan
}

// Policy turns scores into a selection.
type Policy struct {
	Cutoff    float64
	MaxAgents int
	Default   catalog.Type
}

// DefaultPolicy returns the documented selection constants.
func DefaultPolicy() Policy {
	return Policy{Cutoff: DefaultCutoff, MaxAgents: DefaultMaxAgents, Default: catalog.Default}
}

func (p Policy) normalized() Policy {
	if p.Cutoff <= 0 || p.Cutoff > 1 {
		p.Cutoff = DefaultCutoff
	}
	if p.MaxAgents <= 0 {
		p.MaxAgents = DefaultMaxAgents
	}
	if p.Default == "" {
		p.Default = catalog.Default
	}
	return p
}

// FallbackPlan is the plan used when analysis is unavailable.
func (p Policy) FallbackPlan() Plan {
	p = p.normalized()
	return Plan{
		Scores:    map[catalog.Type]Score{p.Default: {Score: 1, Reason: FallbackReason}},
		Narrative: FallbackReason,
		Chosen:    []catalog.Type{p.Default},
		Fallback:  true,
	}
}

// Build clamps scores, fills in agents the analysis skipped and selects the
// agents to run.
func (p Policy) Build(scores map[catalog.Type]Score, narrative string) Plan {
	p = p.normalized()
	full := make(map[catalog.Type]Score, len(catalog.Types()))
	for _, t := range catalog.Types() {
		s, ok := scores[t]
		if !ok {
			s = Score{Reason: notAssessed}
		}
		s.Score = Clamp(s.Score)
		full[t] = s
	}
	return Plan{Scores: full, Narrative: narrative, Chosen: p.Select(full)}
}

// Select ranks agents by score, best first. Ties go to specialists before
// the reasoning agent, then to catalog order. Every agent at or above the
// cutoff is taken, up to MaxAgents. When none reach the cutoff the top agent
// is taken alone; when every score is zero the default agent is.
func (p Policy) Select(scores map[catalog.Type]Score) []catalog.Type {
	p = p.normalized()
	ranked := Rank(scores)
	if len(ranked) == 0 || scores[ranked[0]].Score <= 0 {
		return []catalog.Type{p.Default}
	}
	var chosen []catalog.Type
	for _, t := range ranked {
		if len(chosen) == p.MaxAgents || scores[t].Score < p.Cutoff {
			break
		}
		chosen = append(chosen, t)
	}
	if len(chosen) == 0 {
		chosen = ranked[:1]
	}
	return chosen
}

// Rank orders the scored agents best first using the selection tie-break.
func Rank(scores map[catalog.Type]Score) []catalog.Type {
	ranked := make([]catalog.Type, 0, len(scores))
	for t := range scores {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if sa, sb := scores[a].Score, scores[b].Score; sa != sb {
			return sa > sb
		}
		if a.IsSpecialist() != b.IsSpecialist() {
			return a.IsSpecialist()
		}
		return catalog.Rank(a) < catalog.Rank(b)
	})
	return ranked
}

// Clamp limits v to [0,1]. NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Clone returns a deep copy of p.
func (p Plan) Clone() Plan {
	cp := p
	cp.Scores = make(map[catalog.Type]Score, len(p.Scores))
	for k, v := range p.Scores {
		cp.Scores[k] = v
	}
	cp.Chosen = append([]catalog.Type(nil), p.Chosen...)
	return cp
}
