package relevance

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/KamdynS/payroll-agents/agent/catalog"
)

// KeywordAnalyzer scores agents by catalog keyword hits. It needs no model
// and is deterministic. A specialist with n hits scores n/(n+1); the general
// reasoning agent scores half of that so a generic word never outweighs a
// domain term.
type KeywordAnalyzer struct {
	Policy Policy

	patterns map[catalog.Type][]keyword
}

type keyword struct {
	word string
	re   *regexp.Regexp
}

// NewKeywordAnalyzer compiles the keyword lists from cat.
func NewKeywordAnalyzer(cat *catalog.Catalog, policy Policy) *KeywordAnalyzer {
	k := &KeywordAnalyzer{Policy: policy, patterns: make(map[catalog.Type][]keyword)}
	for _, e := range cat.Entries() {
		for _, w := range e.Keywords {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				continue
			}
			k.patterns[e.Type] = append(k.patterns[e.Type], keyword{
				word: w,
				re:   regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`),
			})
		}
	}
	return k
}

func (k *KeywordAnalyzer) Analyze(ctx context.Context, query string) Plan {
	scores := k.Scores(query)
	var matched []string
	for _, t := range Rank(scores) {
		if scores[t].Score > 0 {
			matched = append(matched, fmt.Sprintf("%s %.2f", t, scores[t].Score))
		}
	}
	narrative := "No catalog keywords matched the query."
	if len(matched) > 0 {
		narrative = "Keyword match: " + strings.Join(matched, ", ") + "."
	}
	return k.Policy.Build(scores, narrative)
}

// Scores returns the raw keyword score for every catalog agent.
func (k *KeywordAnalyzer) Scores(query string) map[catalog.Type]Score {
	q := strings.ToLower(query)
	scores := make(map[catalog.Type]Score, len(k.patterns))
	for _, t := range catalog.Types() {
		var hits []string
		for _, kw := range k.patterns[t] {
			if kw.re.MatchString(q) {
				hits = append(hits, kw.word)
			}
		}
		if len(hits) == 0 {
			scores[t] = Score{Reason: "no keyword matches"}
			continue
		}
		n := float64(len(hits))
		s := n / (n + 1)
		if !t.IsSpecialist() {
			s /= 2
		}
		scores[t] = Score{Score: s, Reason: "matched: " + strings.Join(hits, ", ")}
	}
	return scores
}

var _ Analyzer = (*KeywordAnalyzer)(nil)
