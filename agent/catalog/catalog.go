// Package catalog defines the closed set of agent types and their static
// configuration. The catalog is built once at startup and never mutated.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/KamdynS/payroll-agents/llm"
)

// Type identifies an agent role.
type Type string

const (
	Tax        Type = "tax"
	Compliance Type = "compliance"
	Research   Type = "research"
	Data       Type = "data"
	Reasoning  Type = "reasoning"
)

// Default is the agent used whenever routing has nothing better to offer.
const Default = Reasoning

// order is the fixed catalog order, most specific first. It is also the
// tie-break order used when ranking plans and contributions.
var order = []Type{Tax, Compliance, Research, Data, Reasoning}

// ErrUnknownType is returned by ParseType for tags outside the catalog.
var ErrUnknownType = errors.New("unknown agent type")

// ParseType converts a wire tag into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range order {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Types returns every agent type in catalog order.
func Types() []Type {
	return append([]Type(nil), order...)
}

// Rank is t's position in catalog order. Unknown types sort last.
func Rank(t Type) int {
	for i, known := range order {
		if t == known {
			return i
		}
	}
	return len(order)
}

// IsSpecialist reports whether t is a domain specialist rather than the
// general reasoning agent.
func (t Type) IsSpecialist() bool { return t != Reasoning }

func (t Type) String() string { return string(t) }

// Descriptor is the public description of an agent.
type Descriptor struct {
	Type        Type   `json:"type"`
	DisplayName string `json:"displayName"`
	Capability  string `json:"capability"`
}

// Entry is the full static configuration for one agent type.
type Entry struct {
	Descriptor
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	Tools        []string
	// Keywords feed the offline keyword analyzer.
	Keywords []string
}

// Catalog maps every Type to its Entry.
type Catalog struct {
	entries map[Type]Entry
}

// Get returns the entry for t.
func (c *Catalog) Get(t Type) (Entry, bool) {
	e, ok := c.entries[t]
	return e, ok
}

// MustGet returns the entry for t and panics for types outside the catalog.
func (c *Catalog) MustGet(t Type) Entry {
	e, ok := c.entries[t]
	if !ok {
		panic(fmt.Sprintf("catalog: no entry for %q", t))
	}
	return e
}

// Descriptors returns public descriptors in catalog order.
func (c *Catalog) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(order))
	for _, t := range order {
		out = append(out, c.entries[t].Descriptor)
	}
	return out
}

// Entries returns all entries in catalog order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(order))
	for _, t := range order {
		out = append(out, c.entries[t])
	}
	return out
}

// New returns the built-in catalog.
func New() *Catalog {
	entries := make(map[Type]Entry, len(builtin))
	for _, e := range builtin {
		e.Tools = append([]string(nil), e.Tools...)
		e.Keywords = append([]string(nil), e.Keywords...)
		entries[e.Type] = e
	}
	return &Catalog{entries: entries}
}

var builtin = []Entry{
	{
		Descriptor: Descriptor{
			Type:        Tax,
			DisplayName: "Tax Specialist",
			Capability:  "Federal, state and local payroll taxes: FICA, FUTA/SUTA, withholding, tax forms and filing deadlines.",
		},
		SystemPrompt: "You are a payroll tax specialist. Answer questions about federal, state and local payroll " +
			"taxes, including FICA, Medicare, FUTA, SUTA, income tax withholding, W-2, W-4, 940 and 941 filings. " +
			"Use the calculator tool for any arithmetic. Cite the rule or form you rely on and say when a " +
			"figure depends on the current tax year.",
		Model:       llm.ModelGPT4o,
		Temperature: 0.2,
		MaxTokens:   1200,
		Tools:       []string{"calculator"},
		Keywords: []string{"tax", "fica", "medicare", "social security", "futa", "suta", "withholding",
			"w-2", "w2", "w-4", "w4", "941", "940", "1099", "irs", "deduction", "pre-tax"},
	},
	{
		Descriptor: Descriptor{
			Type:        Compliance,
			DisplayName: "Compliance Specialist",
			Capability:  "Labor law and payroll compliance: FLSA, overtime, minimum wage, worker classification, record keeping.",
		},
		SystemPrompt: "You are a payroll compliance specialist. Answer questions about labor law and payroll " +
			"regulations: FLSA, overtime rules, minimum wage, exempt versus non-exempt status, contractor " +
			"classification, pay frequency and record-keeping requirements. Flag jurisdiction-specific rules " +
			"and recommend professional review where penalties are involved.",
		Model:       llm.ModelGPT4o,
		Temperature: 0.2,
		MaxTokens:   1200,
		Keywords: []string{"compliance", "comply", "flsa", "overtime", "minimum wage", "exempt", "non-exempt",
			"classification", "contractor", "labor law", "regulation", "audit", "penalty", "record keeping", "legal"},
	},
	{
		Descriptor: Descriptor{
			Type:        Research,
			DisplayName: "Research Specialist",
			Capability:  "Background research on payroll practices, benefits, industry benchmarks and recent regulatory changes.",
		},
		SystemPrompt: "You are a payroll research specialist. Gather and summarize background on payroll " +
			"practices, benefits administration, industry benchmarks and recent regulatory changes. " +
			"Distinguish established facts from trends and note where information may be out of date.",
		Model:       llm.ModelGPT4oMini,
		Temperature: 0.4,
		MaxTokens:   1200,
		Keywords: []string{"research", "trend", "benchmark", "industry", "best practice", "compare", "history",
			"latest", "news", "change", "benefit", "401k", "pto", "survey"},
	},
	{
		Descriptor: Descriptor{
			Type:        Data,
			DisplayName: "Data Analyst",
			Capability:  "Payroll data analysis: totals, averages, cost breakdowns, trends and anomalies across payroll runs.",
		},
		SystemPrompt: "You are a payroll data analyst. Analyze payroll figures, compute totals, averages, " +
			"percentages and cost breakdowns, and explain trends or anomalies. Use the calculator tool for " +
			"every computation and show the numbers you used.",
		Model:       llm.ModelGPT4oMini,
		Temperature: 0.1,
		MaxTokens:   1000,
		Tools:       []string{"calculator"},
		Keywords: []string{"data", "analyze", "analysis", "average", "total", "sum", "report", "cost",
			"breakdown", "percentage", "calculate", "headcount", "gross", "net pay", "anomaly", "spreadsheet"},
	},
	{
		Descriptor: Descriptor{
			Type:        Reasoning,
			DisplayName: "General Reasoning",
			Capability:  "General payroll questions, step-by-step explanations and anything outside the specialists' domains.",
		},
		SystemPrompt: "You are a helpful payroll assistant. Think through the question step by step, " +
			"writing each step as \"Step N:\", then give a concise final answer. If the question needs " +
			"specialist tax or legal advice, say so.",
		Model:       llm.ModelGPT4oMini,
		Temperature: 0.5,
		MaxTokens:   1000,
		Keywords:    []string{"explain", "why", "how", "help", "what", "step"},
	},
}

// overrideFile is the YAML layout accepted by LoadFile.
type overrideFile struct {
	Agents map[string]struct {
		DisplayName  string   `yaml:"display_name"`
		Capability   string   `yaml:"capability"`
		SystemPrompt string   `yaml:"system_prompt"`
		Model        string   `yaml:"model"`
		Temperature  *float64 `yaml:"temperature"`
		MaxTokens    int      `yaml:"max_tokens"`
		Tools        []string `yaml:"tools"`
		Keywords     []string `yaml:"keywords"`
	} `yaml:"agents"`
}

// LoadFile returns the built-in catalog with overrides from a YAML file
// applied. An empty path returns the built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	c := New()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if err := c.apply(data); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) apply(data []byte) error {
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	for tag, o := range f.Agents {
		t, err := ParseType(tag)
		if err != nil {
			return err
		}
		e := c.entries[t]
		if o.DisplayName != "" {
			e.DisplayName = o.DisplayName
		}
		if o.Capability != "" {
			e.Capability = o.Capability
		}
		if o.SystemPrompt != "" {
			e.SystemPrompt = o.SystemPrompt
		}
		if o.Model != "" {
			e.Model = o.Model
		}
		if o.Temperature != nil {
			if *o.Temperature < 0 || *o.Temperature > 2 {
				return fmt.Errorf("%s: temperature out of range", t)
			}
			e.Temperature = *o.Temperature
		}
		if o.MaxTokens > 0 {
			e.MaxTokens = o.MaxTokens
		}
		if o.Tools != nil {
			e.Tools = o.Tools
		}
		if o.Keywords != nil {
			e.Keywords = o.Keywords
		}
		c.entries[t] = e
	}
	return nil
}
