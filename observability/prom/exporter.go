package prom

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KamdynS/payroll-agents/observability"
)

const namespace = "payroll_agents"

// Exporter implements observability.Metrics and exposes a Prometheus text endpoint
// without external dependencies. It aggregates counters and simple latency sums.
type Exporter struct {
	mu            sync.Mutex
	requests      map[string]float64
	latency       map[string]float64
	tokens        map[string]float64
	errors        map[string]float64
	planWidth     map[string]float64
	active        float64
	plans         float64
	fallbackPlans float64
}

// New creates a new in-process exporter.
func New() *Exporter {
	return &Exporter{
		requests:  make(map[string]float64),
		latency:   make(map[string]float64),
		tokens:    make(map[string]float64),
		errors:    make(map[string]float64),
		planWidth: make(map[string]float64),
	}
}

// Handler returns an HTTP handler for a simple /metrics endpoint.
func Handler(e *Exporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render returns the current exposition text. Series are sorted.
func (e *Exporter) Render() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	writeSeries(&b, "requests_total", e.requests)
	writeSeries(&b, "latency_seconds_sum", e.latency)
	writeSeries(&b, "tokens_total", e.tokens)
	writeSeries(&b, "errors_total", e.errors)
	writeSeries(&b, "plan_width_total", e.planWidth)
	fmt.Fprintf(&b, "%s_plans_total %s\n", namespace, formatFloat(e.plans))
	fmt.Fprintf(&b, "%s_fallback_plans_total %s\n", namespace, formatFloat(e.fallbackPlans))
	fmt.Fprintf(&b, "%s_active_agents %s\n", namespace, formatFloat(e.active))
	return b.String()
}

func writeSeries(b *strings.Builder, name string, series map[string]float64) {
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s_%s{label=%q} %s\n", namespace, name, k, formatFloat(series[k]))
	}
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func (e *Exporter) IncrementRequests(labels map[string]string) {
	e.mu.Lock()
	e.requests[labelKey(labels)]++
	e.mu.Unlock()
}

func (e *Exporter) RecordLatency(d time.Duration, labels map[string]string) {
	e.mu.Lock()
	e.latency[labelKey(labels)] += d.Seconds()
	e.mu.Unlock()
}

func (e *Exporter) IncrementTokensUsed(tokens int, labels map[string]string) {
	e.mu.Lock()
	e.tokens[labelKey(labels)] += float64(tokens)
	e.mu.Unlock()
}

func (e *Exporter) RecordError(errorType string, labels map[string]string) {
	key := errorType
	if len(labels) > 0 {
		key = key + "|" + labelKey(labels)
	}
	e.mu.Lock()
	e.errors[key]++
	e.mu.Unlock()
}

func (e *Exporter) SetActiveAgents(count int) {
	e.mu.Lock()
	e.active = float64(count)
	e.mu.Unlock()
}

func (e *Exporter) ObservePlan(width int, fallback bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plans++
	e.planWidth[strconv.Itoa(width)]++
	if fallback {
		e.fallbackPlans++
	}
}

func labelKey(labels map[string]string) string {
	if v, ok := labels["route"]; ok {
		return v + "|" + labels["method"] + "|" + labels["status_code"]
	}
	if v, ok := labels["agent"]; ok {
		return v + "|" + labels["outcome"]
	}
	if v, ok := labels["tool_name"]; ok {
		return "tool|" + v
	}
	if v, ok := labels["direction"]; ok {
		return v + "|" + labels["model"]
	}
	return "generic"
}

// Ensure interface compliance
var _ observability.Metrics = (*Exporter)(nil)
