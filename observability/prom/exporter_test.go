package prom

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExporterMetricsAndHandler(t *testing.T) {
	e := New()
	e.IncrementRequests(map[string]string{"route": "/api/query", "method": "POST", "status_code": "200"})
	e.RecordLatency(3*time.Millisecond, map[string]string{"agent": "tax", "outcome": "ok"})
	e.IncrementTokensUsed(7, map[string]string{"direction": "input", "model": "gpt-4o-mini"})
	e.RecordError("agent_failure", map[string]string{"agent": "compliance", "outcome": "error"})
	e.ObservePlan(2, false)
	e.ObservePlan(1, true)
	e.SetActiveAgents(2)

	rr := httptest.NewRecorder()
	Handler(e).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()

	for _, want := range []string{
		`payroll_agents_requests_total{label="/api/query|POST|200"} 1`,
		`payroll_agents_latency_seconds_sum{label="tax|ok"} 0.003`,
		`payroll_agents_errors_total{label="agent_failure|compliance|error"} 1`,
		`payroll_agents_plan_width_total{label="2"} 1`,
		`payroll_agents_fallback_plans_total 1`,
		`payroll_agents_active_agents 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in metrics body:\n%s", want, body)
		}
	}
}
