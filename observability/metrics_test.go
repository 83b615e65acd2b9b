package observability

import (
	"sync"
	"testing"
	"time"
)

func TestNoOpMetrics(t *testing.T) {
	var m Metrics = &NoOpMetrics{}
	m.IncrementRequests(nil)
	m.RecordLatency(time.Millisecond, nil)
	m.IncrementTokensUsed(10, nil)
	m.RecordError("x", nil)
	m.SetActiveAgents(1)
	m.ObservePlan(2, false)
}

func TestDefaultMetrics(t *testing.T) {
	m := NewDefaultMetrics()
	m.IncrementRequests(map[string]string{"route": "/api/query"})
	m.RecordLatency(2*time.Millisecond, nil)
	m.IncrementTokensUsed(5, nil)
	m.RecordError("agent_failure", nil)
	m.SetActiveAgents(3)
	m.ObservePlan(3, false)
	m.ObservePlan(1, true)

	s := m.GetStats()
	if s["requests"].(int64) != 1 {
		t.Fatalf("requests wrong: %+v", s)
	}
	if s["active_agents"].(int) != 3 {
		t.Fatalf("active wrong: %+v", s)
	}
	if s["plans"].(int64) != 2 || s["plan_width_sum"].(int64) != 4 || s["fallback_plans"].(int64) != 1 {
		t.Fatalf("plan stats wrong: %+v", s)
	}
}

func TestDefaultMetricsConcurrent(t *testing.T) {
	m := NewDefaultMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementRequests(nil)
			m.RecordError("agent_failure", nil)
		}()
	}
	wg.Wait()
	if got := m.GetStats()["requests"].(int64); got != 50 {
		t.Fatalf("lost increments: %d", got)
	}
}
