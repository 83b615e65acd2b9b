package observability

import (
	"sync"
	"time"
)

// Metrics defines the interface for collecting orchestration metrics
type Metrics interface {
	// IncrementRequests increments the request counter
	IncrementRequests(labels map[string]string)

	// RecordLatency records request, agent or tool latency
	RecordLatency(duration time.Duration, labels map[string]string)

	// IncrementTokensUsed increments token usage counter
	IncrementTokensUsed(tokens int, labels map[string]string)

	// RecordError increments error counter
	RecordError(errorType string, labels map[string]string)

	// SetActiveAgents sets the gauge for in-flight agent units
	SetActiveAgents(count int)

	// ObservePlan records how many agents a relevance plan dispatched
	ObservePlan(width int, fallback bool)
}

// NoOpMetrics is a no-operation implementation of Metrics
type NoOpMetrics struct{}

// IncrementRequests implements Metrics interface
func (n *NoOpMetrics) IncrementRequests(labels map[string]string) {}

// RecordLatency implements Metrics interface
func (n *NoOpMetrics) RecordLatency(duration time.Duration, labels map[string]string) {}

// IncrementTokensUsed implements Metrics interface
func (n *NoOpMetrics) IncrementTokensUsed(tokens int, labels map[string]string) {}

// RecordError implements Metrics interface
func (n *NoOpMetrics) RecordError(errorType string, labels map[string]string) {}

// SetActiveAgents implements Metrics interface
func (n *NoOpMetrics) SetActiveAgents(count int) {}

// ObservePlan implements Metrics interface
func (n *NoOpMetrics) ObservePlan(width int, fallback bool) {}

// DefaultMetrics is a simple in-memory metrics collector
type DefaultMetrics struct {
	mu            sync.Mutex
	requests      int64
	totalLatency  time.Duration
	tokensUsed    int64
	errors        map[string]int64
	activeAgents  int
	plans         int64
	planWidth     int64
	fallbackPlans int64
}

// NewDefaultMetrics creates a new DefaultMetrics instance
func NewDefaultMetrics() *DefaultMetrics {
	return &DefaultMetrics{
		errors: make(map[string]int64),
	}
}

// IncrementRequests implements Metrics interface
func (m *DefaultMetrics) IncrementRequests(labels map[string]string) {
	m.mu.Lock()
	m.requests++
	m.mu.Unlock()
}

// RecordLatency implements Metrics interface
func (m *DefaultMetrics) RecordLatency(duration time.Duration, labels map[string]string) {
	m.mu.Lock()
	m.totalLatency += duration
	m.mu.Unlock()
}

// IncrementTokensUsed implements Metrics interface
func (m *DefaultMetrics) IncrementTokensUsed(tokens int, labels map[string]string) {
	m.mu.Lock()
	m.tokensUsed += int64(tokens)
	m.mu.Unlock()
}

// RecordError implements Metrics interface
func (m *DefaultMetrics) RecordError(errorType string, labels map[string]string) {
	m.mu.Lock()
	m.errors[errorType]++
	m.mu.Unlock()
}

// SetActiveAgents implements Metrics interface
func (m *DefaultMetrics) SetActiveAgents(count int) {
	m.mu.Lock()
	m.activeAgents = count
	m.mu.Unlock()
}

// ObservePlan implements Metrics interface
func (m *DefaultMetrics) ObservePlan(width int, fallback bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans++
	m.planWidth += int64(width)
	if fallback {
		m.fallbackPlans++
	}
}

// GetStats returns current statistics
func (m *DefaultMetrics) GetStats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := make(map[string]int64, len(m.errors))
	for k, v := range m.errors {
		errs[k] = v
	}
	return map[string]interface{}{
		"requests":       m.requests,
		"total_latency":  m.totalLatency.String(),
		"tokens_used":    m.tokensUsed,
		"errors":         errs,
		"active_agents":  m.activeAgents,
		"plans":          m.plans,
		"plan_width_sum": m.planWidth,
		"fallback_plans": m.fallbackPlans,
	}
}

// Ensure implementations satisfy the interface
var _ Metrics = (*NoOpMetrics)(nil)
var _ Metrics = (*DefaultMetrics)(nil)
