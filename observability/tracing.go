package observability

import (
	"context"
	"sync"
	"time"
)

// Tracer starts spans. The process-wide tracer is TracerImpl.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (Span, context.Context)
	// SpanFromContext returns the active span, or a no-op span.
	SpanFromContext(ctx context.Context) Span
}

// Span is one traced operation. Calls after End are ignored.
type Span interface {
	SetAttribute(key string, value interface{})
	SetStatus(code StatusCode, message string)
	AddEvent(name string, attributes map[string]interface{})
	End()
	Context() context.Context
}

type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOk
	StatusCodeError
)

// Attribute keys. HTTP and model keys follow the OTel conventions; the
// payroll.* keys describe routing.
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatus     = "http.status_code"
	AttrRequestID      = "request.id"
	AttrProvider       = "genai.provider"
	AttrModel          = "genai.model"
	AttrFinishReason   = "genai.finish_reason"
	AttrToolName       = "genai.tool.name"
	AttrTokensInput    = "genai.tokens.input"
	AttrTokensOutput   = "genai.tokens.output"
	AttrAgentType      = "payroll.agent.type"
	AttrConversationID = "payroll.conversation.id"
	AttrPlanWidth      = "payroll.plan.width"
	AttrPlanFallback   = "payroll.plan.fallback"
)

// Global implementations, no-ops until replaced at startup.
var (
	TracerImpl  Tracer  = &NoOpTracer{}
	MetricsImpl Metrics = &NoOpMetrics{}
)

func SetTracer(t Tracer)   { TracerImpl = t }
func SetMetrics(m Metrics) { MetricsImpl = m }

type NoOpTracer struct{}

func (t *NoOpTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	return NoOpSpan{ctx: ctx}, ctx
}

func (t *NoOpTracer) SpanFromContext(ctx context.Context) Span { return NoOpSpan{ctx: ctx} }

type NoOpSpan struct{ ctx context.Context }

func (NoOpSpan) SetAttribute(string, interface{})        {}
func (NoOpSpan) SetStatus(StatusCode, string)            {}
func (NoOpSpan) AddEvent(string, map[string]interface{}) {}
func (NoOpSpan) End()                                    {}
func (s NoOpSpan) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Recorder keeps finished spans in memory for inspection in tests. Spans may
// end on any goroutine.
type Recorder struct {
	mu       sync.Mutex
	finished []RecordedSpan
}

// RecordedSpan is a finished span as seen by a Recorder.
type RecordedSpan struct {
	Name       string
	Start      time.Time
	Duration   time.Duration
	Status     StatusCode
	Message    string
	Attributes map[string]interface{}
	Events     []string
}

type spanKey struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	s := &recordingSpan{rec: r, data: RecordedSpan{Name: name, Start: time.Now(), Attributes: map[string]interface{}{}}}
	ctx = context.WithValue(ctx, spanKey{}, s)
	s.ctx = ctx
	return s, ctx
}

func (r *Recorder) SpanFromContext(ctx context.Context) Span {
	if s, ok := ctx.Value(spanKey{}).(*recordingSpan); ok {
		return s
	}
	return NoOpSpan{ctx: ctx}
}

// Spans returns the finished spans in the order they ended.
func (r *Recorder) Spans() []RecordedSpan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedSpan(nil), r.finished...)
}

// Find returns the finished spans named name.
func (r *Recorder) Find(name string) []RecordedSpan {
	var out []RecordedSpan
	for _, s := range r.Spans() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

type recordingSpan struct {
	rec *Recorder
	ctx context.Context

	mu    sync.Mutex
	data  RecordedSpan
	ended bool
}

func (s *recordingSpan) SetAttribute(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.data.Attributes[key] = value
	}
}

func (s *recordingSpan) SetStatus(code StatusCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.data.Status, s.data.Message = code, message
	}
}

// AddEvent records the event name only.
func (s *recordingSpan) AddEvent(name string, _ map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.data.Events = append(s.data.Events, name)
	}
}

func (s *recordingSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.data.Duration = time.Since(s.data.Start)
	data := s.data
	s.mu.Unlock()

	s.rec.mu.Lock()
	s.rec.finished = append(s.rec.finished, data)
	s.rec.mu.Unlock()
}

func (s *recordingSpan) Context() context.Context { return s.ctx }

var (
	_ Tracer = (*NoOpTracer)(nil)
	_ Tracer = (*Recorder)(nil)
	_ Span   = NoOpSpan{}
	_ Span   = (*recordingSpan)(nil)
)
