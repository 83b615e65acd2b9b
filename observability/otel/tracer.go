// Package otel adapts observability.Tracer to OpenTelemetry. Spans go to
// whatever TracerProvider is installed globally; without one they are no-ops.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KamdynS/payroll-agents/observability"
)

// Tracer implements observability.Tracer using OpenTelemetry.
type Tracer struct{ tracer trace.Tracer }

// NewTracer uses the global TracerProvider.
func NewTracer(serviceName string) *Tracer {
	return NewTracerFrom(otel.GetTracerProvider(), serviceName)
}

// NewTracerFrom uses an explicit provider.
func NewTracerFrom(tp trace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{tracer: tp.Tracer(serviceName)}
}

func (t *Tracer) StartSpan(ctx context.Context, name string) (observability.Span, context.Context) {
	ctx, span := t.tracer.Start(ctx, name)
	return &spanWrapper{span: span, ctx: ctx}, ctx
}

func (t *Tracer) SpanFromContext(ctx context.Context) observability.Span {
	return &spanWrapper{span: trace.SpanFromContext(ctx), ctx: ctx}
}

type spanWrapper struct {
	span trace.Span
	ctx  context.Context
}

func (s *spanWrapper) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s *spanWrapper) SetStatus(code observability.StatusCode, message string) {
	switch code {
	case observability.StatusCodeOk:
		s.span.SetStatus(codes.Ok, "")
	case observability.StatusCodeError:
		s.span.SetStatus(codes.Error, message)
	}
}

func (s *spanWrapper) AddEvent(name string, attrs map[string]interface{}) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, toAttribute(k, v))
	}
	s.span.AddEvent(name, trace.WithAttributes(kvs...))
}

func (s *spanWrapper) End()                     { s.span.End() }
func (s *spanWrapper) Context() context.Context { return s.ctx }

// toAttribute keeps numeric and boolean values typed so backends can
// aggregate them; anything else is formatted as a string.
func toAttribute(key string, v interface{}) attribute.KeyValue {
	switch x := v.(type) {
	case string:
		return attribute.String(key, x)
	case bool:
		return attribute.Bool(key, x)
	case int:
		return attribute.Int(key, x)
	case int64:
		return attribute.Int64(key, x)
	case float64:
		return attribute.Float64(key, x)
	case time.Duration:
		return attribute.Int64(key, x.Milliseconds())
	case []string:
		return attribute.StringSlice(key, x)
	case fmt.Stringer:
		return attribute.String(key, x.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

var (
	_ observability.Tracer = (*Tracer)(nil)
	_ observability.Span   = (*spanWrapper)(nil)
)
