// Package tools holds the functions agents may call while answering. A
// catalog entry lists the tool names its agent is granted; the registry
// resolves those names.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KamdynS/payroll-agents/llm"
	obs "github.com/KamdynS/payroll-agents/observability"
)

var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrDuplicateTool = errors.New("tool already registered")
)

// DefaultTimeout bounds one tool execution unless the caller's context is
// shorter.
const DefaultTimeout = 10 * time.Second

// Tool is one callable function.
type Tool interface {
	Name() string
	Description() string
	// Execute receives the raw arguments string produced by the model.
	Execute(ctx context.Context, input string) (string, error)
	// Schema is the JSON schema of the arguments, or nil.
	Schema() map[string]interface{}
}

// Registry resolves tool names. Implementations must be safe for concurrent
// use; one registry serves every unit in a fan-out.
type Registry interface {
	Register(tool Tool) error
	Get(name string) (Tool, bool)
	// List returns the registered names, sorted.
	List() []string
	Execute(ctx context.Context, name string, input string) (string, error)
}

// DefaultRegistry is an in-memory Registry.
type DefaultRegistry struct {
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) (*DefaultRegistry, error) {
	r := &DefaultRegistry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultRegistry returns a registry holding the built-in payroll tools.
func NewDefaultRegistry() *DefaultRegistry {
	r, err := NewRegistry(&CalculatorTool{})
	if err != nil {
		panic(err)
	}
	return r
}

func (r *DefaultRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = make(map[string]Tool)
	}
	name := tool.Name()
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = tool
	return nil
}

func (r *DefaultRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *DefaultRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named tool under the registry timeout and records its
// latency and failures.
func (r *DefaultRegistry) Execute(ctx context.Context, name string, input string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	span, ctx := obs.TracerImpl.StartSpan(ctx, "tool.execute")
	defer span.End()
	span.SetAttribute(obs.AttrToolName, name)

	start := time.Now()
	result, err := t.Execute(ctx, input)
	labels := map[string]string{"tool_name": name}
	obs.MetricsImpl.RecordLatency(time.Since(start), labels)
	if err != nil {
		obs.MetricsImpl.RecordError("tool_error", labels)
		span.SetStatus(obs.StatusCodeError, err.Error())
		return "", err
	}
	span.SetStatus(obs.StatusCodeOk, "")
	return result, nil
}

// Definitions renders the named tools as model tool definitions. Names the
// registry does not hold are skipped.
func Definitions(r Registry, names []string) []llm.Tool {
	if r == nil {
		return nil
	}
	var defs []llm.Tool
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			continue
		}
		defs = append(defs, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Schema(),
			},
		})
	}
	return defs
}
