package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name string
	run  func(ctx context.Context, input string) (string, error)
}

func (s stubTool) Name() string                   { return s.name }
func (s stubTool) Description() string            { return "stub " + s.name }
func (s stubTool) Schema() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (s stubTool) Execute(ctx context.Context, input string) (string, error) {
	return s.run(ctx, input)
}

func echo(name string) stubTool {
	return stubTool{name: name, run: func(_ context.Context, in string) (string, error) { return name + ":" + in, nil }}
}

func TestRegistryRegisterAndList(t *testing.T) {
	r, err := NewRegistry(echo("withholding"), echo("calculator"))
	require.NoError(t, err)
	assert.Equal(t, []string{"calculator", "withholding"}, r.List())

	err = r.Register(echo("calculator"))
	assert.ErrorIs(t, err, ErrDuplicateTool)

	_, err = NewRegistry(echo("a"), echo("a"))
	assert.ErrorIs(t, err, ErrDuplicateTool)

	var zero DefaultRegistry
	require.NoError(t, zero.Register(echo("late")))
	_, ok := zero.Get("late")
	assert.True(t, ok)
}

func TestRegistryExecute(t *testing.T) {
	r, err := NewRegistry(echo("calculator"), stubTool{name: "broken", run: func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	}})
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), "calculator", "pct 6.2 50000")
	require.NoError(t, err)
	assert.Equal(t, "calculator:pct 6.2 50000", out)

	_, err = r.Execute(context.Background(), "broken", "")
	assert.EqualError(t, err, "boom")

	_, err = r.Execute(context.Background(), "web_search", "")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistryTimeout(t *testing.T) {
	slow := stubTool{name: "slow", run: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	r, err := NewRegistry(slow)
	require.NoError(t, err)
	r.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err = r.Execute(context.Background(), "slow", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDefinitionsSkipsUnknown(t *testing.T) {
	r := NewDefaultRegistry()
	defs := Definitions(r, []string{"calculator", "web_search"})
	require.Len(t, defs, 1)
	assert.Equal(t, "calculator", defs[0].Function.Name)
	assert.Equal(t, "object", defs[0].Function.Parameters["type"])
	assert.Nil(t, Definitions(nil, []string{"calculator"}))
}
