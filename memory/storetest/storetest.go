// Package storetest holds the behavioural contract every
// memory.ConversationStore backend is tested against.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/payroll-agents/memory"
)

// Factory returns a fresh, empty store. Cleanup should be registered on t.
type Factory func(t *testing.T) memory.ConversationStore

// Run exercises the ConversationStore contract against a backend.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("UpdateReplaces", func(t *testing.T) { testUpdateReplaces(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("DistinctIDs", func(t *testing.T) { testDistinctIDs(t, newStore(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
}

func sample() []memory.Message {
	return []memory.Message{
		{Role: "system", Content: "You are a payroll tax specialist.", Timestamp: 1},
		{Role: "user", Content: "What is the FICA rate?", Timestamp: 2},
		{
			Role: "assistant", Content: "7.65% for the employee share.", Timestamp: 3,
			ToolCall: &memory.ToolCall{ID: "call_1", Name: "calculator", Arguments: `{"operation":"add","a":6.2,"b":1.45}`, Result: "7.65"},
		},
	}
}

func testRoundTrip(t *testing.T, s memory.ConversationStore) {
	ctx := context.Background()
	msgs := sample()

	id, err := s.Create(ctx, "user-1", msgs, map[string]string{"company": "acme"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, msgs, got)
}

func testUpdateReplaces(t *testing.T, s memory.ConversationStore) {
	ctx := context.Background()
	msgs := sample()

	id, err := s.Create(ctx, "", msgs[:1], nil)
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, id, msgs))
	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, len(msgs))
	assert.Equal(t, "system", got[0].Role)
	assert.Equal(t, "7.65", got[2].ToolCall.Result)
}

func testNotFound(t *testing.T, s memory.ConversationStore) {
	ctx := context.Background()

	_, err := s.Load(ctx, "does-not-exist")
	assert.True(t, errors.Is(err, memory.ErrNotFound), "Load: %v", err)

	err = s.Update(ctx, "does-not-exist", sample())
	assert.True(t, errors.Is(err, memory.ErrNotFound), "Update: %v", err)
}

func testDistinctIDs(t *testing.T, s memory.ConversationStore) {
	ctx := context.Background()
	a, err := s.Create(ctx, "u", sample(), nil)
	require.NoError(t, err)
	b, err := s.Create(ctx, "u", sample()[:1], nil)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	got, err := s.Load(ctx, b)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testConcurrentUpdates(t *testing.T, s memory.ConversationStore) {
	ctx := context.Background()
	id, err := s.Create(ctx, "u", sample()[:1], nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, id, sample()))
		}()
	}
	wg.Wait()

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got, len(sample()))
}
