package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/payroll-agents/memory"
	"github.com/KamdynS/payroll-agents/memory/storetest"
)

func TestConversationStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) memory.ConversationStore {
		s, err := Open(Options{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestConversationStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Options{Path: dir, TTL: time.Hour})
	require.NoError(t, err)
	id, err := s.Create(ctx, "u", []memory.Message{{Role: "system", Content: "sys"}}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(Options{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	msgs, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sys", msgs[0].Content)
}
