package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/payroll-agents/memory"
	"github.com/KamdynS/payroll-agents/memory/storetest"
)

func TestConversationStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) memory.ConversationStore {
		s, err := Open(filepath.Join(t.TempDir(), "conversations.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	id, err := s.Create(ctx, "owner-1", []memory.Message{{Role: "system", Content: "sys"}}, nil)
	require.NoError(t, err)

	ids, err := s.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.db")

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Create(context.Background(), "", []memory.Message{{Role: "system", Content: "sys"}}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	msgs, err := s.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
