//go:build adapters_redis

package redis

import (
	"testing"
	"time"

	"github.com/KamdynS/payroll-agents/memory"
	"github.com/KamdynS/payroll-agents/memory/storetest"
	rds "github.com/redis/go-redis/v9"
)

func TestConversationStoreContract_Redis(t *testing.T) {
	storetest.Run(t, func(t *testing.T) memory.ConversationStore {
		t.Helper()
		client := rds.NewClient(&rds.Options{Addr: "localhost:6379"})
		t.Cleanup(func() { _ = client.Close() })
		return NewConversationStore(client, "test", time.Minute)
	})
}
