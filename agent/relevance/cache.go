package relevance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cached memoizes plans from an inner analyzer by normalized query text.
// Fallback plans are never cached.
type Cached struct {
	inner Analyzer
	ttl   time.Duration
	cache *ristretto.Cache[string, Plan]
}

// NewCached wraps inner with a cache holding up to size plans for ttl.
func NewCached(inner Analyzer, size int64, ttl time.Duration) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, Plan]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
		// Cost counts plans, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create plan cache: %w", err)
	}
	return &Cached{inner: inner, ttl: ttl, cache: cache}, nil
}

func (c *Cached) Analyze(ctx context.Context, query string) Plan {
	key := normalize(query)
	if p, ok := c.cache.Get(key); ok {
		return p.Clone()
	}
	p := c.inner.Analyze(ctx, query)
	if !p.Fallback {
		c.cache.SetWithTTL(key, p.Clone(), 1, c.ttl)
		c.cache.Wait()
	}
	return p
}

// Close releases the cache's background goroutines.
func (c *Cached) Close() { c.cache.Close() }

func normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

var _ Analyzer = (*Cached)(nil)
