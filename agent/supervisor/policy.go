package supervisor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	core "github.com/KamdynS/payroll-agents/agent/core"
)

// fanOut answers query with every unit concurrently and waits for all of
// them. Units never fail, so no goroutine returns an error and one slow or
// failing unit cannot cancel the others. replies[i] belongs to units[i].
func fanOut(ctx context.Context, query string, units []core.Answerer) []core.Reply {
	replies := make([]core.Reply, len(units))
	var g errgroup.Group
	for i, u := range units {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					replies[i] = core.Reply{Text: core.FallbackText, Err: fmt.Errorf("agent panic: %v", p)}
				}
			}()
			replies[i] = u.Answer(ctx, query)
			return nil
		})
	}
	_ = g.Wait()
	return replies
}
