package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	core "github.com/KamdynS/payroll-agents/agent/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type answerFunc func(ctx context.Context, text string) core.Reply

func (f answerFunc) Answer(ctx context.Context, text string) core.Reply { return f(ctx, text) }

func TestFanOutWaitsForAll(t *testing.T) {
	var finished atomic.Int32
	slow := answerFunc(func(ctx context.Context, text string) core.Reply {
		time.Sleep(30 * time.Millisecond)
		finished.Add(1)
		return core.Reply{Text: "slow:" + text}
	})
	failing := answerFunc(func(ctx context.Context, text string) core.Reply {
		finished.Add(1)
		return core.Reply{Text: core.FallbackText, Err: errors.New("boom")}
	})
	fast := answerFunc(func(ctx context.Context, text string) core.Reply {
		finished.Add(1)
		return core.Reply{Text: "fast:" + text}
	})

	replies := fanOut(context.Background(), "q", []core.Answerer{slow, failing, fast})
	if finished.Load() != 3 {
		t.Fatalf("fanOut returned before all units settled")
	}
	if len(replies) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(replies))
	}
	if replies[0].Text != "slow:q" || replies[1].OK() || replies[2].Text != "fast:q" {
		t.Errorf("replies not in unit order: %+v", replies)
	}
}

func TestFanOutRecoversPanickingUnit(t *testing.T) {
	panicking := answerFunc(func(ctx context.Context, text string) core.Reply {
		var m map[string]int
		m[text]++
		return core.Reply{}
	})
	ok := answerFunc(func(ctx context.Context, text string) core.Reply { return core.Reply{Text: "ok"} })

	replies := fanOut(context.Background(), "q", []core.Answerer{panicking, ok})
	if replies[0].OK() || replies[0].Text != core.FallbackText {
		t.Errorf("panicking unit should yield a fallback, got %+v", replies[0])
	}
	if replies[1].Text != "ok" {
		t.Errorf("other unit affected: %+v", replies[1])
	}
}

func TestFanOutEmpty(t *testing.T) {
	if got := fanOut(context.Background(), "q", nil); len(got) != 0 {
		t.Errorf("expected no replies, got %d", len(got))
	}
}

func TestResolveConversation(t *testing.T) {
	if c := ResolveConversation("  "); !c.IsNew() || c.ID() != "" || c.String() != "new" {
		t.Errorf("blank id should start a new conversation: %v", c)
	}
	c := ResolveConversation(" abc ")
	if c.IsNew() || c.ID() != "abc" || c.String() != "continue:abc" {
		t.Errorf("unexpected conversation %v", c)
	}
	if !NewConversation().IsNew() || ContinueConversation("x").IsNew() {
		t.Errorf("constructor state mismatch")
	}
}
