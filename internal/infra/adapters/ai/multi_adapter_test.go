package ai_test

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"testing"
	"time"

	"companion-chat/internal/domain/ports/adapter"
	ai "companion-chat/internal/infra/adapters/ai"
)

type stubAI struct {
	name      string
	streamN   int
	lastModel string
	frags     []string
	err       error
}

func (s *stubAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{s.name + "-model"}, nil
}
func (s *stubAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model}, nil
}
func (s *stubAI) Stream(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	s.streamN++
	s.lastModel = model
	return func(yield func(string, error) bool) {
		for _, f := range s.frags {
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

func TestRouting_ExplicitMap_Heuristics_And_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai", frags: []string{"ok"}}
	gem := &stubAI{name: "gemini", frags: []string{"ok"}}

	m := ai.NewMultiAIAdapter(
		"openai",
		map[string]adapter.CompletionService{"openai": open, "gemini": gem},
		map[string]string{"custom-x": "gemini"},
	)

	// explicit map wins
	_, _ = adapter.Collect(m.Stream(ctx, "custom-x", "hi"))
	if gem.streamN != 1 || open.streamN != 0 {
		t.Fatalf("explicit map should route to gemini, got open:%d gem:%d", open.streamN, gem.streamN)
	}
	open.streamN, gem.streamN = 0, 0

	// gpt-* -> openai
	_, _ = adapter.Collect(m.Stream(ctx, "gpt-4o-mini", "hi"))
	if open.streamN != 1 || gem.streamN != 0 {
		t.Fatalf("heuristic gpt-* should go openai")
	}
	open.streamN, gem.streamN = 0, 0

	// gemini-* -> gemini
	_, _ = adapter.Collect(m.Stream(ctx, "gemini-1.5-flash", "hi"))
	if gem.streamN != 1 || open.streamN != 0 {
		t.Fatalf("heuristic gemini-* should go gemini")
	}
	open.streamN, gem.streamN = 0, 0

	// unknown -> default provider (openai)
	_, _ = adapter.Collect(m.Stream(ctx, "unknown", "hi"))
	if open.streamN != 1 || gem.streamN != 0 {
		t.Fatalf("unknown model should go to default provider (openai)")
	}

	models, _ := m.ListModels(ctx)
	if len(models) != 3 {
		t.Fatalf("want mapped model plus one per provider, got %v", models)
	}
}

func TestRouting_NoProvider(t *testing.T) {
	m := ai.NewMultiAIAdapter("openai", map[string]adapter.CompletionService{}, nil)
	if _, err := adapter.Collect(m.Stream(context.Background(), "gpt-4o", "hi")); err == nil {
		t.Fatal("expected an error without providers")
	}
}

func TestNoopAdapter_EchoesLastUserLine(t *testing.T) {
	n := ai.NewNoopAIAdapter(0)
	prompt := "preamble\n\nConversation history:\nUser: old\n\nUser: how are you\nAssistant:"
	got, err := adapter.Collect(n.Stream(context.Background(), "", prompt))
	if err != nil {
		t.Fatal(err)
	}
	if got != "You said: how are you" {
		t.Fatalf("got %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := adapter.Collect(n.Stream(ctx, "", prompt)); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

// blockingAI holds each stream open until release is closed.
type blockingAI struct {
	stubAI
	active, peak atomic.Int32
	release      chan struct{}
}

func (b *blockingAI) Stream(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		n := b.active.Add(1)
		defer b.active.Add(-1)
		for {
			p := b.peak.Load()
			if n <= p || b.peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-b.release
		yield("done", nil)
	}
}

func TestLimitedAI_CapsConcurrency(t *testing.T) {
	inner := &blockingAI{release: make(chan struct{})}
	l := ai.NewLimitedAI(inner, 2)

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = adapter.Collect(l.Stream(context.Background(), "m", "p"))
			done <- struct{}{}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	for i := 0; i < 5; i++ {
		<-done
	}
	if p := inner.peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds limit 2", p)
	}
}

func TestLimitedAI_ContextCancelledWhileWaiting(t *testing.T) {
	inner := &blockingAI{release: make(chan struct{})}
	defer close(inner.release)
	l := ai.NewLimitedAI(inner, 1)

	go func() { _, _ = adapter.Collect(l.Stream(context.Background(), "m", "p")) }()
	for inner.active.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := adapter.Collect(l.Stream(ctx, "m", "p")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestMeteredAI_PassesThrough(t *testing.T) {
	boom := errors.New("boom")
	inner := &stubAI{frags: []string{"a", "b"}, err: boom}
	m := ai.NewMeteredAI(inner, func(string) string { return "openai" })
	got, err := adapter.Collect(m.Stream(context.Background(), "gpt-4o", "p"))
	if got != "ab" || !errors.Is(err, boom) {
		t.Fatalf("got %q, %v", got, err)
	}
}
