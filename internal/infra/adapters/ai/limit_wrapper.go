package ai

import (
	"context"
	"iter"

	"companion-chat/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.CompletionService = (*limitedAI)(nil)

type limitedAI struct {
	inner adapter.CompletionService
	sem   chan struct{}
}

// NewLimitedAI caps concurrent streams. A slot is held from the first
// fragment request until the stream ends or the consumer stops ranging.
func NewLimitedAI(inner adapter.CompletionService, maxConcurrent int) adapter.CompletionService {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return l.inner.GetModelInfo(model)
}

func (l *limitedAI) Stream(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			yield("", ctx.Err())
			return
		}
		defer func() { <-l.sem }()

		for frag, err := range l.inner.Stream(ctx, model, prompt) {
			if !yield(frag, err) {
				return
			}
		}
	}
}
