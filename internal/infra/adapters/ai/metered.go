package ai

import (
	"context"
	"iter"
	"time"

	"companion-chat/internal/domain/ports/adapter"
	"companion-chat/internal/infra/metrics"
)

var _ adapter.CompletionService = (*meteredAI)(nil)

type meteredAI struct {
	inner    adapter.CompletionService
	provider func(model string) string
}

// NewMeteredAI records latency, fragment count and outcome of every stream.
// provider names the backend serving a model for the metric label.
func NewMeteredAI(inner adapter.CompletionService, provider func(model string) string) adapter.CompletionService {
	if provider == nil {
		provider = func(string) string { return "default" }
	}
	return &meteredAI{inner: inner, provider: provider}
}

func (m *meteredAI) ListModels(ctx context.Context) ([]string, error) {
	return m.inner.ListModels(ctx)
}

func (m *meteredAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return m.inner.GetModelInfo(model)
}

func (m *meteredAI) Stream(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		fragments, ok := 0, true
		defer func() {
			metrics.ObserveCompletion(m.provider(model), model, fragments, int(time.Since(start).Milliseconds()), ok)
		}()

		for frag, err := range m.inner.Stream(ctx, model, prompt) {
			if err != nil {
				ok = false
			} else {
				fragments++
			}
			if !yield(frag, err) {
				return
			}
		}
	}
}
