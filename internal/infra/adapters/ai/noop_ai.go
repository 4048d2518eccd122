package ai

import (
	"context"
	"iter"
	"strings"
	"time"

	"companion-chat/internal/domain/ports/adapter"
)

var _ adapter.CompletionService = (*NoopAIAdapter)(nil)

const noopModel = "noop-echo"

// NoopAIAdapter echoes the last user line of the prompt back word by word.
// Used in dev and when no provider key is configured.
type NoopAIAdapter struct {
	delay time.Duration // per fragment
}

func NewNoopAIAdapter(delay time.Duration) *NoopAIAdapter {
	return &NoopAIAdapter{delay: delay}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{noopModel}, nil
}

func (a *NoopAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{
		Name:        noopModel,
		Description: "Echo model for local development",
		Supports:    []string{"text", "stream"},
	}, nil
}

func (a *NoopAIAdapter) Stream(ctx context.Context, model, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		words := strings.Fields("You said: " + lastUserLine(prompt))
		for i, w := range words {
			if a.delay > 0 {
				select {
				case <-time.After(a.delay):
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				}
			} else if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if i > 0 {
				w = " " + w
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}

func lastUserLine(prompt string) string {
	i := strings.LastIndex(prompt, "User: ")
	if i < 0 {
		return strings.TrimSpace(prompt)
	}
	line := prompt[i+len("User: "):]
	if j := strings.IndexByte(line, '\n'); j >= 0 {
		line = line[:j]
	}
	return strings.TrimSpace(line)
}
