package adapter

import (
	"context"
	"iter"
)

// ModelInfo describes a model.
type ModelInfo struct {
	Name        string
	Description string
	MaxTokens   int
	Supports    []string
}

// CompletionService is the port for the language model behind a turn.
type CompletionService interface {
	ListModels(ctx context.Context) ([]string, error)
	GetModelInfo(model string) (ModelInfo, error)

	// Stream sends prompt to model and yields the reply as text fragments.
	// The sequence is lazy, finite and can be ranged over once; a non-nil
	// error ends it.
	Stream(ctx context.Context, model, prompt string) iter.Seq2[string, error]
}

// Collect drains a fragment stream into one string.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b []byte
	for frag, err := range seq {
		if err != nil {
			return string(b), err
		}
		b = append(b, frag...)
	}
	return string(b), nil
}
