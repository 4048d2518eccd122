package usecase

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"companion-chat/internal/infra/logging"
	"companion-chat/internal/infra/metrics"
	"companion-chat/internal/infra/tokenizer"
)

const DefaultPreamble = "You are a friendly, curious conversational companion. " +
	"Keep replies short and natural, speak like a person rather than an assistant, " +
	"and end with something that invites the user to keep talking."

// Prompt is the model-ready text plus its size estimate.
type Prompt struct {
	Text            string
	Hint            string
	EstimatedTokens int
}

// PromptComposer lays out preamble, hint, history and message in a fixed
// order and logs the approximate prompt size. The size is diagnostic only.
type PromptComposer struct {
	preamble string
	tokens   *tokenizer.Counter
	log      *zerolog.Logger
}

// NewPromptComposer builds a composer. tokens may be nil, then only the
// character estimate is reported.
func NewPromptComposer(preamble string, tokens *tokenizer.Counter, logger *zerolog.Logger) *PromptComposer {
	if strings.TrimSpace(preamble) == "" {
		preamble = DefaultPreamble
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &PromptComposer{preamble: preamble, tokens: tokens, log: logger}
}

func (p *PromptComposer) Compose(ctx context.Context, hint Hint, history, message string) Prompt {
	var b strings.Builder
	b.WriteString(p.preamble)
	b.WriteString("\n\n")
	b.WriteString(hint.Text)
	b.WriteString("\n\n")
	if history != "" {
		b.WriteString("Conversation history:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}
	b.WriteString("User: ")
	b.WriteString(message)
	b.WriteString("\nAssistant:")

	out := Prompt{Text: b.String(), Hint: hint.Name}
	out.EstimatedTokens = tokenizer.Estimate(out.Text)
	metrics.ObservePromptTokens("estimate", out.EstimatedTokens)

	ev := logging.With(ctx, p.log).Debug().
		Str("hint", hint.Name).
		Int("prompt_chars", len(out.Text)).
		Int("estimated_tokens", out.EstimatedTokens)
	if n, ok := p.tokens.Count(out.Text); ok {
		metrics.ObservePromptTokens("bpe", n)
		ev = ev.Int("bpe_tokens", n)
	}
	ev.Msg("prompt composed")
	return out
}
