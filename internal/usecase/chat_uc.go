package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"companion-chat/internal/domain"
	"companion-chat/internal/domain/model"
	"companion-chat/internal/domain/ports/adapter"
	"companion-chat/internal/infra/logging"
	"companion-chat/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	SendMessage(ctx context.Context, conversationID, message string) (*model.TurnResult, error)
	History(ctx context.Context, conversationID string) ([]model.Message, error)
}

// ChatSettings are the per-deployment knobs of a turn.
type ChatSettings struct {
	Model   string
	Timeout time.Duration // model call deadline; 0 leaves the caller's context alone
	Dev     bool          // log message text unredacted
}

var errEmptyReply = errors.New("model returned an empty reply")

type chatUC struct {
	store      *SessionStore
	strategist *EngagementStrategist
	compressor *HistoryCompressor
	composer   *PromptComposer
	ai         adapter.CompletionService
	settings   ChatSettings
	log        *zerolog.Logger
}

func NewChatUseCase(
	store *SessionStore,
	strategist *EngagementStrategist,
	compressor *HistoryCompressor,
	composer *PromptComposer,
	ai adapter.CompletionService,
	settings ChatSettings,
	logger *zerolog.Logger,
) *chatUC {
	if logger == nil {
		logger = logging.Nop()
	}
	return &chatUC{
		store:      store,
		strategist: strategist,
		compressor: compressor,
		composer:   composer,
		ai:         ai,
		settings:   settings,
		log:        logger,
	}
}

// SendMessage runs one turn. A validation failure leaves every session
// untouched; a generation failure keeps the user's message in the session.
func (c *chatUC) SendMessage(ctx context.Context, conversationID, message string) (*model.TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		metrics.IncTurn("invalid")
		return nil, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	sess := c.store.GetOrCreate(ctx, strings.TrimSpace(conversationID))
	ctx = logging.WithConversationID(ctx, sess.ID)
	l := logging.With(ctx, c.log)
	defer logging.TraceDuration(l, "ChatUC.SendMessage")()

	_, prior := c.store.appendAndSnapshot(ctx, sess.ID, model.RoleUser, message)
	hint := c.strategist.Select(prior, message)
	metrics.IncEngagementHint(hint.Name)
	prompt := c.composer.Compose(ctx, hint, c.compressor.Compress(prior), message)

	l.Debug().
		Str("message", logging.Redact(message, c.settings.Dev)).
		Int("history", len(prior)).
		Str("hint", hint.Name).
		Msg("turn contextualized")

	reply, err := c.generate(ctx, prompt.Text)
	if err != nil {
		metrics.IncTurn("generation_failed")
		l.Error().Err(err).Str("model", c.settings.Model).Msg("reply generation failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}

	m := c.store.Append(ctx, sess.ID, model.RoleAssistant, reply)
	metrics.IncTurn("completed")
	l.Info().
		Str("message_id", m.ID).
		Int("reply_chars", len(reply)).
		Int("estimated_tokens", prompt.EstimatedTokens).
		Msg("turn completed")

	return &model.TurnResult{
		Reply:          reply,
		ConversationID: sess.ID,
		MessageID:      m.ID,
	}, nil
}

func (c *chatUC) generate(ctx context.Context, prompt string) (string, error) {
	if c.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.Timeout)
		defer cancel()
	}
	reply, err := adapter.Collect(c.ai.Stream(ctx, c.settings.Model, prompt))
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errEmptyReply
	}
	return reply, nil
}

func (c *chatUC) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversationId is required", domain.ErrValidation)
	}
	return c.store.History(ctx, conversationID), nil
}
