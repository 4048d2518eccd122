package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"companion-chat/internal/config"
	"companion-chat/internal/domain"
	"companion-chat/internal/domain/ports/repository"
	"companion-chat/internal/infra/i18n"
	"companion-chat/internal/infra/logging"
	"companion-chat/internal/infra/metrics"
	"companion-chat/internal/infra/redis"
	"companion-chat/internal/usecase"
)

const (
	surface = "telegram"
	// Telegram rejects longer texts
	maxMessageRunes = 4096
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Options tune the bot. A nil Limiter or zero RateLimit disables rate limiting.
// Dev logs failed messages unredacted.
type Options struct {
	Workers    int
	Limiter    repository.RateLimiter
	RateLimit  int
	RateWindow time.Duration
	Dev        bool
}

// RealTelegramBotAdapter turns every private text message into a chat turn
// on conversation tg-<chat id>.
type RealTelegramBotAdapter struct {
	bot    *tgbotapi.BotAPI
	sender messageSender
	chat   usecase.ChatUseCase
	tr     *i18n.Translator
	opts   Options
	log    *zerolog.Logger

	// updateWorkers is how many goroutines will concurrently process updates.
	updateWorkers int
	// cancelPolling cancels polling when called
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, chat usecase.ChatUseCase, tr *i18n.Translator, opts Options, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if chat == nil {
		return nil, errors.New("chat use case is nil")
	}
	if tr == nil {
		return nil, errors.New("translator is nil")
	}
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if logger == nil {
		logger = logging.Nop()
	}
	l := logger.With().Str("component", "telegram").Logger()

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	l.Info().Str("username", bot.Self.UserName).Msg("telegram bot authorized")

	return &RealTelegramBotAdapter{
		bot:           bot,
		sender:        bot,
		chat:          chat,
		tr:            tr,
		opts:          opts,
		log:           &l,
		updateWorkers: opts.Workers,
	}, nil
}

// ConversationID maps a Telegram chat to its conversation.
func ConversationID(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

// StartPolling begins polling Telegram for updates concurrently.
// It runs until ctx is canceled.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					if err := r.handleUpdate(ctx, update); err != nil {
						r.log.Error().Err(err).Int("worker", workerID).Msg("handle update failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	// Dispatcher goroutine: feed updates into updateChan
	go func() {
		defer close(updateChan)
		for {
			select {
			case update := <-updates:
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	r.bot.StopReceivingUpdates()
	wg.Wait()
	return nil
}

// StopPolling stops the polling loop gracefully.
func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}
	chatID := msg.Chat.ID
	ctx = logging.WithTraceID(ctx, uuid.NewString())
	ctx = logging.WithChatID(ctx, chatID)

	if msg.IsCommand() {
		return r.handleCommand(ctx, chatID, msg.Command())
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return r.send(chatID, r.tr.T("unsupported_message"))
	}

	convID := ConversationID(chatID)
	if limited, err := r.limited(ctx, convID); err != nil {
		return err
	} else if limited {
		return r.send(chatID, r.tr.T("rate_limited", int(r.opts.RateWindow.Seconds())))
	}

	res, err := r.chat.SendMessage(ctx, convID, text)
	if err != nil {
		l := logging.With(ctx, r.log)
		l.Warn().Err(err).
			Str("message", logging.Redact(text, r.opts.Dev)).
			Msg("turn failed, answering with fallback")
		if errors.Is(err, domain.ErrValidation) {
			return r.send(chatID, r.tr.T("unsupported_message"))
		}
		return r.send(chatID, r.tr.T("fallback_reply"))
	}
	return r.send(chatID, res.Reply)
}

func (r *RealTelegramBotAdapter) handleCommand(ctx context.Context, chatID int64, cmd string) error {
	switch cmd {
	case "start":
		return r.send(chatID, r.tr.T("welcome"))
	case "help":
		return r.send(chatID, r.tr.T("help"))
	default:
		return r.send(chatID, r.tr.T("unknown_command"))
	}
}

// limited reports whether the conversation spent its window. Limiter
// failures never block a user.
func (r *RealTelegramBotAdapter) limited(ctx context.Context, convID string) (bool, error) {
	if r.opts.Limiter == nil || r.opts.RateLimit <= 0 {
		return false, nil
	}
	ok, err := r.opts.Limiter.Allow(ctx, redis.ConversationKey(surface, convID), r.opts.RateLimit, r.opts.RateWindow)
	if err != nil {
		metrics.IncRateLimit(surface, "error")
		l := logging.With(ctx, r.log)
		l.Warn().Err(err).Msg("rate limiter unavailable")
		return false, nil
	}
	if !ok {
		metrics.IncRateLimit(surface, "limited")
		return true, nil
	}
	metrics.IncRateLimit(surface, "allowed")
	return false, nil
}

func (r *RealTelegramBotAdapter) send(chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageRunes) {
		if _, err := r.sender.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("send to chat %d: %w", chatID, err)
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// newline boundaries.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var out []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
