package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"companion-chat/internal/config"
	"companion-chat/internal/infra/api"
	"companion-chat/internal/infra/i18n"
	"companion-chat/internal/infra/logging"
	"companion-chat/internal/infra/metrics"
	"companion-chat/internal/infra/scheduler"
	"companion-chat/internal/infra/telegram"
	"companion-chat/internal/infra/tokenizer"
	"companion-chat/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted message previews)")
	repl := flag.Bool("repl", false, "chat on stdin/stdout instead of serving HTTP and Telegram")
	convID := flag.String("conversation", "", "conversation id to resume in -repl mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	if err := run(*cfgPath, cfg, logger, *repl, *convID); err != nil {
		logger.Fatal().Err(err).Msg("exited with error")
	}
}

func run(cfgPath string, cfg *config.Config, logger *zerolog.Logger, repl bool, convID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Storage + Redis ----
	deps, err := newDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// ---- Session store ----
	store := usecase.NewSessionStore(ctx, deps.snapshots, usecase.StoreOptions{
		MaxMessages: cfg.Session.MaxMessages,
		QueueLen:    cfg.Session.PersistQueueLen,
	}, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("final session snapshot failed")
		}
	}()

	// ---- AI ----
	ai, err := newCompletionService(ctx, cfg.AI, logger)
	if err != nil {
		return err
	}

	// ---- Use case ----
	chatUC := usecase.NewChatUseCase(
		store,
		usecase.NewEngagementStrategist(usecase.DefaultRules()),
		usecase.NewHistoryCompressor(cfg.Session.RecentMessages, cfg.Session.SummarySnippet),
		usecase.NewPromptComposer(cfg.Prompt.Preamble, tokenizer.New(""), logger),
		ai,
		usecase.ChatSettings{
			Model:   cfg.AI.DefaultModel,
			Timeout: cfg.AI.Timeout,
			Dev:     cfg.Runtime.Dev,
		},
		logger,
	)

	if cfg.Session.FlushInterval > 0 {
		checkpoints := scheduler.NewScheduler(cfg.Session.FlushInterval, store, logger)
		checkpoints.Start(ctx)
		defer checkpoints.Stop()
	}

	if repl {
		return runREPL(ctx, chatUC, ai, convID, os.Stdin, os.Stdout)
	}

	// ---- Telegram ----
	var bot *telegram.RealTelegramBotAdapter
	if cfg.Bot.Token != "" {
		tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
		if err != nil {
			return fmt.Errorf("i18n: %w", err)
		}
		bot, err = telegram.NewRealTelegramBotAdapter(&cfg.Bot, chatUC, tr, telegram.Options{
			Workers:    cfg.Bot.Workers,
			Limiter:    deps.limiter,
			RateLimit:  cfg.Server.RateLimit,
			RateWindow: cfg.Server.RateWindow,
			Dev:        cfg.Runtime.Dev,
		}, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
	} else {
		logger.Info().Msg("bot.token empty, telegram transport disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	// ---- HTTP ----
	srv := api.NewServer(chatUC, store, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		Limiter:        deps.limiter,
		RateLimit:      cfg.Server.RateLimit,
		RateWindow:     cfg.Server.RateWindow,
		Models:         ai,
		Dev:            cfg.Runtime.Dev,
	}, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Str("config", cfgPath).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if bot != nil {
		g.Go(func() error { return bot.StartPolling(gctx) })
	}

	err = g.Wait()
	logger.Info().Msg("shutdown complete")
	return err
}
