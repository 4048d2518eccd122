package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"companion-chat/internal/config"
	"companion-chat/internal/domain/ports/adapter"
	"companion-chat/internal/domain/ports/repository"
	aiAdapters "companion-chat/internal/infra/adapters/ai"
	"companion-chat/internal/infra/db/filestore"
	pg "companion-chat/internal/infra/db/postgres"
	red "companion-chat/internal/infra/redis"
	"companion-chat/internal/infra/security"
)

// dependencies holds the external connections chosen by config.
type dependencies struct {
	snapshots repository.SessionSnapshotRepository
	limiter   repository.RateLimiter

	pool  *pgxpool.Pool
	redis *red.Client
}

func newDependencies(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*dependencies, error) {
	d := &dependencies{}

	needRedis := cfg.Storage.Driver == "redis" || cfg.Server.RateLimit > 0
	if needRedis {
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		d.redis = c
		if cfg.Server.RateLimit > 0 {
			d.limiter = red.NewRateLimiter(c)
		}
	}

	switch cfg.Storage.Driver {
	case "redis":
		d.snapshots = red.NewSnapshotRepo(d.redis, cfg.Storage.Key)
	case "postgres":
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		d.pool = pool
		repo := pg.NewSnapshotRepo(pool, cfg.Storage.Key)
		if err := repo.EnsureSchema(ctx); err != nil {
			d.Close()
			return nil, err
		}
		d.snapshots = repo
	default:
		d.snapshots = filestore.NewSnapshotRepo(cfg.Storage.Path)
	}

	if cfg.Storage.EncryptionKey != "" {
		enc, err := security.NewEncryptionService(cfg.Storage.EncryptionKey)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("encryption: %w", err)
		}
		d.snapshots = security.NewEncryptedSnapshotRepo(d.snapshots, enc)
	}

	logger.Info().
		Str("storage", cfg.Storage.Driver).
		Bool("encrypted", cfg.Storage.EncryptionKey != "").
		Bool("rate_limit", d.limiter != nil).
		Msg("storage ready")
	return d, nil
}

func (d *dependencies) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
}

// newCompletionService builds the provider router: every configured provider
// plus the noop echo, wrapped with metering and the concurrency cap.
func newCompletionService(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (adapter.CompletionService, error) {
	byProvider := map[string]adapter.CompletionService{
		"noop": aiAdapters.NewNoopAIAdapter(0),
	}
	if cfg.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.DefaultModel, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		byProvider["openai"] = a
	}
	if cfg.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.DefaultModel, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		byProvider["gemini"] = a
	}

	multi := aiAdapters.NewMultiAIAdapter(cfg.Provider, byProvider, cfg.ModelProviders)
	logger.Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.DefaultModel).
		Str("resolved", multi.ResolveProvider(cfg.DefaultModel)).
		Int("concurrent_limit", cfg.ConcurrentLimit).
		Msg("AI adapter ready")

	return aiAdapters.NewLimitedAI(aiAdapters.NewMeteredAI(multi, multi.ResolveProvider), cfg.ConcurrentLimit), nil
}
