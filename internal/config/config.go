package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      int           `yaml:"rate_limit"`  // requests per conversation per window; 0 disables
	RateWindow     time.Duration `yaml:"rate_window"` // e.g. 1m
}

type BotConfig struct {
	Token    string `yaml:"token"` // empty disables the telegram transport
	Workers  int    `yaml:"workers"`
	Language string `yaml:"language"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type SessionConfig struct {
	MaxMessages     int           `yaml:"max_messages"`      // sliding window per session
	RecentMessages  int           `yaml:"recent_messages"`   // verbatim tail kept by the compressor
	SummarySnippet  int           `yaml:"summary_snippet"`   // characters per summarized message
	PersistQueueLen int           `yaml:"persist_queue_len"` // pending snapshot writes before coalescing
	FlushInterval   time.Duration `yaml:"flush_interval"`    // periodic checkpoint; negative disables
}

type StorageConfig struct {
	Driver        string `yaml:"driver"`         // file|redis|postgres
	Path          string `yaml:"path"`           // file driver
	Key           string `yaml:"key"`            // redis key / postgres row name
	EncryptionKey string `yaml:"encryption_key"` // 16/24/32 bytes; encrypts message content at rest
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	Provider        string            `yaml:"provider"` // openai|gemini|noop
	OpenAIKey       string            `yaml:"openai_key"`
	OpenAIBaseURL   string            `yaml:"openai_base_url"`
	GeminiKey       string            `yaml:"gemini_key"`
	GeminiURL       string            `yaml:"gemini_url"`
	DefaultModel    string            `yaml:"default_model"`
	ModelProviders  map[string]string `yaml:"model_providers"` // model -> provider
	MaxOutputTokens int               `yaml:"max_output_tokens"`
	ConcurrentLimit int               `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout         time.Duration     `yaml:"timeout"`          // per-turn model deadline; 0 = none
}

type PromptConfig struct {
	Preamble string `yaml:"preamble"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Session  SessionConfig  `yaml:"session"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Prompt   PromptConfig   `yaml:"prompt"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. A missing file is not an error:
// the defaults plus environment overrides are enough to run in dev.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.GeminiKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SNAPSHOT_ENCRYPTION_KEY"); v != "" {
		cfg.Storage.EncryptionKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.RateWindow <= 0 {
		cfg.Server.RateWindow = time.Minute
	}
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 4
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "en"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Session.MaxMessages <= 0 {
		cfg.Session.MaxMessages = 50
	}
	if cfg.Session.RecentMessages <= 0 {
		cfg.Session.RecentMessages = 4
	}
	if cfg.Session.SummarySnippet <= 0 {
		cfg.Session.SummarySnippet = 50
	}
	if cfg.Session.PersistQueueLen <= 0 {
		cfg.Session.PersistQueueLen = 1
	}
	if cfg.Session.FlushInterval == 0 {
		cfg.Session.FlushInterval = 5 * time.Minute
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/conversations.json"
	}
	if cfg.Storage.Key == "" {
		cfg.Storage.Key = "conversations"
	}
	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if cfg.AI.Provider == "" {
		switch {
		case cfg.AI.OpenAIKey != "":
			cfg.AI.Provider = "openai"
		case cfg.AI.GeminiKey != "":
			cfg.AI.Provider = "gemini"
		default:
			cfg.AI.Provider = "noop"
		}
	}
	if cfg.AI.DefaultModel == "" {
		if cfg.AI.Provider == "gemini" {
			cfg.AI.DefaultModel = "gemini-2.0-flash"
		} else {
			cfg.AI.DefaultModel = "gpt-4o-mini"
		}
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 1024
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
}

// Validate reports the first setting that cannot work together with the others.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "file", "redis", "postgres":
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if n := len(c.Storage.EncryptionKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return fmt.Errorf("storage.encryption_key must be 16, 24 or 32 bytes, got %d", n)
	}
	if c.Storage.Driver == "postgres" && c.Database.URL == "" {
		return errors.New("database.url is required for storage.driver=postgres")
	}
	if (c.Storage.Driver == "redis" || c.Server.RateLimit > 0) && c.Redis.URL == "" {
		return errors.New("redis.url is required for storage.driver=redis or server.rate_limit")
	}
	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case "noop":
	default:
		return fmt.Errorf("ai.provider %q is not supported", c.AI.Provider)
	}
	return nil
}
