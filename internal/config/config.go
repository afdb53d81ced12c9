// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	DefaultProvider string        `yaml:"default_provider"` // gemini|openai|noop
	GeminiURL       string        `yaml:"gemini_url"`
	DefaultModel    string        `yaml:"default_model"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	Models          []string      `yaml:"models"`
	Temperature     float32       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	MaxPromptTokens int           `yaml:"max_prompt_tokens"` // 0 = no trimming
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout         time.Duration `yaml:"timeout"`
}

type PreviewConfig struct {
	MaxBytes int `yaml:"max_bytes"`
}

type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	ChatRateLimit   int           `yaml:"chat_rate_limit"` // messages per minute
	HistoryMessages int           `yaml:"history_messages"`
	JWTSecret       string        `yaml:"jwt_secret"`
	SecureCookie    bool          `yaml:"secure_cookie"`
	Locale          string        `yaml:"locale"` // notice language; en|fa
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type SnapshotConfig struct {
	Retention       time.Duration `yaml:"retention"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	AutosaveWorkers int           `yaml:"autosave_workers"`
	Keep            int           `yaml:"keep"` // per session
}

type Config struct {
	HTTP      HTTPConfig     `yaml:"http"`
	Log       LogConfig      `yaml:"log"`
	Database  DatabaseConfig `yaml:"database"`
	Redis     RedisConfig    `yaml:"redis"`
	AI        AIConfig       `yaml:"ai"`
	Preview   PreviewConfig  `yaml:"preview"`
	Session   SessionConfig  `yaml:"session"`
	Security  SecurityConfig `yaml:"security"`
	Snapshots SnapshotConfig `yaml:"snapshots"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, then an optional .env, then
// PLAYGROUND_* overrides. In dev mode Redis and Postgres are optional and a
// missing config file is not an error.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case dev && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// .env is optional; real environment wins over it
	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	// Minimal validation
	if !dev {
		if cfg.Redis.URL == "" {
			return nil, errors.New("redis.url is required")
		}
		if cfg.Session.JWTSecret == "" {
			return nil, errors.New("session.jwt_secret is required")
		}
	}
	if k := cfg.Security.EncryptionKey; k != "" && len(k) != 32 {
		return nil, errors.New("security.encryption_key must be 32 bytes")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 90 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.AI.DefaultProvider == "" {
		cfg.AI.DefaultProvider = "gemini"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gemini-2.0-flash"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.Preview.MaxBytes <= 0 {
		cfg.Preview.MaxBytes = 2 << 20
	}
	cfg.Session.TTL = normalizeTTL(cfg.Session.TTL)
	if cfg.Session.ChatRateLimit <= 0 {
		cfg.Session.ChatRateLimit = 20
	}
	if cfg.Session.HistoryMessages <= 0 {
		cfg.Session.HistoryMessages = 20
	}
	if cfg.Session.Locale == "" {
		cfg.Session.Locale = "en"
	}
	if cfg.Snapshots.Retention <= 0 {
		cfg.Snapshots.Retention = 30 * 24 * time.Hour
	}
	if cfg.Snapshots.JanitorInterval <= 0 {
		cfg.Snapshots.JanitorInterval = time.Hour
	}
	if cfg.Snapshots.AutosaveWorkers <= 0 {
		cfg.Snapshots.AutosaveWorkers = 2
	}
	if cfg.Snapshots.Keep <= 0 {
		cfg.Snapshots.Keep = 20
	}
}

// applyEnv lets secrets and endpoints come from the environment.
func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"PLAYGROUND_HTTP_ADDR":        &cfg.HTTP.Addr,
		"PLAYGROUND_DATABASE_URL":     &cfg.Database.URL,
		"PLAYGROUND_REDIS_URL":        &cfg.Redis.URL,
		"PLAYGROUND_REDIS_PASSWORD":   &cfg.Redis.Password,
		"PLAYGROUND_AI_PROVIDER":      &cfg.AI.DefaultProvider,
		"PLAYGROUND_AI_MODEL":         &cfg.AI.DefaultModel,
		"PLAYGROUND_GEMINI_URL":       &cfg.AI.GeminiURL,
		"PLAYGROUND_OPENAI_BASE_URL":  &cfg.AI.OpenAIBaseURL,
		"PLAYGROUND_JWT_SECRET":       &cfg.Session.JWTSecret,
		"PLAYGROUND_ENCRYPTION_KEY":   &cfg.Security.EncryptionKey,
		"PLAYGROUND_LOG_LEVEL":        &cfg.Log.Level,
		"PLAYGROUND_LOCALE":           &cfg.Session.Locale,
	}
	for k, dst := range str {
		if v, ok := os.LookupEnv(k); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("PLAYGROUND_SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PLAYGROUND_SESSION_TTL: %w", err)
		}
		cfg.Session.TTL = d
	}
	if v, ok := os.LookupEnv("PLAYGROUND_CHAT_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PLAYGROUND_CHAT_RATE_LIMIT: %w", err)
		}
		cfg.Session.ChatRateLimit = n
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}
