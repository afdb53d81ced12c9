// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"ai-playground/internal/config"
	"ai-playground/internal/domain/ports/adapter"
	"ai-playground/internal/domain/ports/repository"
	aiAdapters "ai-playground/internal/infra/adapters/ai"
	pg "ai-playground/internal/infra/db/postgres"
	"ai-playground/internal/infra/i18n"
	"ai-playground/internal/infra/logging"
	"ai-playground/internal/infra/memstore"
	"ai-playground/internal/infra/metrics"
	red "ai-playground/internal/infra/redis"
	"ai-playground/internal/infra/sched"
	"ai-playground/internal/infra/security"
	"ai-playground/internal/infra/web"
	"ai-playground/internal/infra/worker"
	"ai-playground/internal/preview"
	"ai-playground/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (in-memory store, noop AI fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Encryption ----
	var box security.SecretBox = security.PlainBox{}
	if cfg.Security.EncryptionKey != "" {
		box, err = security.NewAESBox(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("encryption")
		}
	} else if !cfg.Runtime.Dev {
		logger.Warn().Msg("security.encryption_key not set; API keys are stored in plain text")
	}

	// ---- Session store ----
	var (
		store   repository.SessionStore
		limiter repository.ChatLimiter
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rc.Close()
		store = red.NewSessionStore(rc, box, cfg.Session.TTL)
		limiter = red.NewRateLimiter(rc, cfg.Session.ChatRateLimit, time.Minute)
		logger.Info().Msg("session store: redis")
	} else {
		store = memstore.NewSessionStore()
		limiter = memstore.NewChatLimiter(cfg.Session.ChatRateLimit, time.Minute)
		logger.Warn().Msg("session store: in-memory (sessions are lost on restart)")
	}

	// ---- Snapshots (optional) ----
	var (
		snapshots repository.SnapshotRepository
		tm        repository.TransactionManager
	)
	if cfg.Database.URL != "" {
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("postgres schema")
		}
		snapshots = pg.NewSnapshotRepo(pool)
		tm = pg.NewTxManager(pool)
		go reportPoolStats(ctx, pool)
		logger.Info().Msg("snapshots: postgres")
	} else {
		logger.Warn().Msg("database.url not set; snapshots are disabled")
	}

	// ---- AI ----
	router := buildAI(cfg.AI, logger)
	ai := aiAdapters.NewLimitedAI(router, cfg.AI.ConcurrentLimit)

	// ---- Presenter ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Session.Locale)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	if missing := tr.Missing(); len(missing) > 0 {
		logger.Warn().Str("locale", tr.Lang()).Strs("keys", missing).Msg("untranslated keys fall back to English")
	}
	present := usecase.NewPresenter(tr)

	// ---- Workers ----
	jobs := worker.NewPool(cfg.Snapshots.AutosaveWorkers, logger)
	jobs.Start(ctx)

	uc := usecase.NewPlaygroundUseCase(
		store, limiter, ai, preview.NewRenderer(cfg.Preview.MaxBytes),
		snapshots, tm, jobs, present,
		usecase.Options{
			Model:             cfg.AI.DefaultModel,
			Temperature:       cfg.AI.Temperature,
			MaxOutputTokens:   cfg.AI.MaxOutputTokens,
			MaxPromptTokens:   cfg.AI.MaxPromptTokens,
			HistoryMessages:   cfg.Session.HistoryMessages,
			Timeout:           cfg.AI.Timeout,
			ProviderOf:        router.Provider,
			KeepSnapshots:     cfg.Snapshots.Keep,
			SnapshotRetention: cfg.Snapshots.Retention,
			Autosave:          snapshots != nil,
		},
		logger,
	)

	if snapshots != nil {
		janitor := sched.NewSnapshotJanitor(cfg.Snapshots.JanitorInterval, uc, logger)
		go func() { _ = janitor.Run(ctx) }()
	}

	// ---- HTTP ----
	secret := cfg.Session.JWTSecret
	if secret == "" {
		// dev only: tokens do not survive a restart
		secret = uuid.NewString()
	}
	auth := web.NewAuthManager(secret, cfg.Session.SecureCookie, "", cfg.Session.TTL)
	srv := web.NewServer(uc, auth, present, cfg.HTTP.WriteTimeout-time.Second, logger)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("autosave backlog not drained")
	}
}

// buildAI registers every provider; requests route by model name. Keys come
// from the user with each request, so all providers are always available.
func buildAI(cfg config.AIConfig, logger *zerolog.Logger) *aiAdapters.Router {
	byProvider := map[string]adapter.AIServiceAdapter{}
	modelToProvider := map[string]string{}

	geminiDefault := "gemini-2.0-flash"
	openaiDefault := "gpt-4o-mini"
	switch strings.ToLower(cfg.DefaultProvider) {
	case "gemini":
		geminiDefault = cfg.DefaultModel
	case "openai":
		openaiDefault = cfg.DefaultModel
	}

	var geminiModels []string
	for _, m := range cfg.Models {
		if strings.HasPrefix(strings.ToLower(m), "gemini") {
			geminiModels = append(geminiModels, m)
			modelToProvider[m] = "gemini"
		}
	}
	gem, err := aiAdapters.NewGeminiAdapter(cfg.GeminiURL, geminiDefault, geminiModels)
	if err != nil {
		logger.Fatal().Err(err).Msg("gemini adapter")
	}
	byProvider["gemini"] = gem

	oa, err := aiAdapters.NewOpenAIAdapter(openaiDefault, cfg.OpenAIBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("openai adapter")
	}
	byProvider["openai"] = oa
	for _, m := range cfg.Models {
		if _, ok := modelToProvider[m]; !ok {
			modelToProvider[m] = "openai"
		}
	}

	if strings.EqualFold(cfg.DefaultProvider, "noop") {
		byProvider["noop"] = aiAdapters.NewNoopAIAdapter(logger)
		modelToProvider[cfg.DefaultModel] = "noop"
	}

	logger.Info().
		Str("default_provider", cfg.DefaultProvider).
		Str("default_model", cfg.DefaultModel).
		Int("concurrent_limit", cfg.ConcurrentLimit).
		Msg("AI providers ready")
	return aiAdapters.NewRouter(cfg.DefaultProvider, byProvider, modelToProvider)
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := pool.Stat()
			metrics.ObservePool(metrics.PoolStats{
				Max:           s.MaxConns(),
				Total:         s.TotalConns(),
				Idle:          s.IdleConns(),
				Acquired:      s.AcquiredConns(),
				Acquires:      s.AcquireCount(),
				EmptyAcquires: s.EmptyAcquireCount(),
			})
		}
	}
}
