package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"ai-playground/internal/config"
	"ai-playground/internal/domain/ports/repository"
	"ai-playground/internal/infra/adapters/ai"
	"ai-playground/internal/infra/db/postgres"
	"ai-playground/internal/infra/logging"
	"ai-playground/internal/infra/redis"
	"ai-playground/internal/infra/security"
	"ai-playground/internal/infra/web"
	"ai-playground/internal/usecase"
)

// This script puts Redis and Postgres into a clean, predictable state for
// manual end-to-end testing and prints a ready-to-use session.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	apiKey := flag.String("api-key", "", "API key to store on the seeded session")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("config load")
	}
	logger := logging.New(cfg.Log, true)

	// --- Connect to Redis ---
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()

	logger.Info().Msg("--- Starting E2E Environment Setup ---")

	logger.Info().Msg("[1/4] Wiping Redis database...")
	if err := redisClient.FlushDB(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to flush redis")
	}

	var (
		snapshots repository.SnapshotRepository
		tm        repository.TransactionManager
	)
	logger.Info().Msg("[2/4] Wiping snapshot table...")
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 2)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		if _, err := pool.Exec(ctx, `TRUNCATE playground_snapshots`); err != nil {
			logger.Fatal().Err(err).Msg("failed to truncate playground_snapshots")
		}
		snapshots, tm = postgres.NewSnapshotRepo(pool), postgres.NewTxManager(pool)
	} else {
		logger.Warn().Msg("database.url not set; skipping")
	}

	var box security.SecretBox = security.PlainBox{}
	if cfg.Security.EncryptionKey != "" {
		if box, err = security.NewAESBox(cfg.Security.EncryptionKey); err != nil {
			logger.Fatal().Err(err).Msg("encryption")
		}
	}
	store := redis.NewSessionStore(redisClient, box, cfg.Session.TTL)
	uc := usecase.NewPlaygroundUseCase(store, nil, ai.NewNoopAIAdapter(logger), nil, snapshots, tm, nil, nil,
		usecase.Options{KeepSnapshots: cfg.Snapshots.Keep}, logger)

	logger.Info().Msg("[3/4] Seeding a session...")
	sess, err := uc.StartSession(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create session")
	}
	if *apiKey != "" {
		if err := uc.SetAPIKey(ctx, sess.ID, *apiKey); err != nil {
			logger.Fatal().Err(err).Msg("failed to store api key")
		}
	}
	if snapshots != nil {
		if _, err := uc.SaveSnapshot(ctx, sess.ID, "baseline"); err != nil {
			logger.Fatal().Err(err).Msg("failed to save baseline snapshot")
		}
	}

	logger.Info().Msg("[4/4] Minting a session token...")
	token, err := web.NewAuthManager(cfg.Session.JWTSecret, false, "", cfg.Session.TTL).Token(sess.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to mint token")
	}

	logger.Info().Msg("--- E2E Environment Setup Complete ---")
	fmt.Printf("SESSION_ID=%s\nSESSION_TOKEN=%s\n", sess.ID, token)
}
