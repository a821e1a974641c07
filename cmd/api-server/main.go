package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careops/priority-token-scheduling/internal/api"
	"github.com/careops/priority-token-scheduling/internal/config"
	"github.com/careops/priority-token-scheduling/internal/db"
	"github.com/careops/priority-token-scheduling/internal/persist"
	redisclient "github.com/careops/priority-token-scheduling/internal/redis"
	"github.com/careops/priority-token-scheduling/internal/token"
)

const version = "0.3.0"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "api-server").Logger()
	if os.Getenv("APP_ENV") == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	logger.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("persist_driver", cfg.PersistDriver).
		Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pgPool *pgxpool.Pool
	var persister persist.Persister

	switch cfg.PersistDriver {
	case config.PersistDriverPostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")

		pg := persist.NewPgPersister(pgPool)
		if err := pg.EnsureSchema(rootCtx); err != nil {
			logger.Fatal().Err(err).Msg("schema setup error")
		}
		persister = pg
	default:
		persister = persist.NewFilePersister(cfg.SnapshotPath)
		logger.Info().Str("path", cfg.SnapshotPath).Msg("using json snapshot persistence")
	}

	var rdb *redislib.Client
	locker := redisclient.NewNoopLocker()
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
		logger.Info().Msg("connected to Redis, day locking enabled")
	}

	store := token.NewStore()
	svc := token.NewService(store, logger)

	snap, err := persister.Load(rootCtx)
	switch {
	case err == nil:
		svc.Restore(snap)
		logger.Info().
			Int("doctors", len(snap.Doctors)).
			Int("slots", len(snap.Slots)).
			Int("tokens", len(snap.Tokens)).
			Msg("restored snapshot")
	case errors.Is(err, persist.ErrNoSnapshot):
		logger.Info().Msg("no snapshot found, starting empty")
	default:
		logger.Fatal().Err(err).Msg("snapshot load error")
	}

	router := api.NewRouter(api.RouterConfig{
		Service:   svc,
		Locker:    locker,
		Persister: persister,
		PgPool:    pgPool,
		Redis:     rdb,
		Logger:    logger,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
