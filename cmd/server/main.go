package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Mossos12/AlemAuto/internal/backup"
	"github.com/Mossos12/AlemAuto/internal/config"
	"github.com/Mossos12/AlemAuto/internal/handler"
	"github.com/Mossos12/AlemAuto/internal/infra"
	"github.com/Mossos12/AlemAuto/internal/router"
	"github.com/Mossos12/AlemAuto/internal/storage"
	"github.com/Mossos12/AlemAuto/internal/valuation"
	"github.com/Mossos12/AlemAuto/internal/worker"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Env == "production" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	// Storage backend
	var (
		adapter storage.Adapter
		snaps   backup.Snapshotter
		health  handler.HealthDeps
	)
	switch cfg.StorageBackend {
	case "file":
		fs, err := storage.NewFileStore(cfg.DataFile, cfg.BackupDir)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DataFile).Msg("failed to open data file")
		}
		adapter, snaps = fs, fs
	case "postgres":
		db, err := infra.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		gs := storage.NewGormStore(db)
		adapter, snaps = gs, gs
		health.DB = db
	case "mongo":
		mdb, err := infra.NewMongo(cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mongodb")
		}
		ms := storage.NewMongoStore(mdb)
		if err := ms.EnsureIndexes(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("failed to create mongodb indexes")
		}
		adapter, snaps = ms, ms
		health.Mongo = mdb
	default:
		log.Fatal().Str("backend", cfg.StorageBackend).Msg("unknown storage backend")
	}
	log.Info().Str("backend", cfg.StorageBackend).Msg("storage ready")

	// Redis is optional: without it the valuation cache and the warm queue
	// are disabled, but the core API keeps working.
	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, valuation cache and warm queue disabled")
		rdb = nil
	} else {
		health.Redis = rdb
	}

	// Valuation oracle (optional sidecar)
	var oracle valuation.Oracle
	if cfg.ValuationURL != "" {
		client := valuation.NewClient(cfg.ValuationURL, cfg.ValuationTimeout(), rdb)
		oracle = client
		health.Breaker = client.Breaker()
	}

	var dispatcher *worker.Dispatcher
	if rdb != nil {
		dispatcher = worker.NewDispatcher(rdb)
	}

	// Background worker pool for valuation warm-ups
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if rdb != nil && oracle != nil {
		handlers := &worker.Handlers{
			Valuation: worker.NewValuationWorker(oracle, cfg.ValuationTimeout()),
		}
		worker.StartWorkerPool(workerCtx, rdb, handlers, cfg.WorkerPoolSize)
	}

	r := router.New(cfg, adapter, snaps, oracle, dispatcher, health)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info().Msg("server stopped")
}
