package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/beaconhq/beacon/internal/api"
	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/database"
	"github.com/beaconhq/beacon/internal/embedding"
	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/migration"
	"github.com/beaconhq/beacon/internal/orchestrator"
	"github.com/beaconhq/beacon/internal/queue"
	"github.com/beaconhq/beacon/internal/queue/workers"
	"github.com/beaconhq/beacon/pkg/chunker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store := indexstore.NewPgStore(db)
	connReg := api.NewConnectorRegistry()

	provider := embedding.NewOpenAIProvider(cfg.Embedding.OpenAIKey, cfg.Embedding.OpenAIBaseURL)
	embedSvc := embedding.NewService(provider, cfg.Embedding.RequestTimeout)
	modelReg := embedding.NewRegistry(store, cfg.Embedding.RefreshInterval)
	if err := modelReg.Refresh(ctx); err != nil {
		slog.Warn("initial model registry refresh failed", "error", err)
	}
	go modelReg.Run(ctx)

	manager := migration.NewManager(store, embedSvc, modelReg, cfg.Indexing.SweepBatchSize)
	locker := orchestrator.NewRedisRunLock(rdb, cfg.Indexing.LockTTL)

	orch := orchestrator.New(store, connReg, orchestrator.EnvCredentials{}, embedSvc, modelReg, locker,
		orchestrator.Options{
			ChunkOpts: chunker.Options{
				ChunkSize:    cfg.Indexing.ChunkSize,
				ChunkOverlap: cfg.Indexing.ChunkOverlap,
			},
			PollTimeout: cfg.Indexing.PollTimeout,
		})

	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	// Scheduler loop: turn elapsed refresh intervals into queued runs.
	scheduler := orchestrator.NewScheduler(store, queueClient)
	go func() {
		ticker := time.NewTicker(cfg.Indexing.SchedulerTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := scheduler.Tick(ctx); err != nil {
					slog.Error("scheduler tick failed", "error", err)
				}
			}
		}
	}()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Indexing.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeIndexRun, asynq.HandlerFunc(workers.NewIndexWorker(orch).ProcessTask))
	registry.Register(queue.TypeMigrationBackfill, asynq.HandlerFunc(workers.NewBackfillWorker(manager, queueClient).ProcessTask))
	registry.Register(queue.TypeMigrationCleanup, asynq.HandlerFunc(workers.NewCleanupWorker(manager, queueClient).ProcessTask))
	registry.Register(queue.TypeCCPPrune, asynq.HandlerFunc(workers.NewPruneWorker(store, queueClient).ProcessTask))

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down worker...")
		cancel()
		srv.Shutdown()
	}()

	slog.Info("starting worker", "concurrency", cfg.Indexing.Concurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
