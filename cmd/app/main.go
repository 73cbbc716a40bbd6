package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grouping-backfill/internal/config"
	"grouping-backfill/internal/infra/adapters/similarity"
	"grouping-backfill/internal/infra/cohorts"
	pg "grouping-backfill/internal/infra/db/postgres"
	"grouping-backfill/internal/infra/logging"
	"grouping-backfill/internal/infra/metrics"
	"grouping-backfill/internal/infra/ops"
	"grouping-backfill/internal/infra/queue"
	red "grouping-backfill/internal/infra/redis"
	"grouping-backfill/internal/infra/worker"
	"grouping-backfill/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories & stores ----
	projectRepo := pg.NewProjectRepo(pool)
	groupRepo := pg.NewGroupRepo(pool)
	eventIndex := pg.NewEventIndexRepo(pool)
	payloadStore := red.NewPayloadStore(redisClient, logger)
	killswitch := red.NewKillswitch(redisClient, logger)
	taskQueue := red.NewTaskQueue(redisClient, cfg.Backfill.QueueName)
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)
	registry := cohorts.NewRegistry(cfg.Cohorts)

	// ---- Pool stats ----
	go func() {
		tick := time.NewTicker(15 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				stat := pool.Stat()
				metrics.SetDBPoolStats(stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns())
			}
		}
	}()

	// ---- Similarity scorer ----
	simClient, err := similarity.NewClient(cfg.Similarity.BaseURL, cfg.Similarity.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("similarity client")
	}
	scorer := similarity.NewScorer(simClient, cfg.Similarity.Threads, logger)
	logger.Info().Int("threads", cfg.Similarity.Threads).Str("base_url", cfg.Similarity.BaseURL).Msg("similarity scorer ready")

	// ---- Pipeline ----
	backfillUC := usecase.NewBackfillUseCase(
		projectRepo, groupRepo, eventIndex, payloadStore,
		scorer, killswitch, registry, taskQueue,
		cfg.Backfill.BatchSize, logger,
	)

	// ---- Queue consumer ----
	pool2 := worker.NewPool(cfg.Backfill.Workers, logger)
	pool2.Start(ctx)
	consumer := queue.NewConsumer(taskQueue, taskQueue, locker, backfillUC, pool2, cfg.Backfill.TaskTimeout, cfg.Backfill.DequeueWait, logger)
	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("queue consumer stopped")
		}
	}()

	// ---- Ops server ----
	auth := ops.NewAuthManager(cfg.Ops.APIKey, cfg.Ops.AuthSecret, cfg.Ops.TokenTTL)
	opsServer := ops.NewServer(cfg.Ops.Port, auth, taskQueue, registry, killswitch, limiter, pool, redisClient, logger)
	go func() {
		if err := opsServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("ops server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = opsServer.Shutdown(shutdownCtx)
	cancel()
	pool2.Stop()
}
