package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"uniMatch/internal/config"
	"uniMatch/internal/database"
	"uniMatch/internal/engine"
	"uniMatch/internal/metrics"
	"uniMatch/internal/tasks"
	"uniMatch/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	scorer, err := engine.NewScorerFromConfig(cfg.Engine.ModelArtifactPath)
	if err != nil {
		log.Fatalf("init base scorer: %v", err)
	}
	logger.Info("base scorer ready", slog.String("scorer", scorer.Describe()))

	bonusTable, err := engine.BonusTableByName(cfg.Engine.BonusTable)
	if err != nil {
		log.Fatalf("resolve bonus table: %v", err)
	}

	// Worker 就地执行重算，不再二次入队。
	eng := engine.New(db, scorer, engine.Options{
		Locker:             engine.NewRedisOfferLocker(redisClient),
		Logger:             logger,
		BonusTable:         bonusTable,
		FraudPenaltyPoints: cfg.Engine.FraudPenaltyPoints,
		RecomputeChunkSize: cfg.Engine.RecomputeChunkSize,
	})

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	recomputeHandler := worker.NewRecomputeTaskHandler(eng, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeFitRecompute, recomputeHandler)

	logger.Info("worker service started", slog.String("redis_addr", redisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
