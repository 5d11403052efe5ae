package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"uniMatch/internal/api"
	"uniMatch/internal/auth"
	"uniMatch/internal/config"
	"uniMatch/internal/database"
	"uniMatch/internal/engine"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	log.Printf("database ready, host=%s db=%s", cfg.Database.Host, cfg.Database.Name)

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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	authService, err := loadAuthService(cfg.Auth)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	// 模型产物不兼容时直接拒绝启动，绝不带病评分。
	scorer, err := engine.NewScorerFromConfig(cfg.Engine.ModelArtifactPath)
	if err != nil {
		log.Fatalf("init base scorer: %v", err)
	}
	logger.Info("base scorer ready", slog.String("scorer", scorer.Describe()))

	bonusTable, err := engine.BonusTableByName(cfg.Engine.BonusTable)
	if err != nil {
		log.Fatalf("resolve bonus table: %v", err)
	}

	eng := engine.New(db, scorer, engine.Options{
		Queue:              asynqClient,
		Locker:             engine.NewRedisOfferLocker(redisClient),
		Logger:             logger,
		BonusTable:         bonusTable,
		FraudPenaltyPoints: cfg.Engine.FraudPenaltyPoints,
		RecomputeChunkSize: cfg.Engine.RecomputeChunkSize,
	})

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, db, eng, authService, redisClient, logger, cfg.API.InternalSecret)

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("address", address))
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}

func loadAuthService(cfg config.AuthConfig) (*auth.AuthService, error) {
	privatePEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	publicPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return auth.NewAuthService(
		privatePEM,
		publicPEM,
		time.Duration(cfg.AccessTokenTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTokenTTLHour)*time.Hour,
	)
}
