package main

import (
	"context"
	"os/signal"
	"syscall"

	mqcontracts "docportal/contracts/mq"
	"docportal/internal/config"
	"docportal/internal/mqhandler"
	"docportal/internal/repository"
	"docportal/pkg/db"
	"docportal/pkg/logger"
	"docportal/pkg/mq"
	"docportal/pkg/redis"
	"docportal/pkg/util"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("Starting audit worker...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, logger)
	retryCounter := util.NewRetryCounter(rdb, cfg.Worker.RetryTTL)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	logger.Info("DB ready")

	// DLQ publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	auditHandler := mqhandler.NewAuditRecordedHandler(
		repository.NewAuditLogRepository(dbConn),
		deduper,
		retryCounter,
		publisher,
		logger,
	)

	// -------------------------
	// Audit Consumer
	// -------------------------
	logger.Info("Init consumer", zap.String("queue", cfg.Worker.Queue))
	consumer, err := mq.NewConsumer(
		cfg.MQ.URL,
		cfg.Worker.Queue,
		mqcontracts.RoutingKeyAuditRecorded,
		logger,
	)
	if err != nil {
		logger.Fatal("Audit consumer init failed", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(auditHandler.HandleAuditRecorded)

	logger.Info("Worker running")
	if err := consumer.StartConsuming(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("Audit consumer crashed", zap.Error(err))
	}
	logger.Info("Worker stopped")
}

func newLogger(env string) *zap.Logger {
	if env == "local" {
		return logger.NewDevelopment()
	}
	return logger.NewLogger()
}
