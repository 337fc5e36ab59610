package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"docportal/internal/access"
	"docportal/internal/audit"
	"docportal/internal/config"
	"docportal/internal/db/migrations"
	"docportal/internal/handler"
	"docportal/internal/httpserver"
	"docportal/internal/identity"
	"docportal/internal/repository"
	"docportal/internal/service/auth"
	"docportal/internal/service/project"
	"docportal/internal/service/requirement"
	"docportal/internal/service/review"
	"docportal/internal/service/upload"
	"docportal/internal/storage"
	"docportal/pkg/circuitbreaker"
	"docportal/pkg/db"
	"docportal/pkg/logger"
	"docportal/pkg/mq"
	"docportal/pkg/otel"
	"docportal/pkg/outbox"
	"docportal/pkg/redis"
	"docportal/pkg/util"

	"go.uber.org/zap"
)

var version = "dev"

func main() {
	// Load config
	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(cfg.OTel, version, logger)
	if err != nil {
		logger.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	// Schema 必须与内嵌迁移一致，迁移由 portalctl migrate up 执行
	if err := migrations.CheckStatus(cfg.DB.DSN()); err != nil {
		logger.Fatal("Database schema check failed", zap.Error(err))
	}

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init Redis（登录限流；不可用时放行）
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	if err := redis.Ping(ctx, rdb); err != nil {
		logger.Warn("Redis unavailable, login throttling disabled until it recovers", zap.Error(err))
	}

	// Init MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Init Object storage
	presigner, err := storage.NewS3Presigner(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to init object storage", zap.Error(err))
	}

	// Init Repositories
	userRepo := repository.NewUserRepository(dbConn)
	projectRepo := repository.NewProjectRepository(dbConn, logger)
	requirementRepo := repository.NewRequirementRepository(dbConn, logger)
	fileRepo := repository.NewFileVersionRepository(dbConn)

	// Init Outbox
	outboxRepo := outbox.NewRepository(dbConn)
	replayService := outbox.NewReplayService(outboxRepo, publisher)

	// Init Services
	sink := audit.NewMQSink(publisher, circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()), outboxRepo, logger)
	// 审计投递在 HTTP 关闭之后才停止，保证处理中请求的审计事件都能发出
	sinkCtx, stopSink := context.WithCancel(context.Background())
	sink.Start(sinkCtx)
	resolver := identity.NewResolver(cfg.JWT)
	evaluator := access.NewEvaluator(userRepo, projectRepo, logger)
	failures := util.NewRetryCounter(rdb, cfg.Auth.FailureWindow)

	uploadOpts := upload.DefaultOptions()
	uploadOpts.MaxFiles = cfg.Upload.MaxFiles
	uploadOpts.MaxFileSize = cfg.Upload.MaxFileSize
	uploadOpts.UploadTTL = cfg.Storage.UploadTTL
	uploadOpts.DownloadTTL = cfg.Storage.DownloadTTL

	authService := auth.NewService(userRepo, resolver, evaluator, failures, cfg.Auth.MaxFailedLogins, sink, logger)
	projectService := project.NewService(userRepo, projectRepo, evaluator, sink, logger)
	requirementService := requirement.NewService(projectRepo, requirementRepo, fileRepo, evaluator, sink, logger)
	uploadService := upload.NewService(requirementRepo, fileRepo, evaluator, presigner, sink, uploadOpts, logger)
	reviewService := review.NewService(requirementRepo, evaluator, sink, logger)

	// Init Outbox Dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, logger).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithInterval(cfg.Outbox.Interval)
	go dispatcher.Start(ctx)

	// Router
	router := httpserver.NewRouter(
		httpserver.Handlers{
			Auth:        handler.NewAuthHandler(authService, logger),
			Project:     handler.NewProjectHandler(projectService, logger),
			Requirement: handler.NewRequirementHandler(requirementService, logger),
			Upload:      handler.NewUploadHandler(uploadService, logger),
			Review:      handler.NewReviewHandler(reviewService, logger),
			Admin:       handler.NewAdminHandler(replayService, logger),
		},
		resolver,
		evaluator,
		func(ctx context.Context) error {
			if err := dbConn.Ping(ctx); err != nil {
				return err
			}
			if !publisher.IsConnected() {
				return errors.New("mq publisher disconnected")
			}
			return nil
		},
	)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
		stopSink()
	}()

	// Start API server
	logger.Info("Starting document portal API", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Env))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server start failed", zap.Error(err))
	}
	sink.Wait()
	logger.Info("API stopped")
}

func newLogger(env string) *zap.Logger {
	if env == "local" {
		return logger.NewDevelopment()
	}
	return logger.NewLogger()
}
