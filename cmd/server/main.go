package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"payroute.backend/internal/config"
	"payroute.backend/internal/domain/entities"
	"payroute.backend/internal/infrastructure/datasources/postgres"
	"payroute.backend/internal/infrastructure/gateways"
	"payroute.backend/internal/infrastructure/jobs"
	"payroute.backend/internal/infrastructure/metrics"
	"payroute.backend/internal/infrastructure/notifier"
	"payroute.backend/internal/infrastructure/repositories"
	"payroute.backend/internal/interfaces/http/handlers"
	"payroute.backend/internal/interfaces/http/middleware"
	"payroute.backend/internal/usecases"
	"payroute.backend/pkg/crypto"
	"payroute.backend/pkg/jwt"
	"payroute.backend/pkg/logger"
	"payroute.backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(cfg *config.Config) (*gorm.DB, error) {
		sqlDB, err := postgres.NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		return postgres.OpenGorm(sqlDB, cfg.Server.Env == "development")
	}
	newPublisher = notifier.New
	runServer    = func(srv *http.Server) error { return srv.ListenAndServe() }
	getStdDB     = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
	// shutdownSignal is closed when the process should stop.
	shutdownSignal = func() <-chan struct{} {
		done := make(chan struct{})
		go func() {
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			close(done)
		}()
		return done
	}
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := loadCfg()

	initLog(cfg.Server.Env)
	ctx := context.Background()
	logger.Info(ctx, "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(ctx, "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(ctx, "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()
	logger.Info(ctx, "Connected to PostgreSQL via GORM")

	sealer, err := crypto.NewSealer(cfg.Security.CredentialKey)
	if err != nil {
		return fmt.Errorf("invalid credential sealing key: %w", err)
	}
	strategy := entities.ProcessingStrategy(cfg.Routing.DefaultStrategy)
	if !strategy.Valid() {
		return fmt.Errorf("invalid default routing strategy %q", cfg.Routing.DefaultStrategy)
	}
	if cfg.Security.AdminTokenHash == "" {
		logger.Warn(ctx, "ADMIN_TOKEN_HASH is empty; admin API is disabled")
	}

	signer := jwt.NewNotificationSigner(cfg.Notification.SigningSecret, cfg.Notification.TokenTTL)
	publisher, err := newPublisher(cfg, signer)
	if err != nil {
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}
	if closer, ok := publisher.(io.Closer); ok {
		defer closer.Close()
	}
	recorder := metrics.New()

	// Repositories
	gatewayRepo := repositories.NewPaymentGatewayRepository(db)
	bindingRepo := repositories.NewMerchantGatewayRepository(db)
	ruleRepo := repositories.NewRoutingRuleRepository(db)
	attemptRepo := repositories.NewRoutingAttemptRepository(db)
	healthRepo := repositories.NewGatewayHealthRepository(db)
	txRepo := repositories.NewTransactionRepository(db)
	webhookRepo := repositories.NewWebhookRepository(db)
	uow := repositories.NewUnitOfWork(db)

	// Usecases
	registry := gateways.NewDefaultRegistry(&http.Client{Timeout: cfg.Routing.GatewayCallTimeout})
	resolver := usecases.NewGatewayResolver(registry, sealer)
	engine := usecases.NewRoutingEngine(cfg.Routing.AvailabilityFallback).WithHealthMaxAge(cfg.Routing.HealthMaxAge)

	transactionUsecase := usecases.NewTransactionUsecase(
		txRepo, gatewayRepo, bindingRepo, ruleRepo, attemptRepo, healthRepo, webhookRepo, uow,
		engine, resolver, publisher, recorder,
		usecases.TransactionUsecaseConfig{
			CallTimeout:     cfg.Routing.GatewayCallTimeout,
			DefaultStrategy: strategy,
			MaxAttempts:     cfg.Routing.MaxAttempts,
		},
	)
	webhookUsecase := usecases.NewWebhookUsecase(gatewayRepo, txRepo, webhookRepo, resolver, publisher, recorder)
	healthUsecase := usecases.NewHealthUsecase(attemptRepo, healthRepo).WithRetention(cfg.Jobs.HealthRetention)
	adminUsecase := usecases.NewRoutingAdminUsecase(gatewayRepo, bindingRepo, ruleRepo, healthRepo, engine, resolver)

	// Background jobs
	jobsCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	sweeper := jobs.NewStuckTransactionSweeper(transactionUsecase,
		cfg.Jobs.SweepInterval, cfg.Jobs.StuckAfter, cfg.Jobs.SweepBatch, recorder)
	healthJob := jobs.NewGatewayHealthJob(healthUsecase, cfg.Jobs.HealthInterval, cfg.Jobs.HealthWindow, recorder)

	var wg sync.WaitGroup
	for _, start := range []func(context.Context){sweeper.Start, healthJob.Start} {
		wg.Add(1)
		go func(start func(context.Context)) {
			defer wg.Done()
			start(jobsCtx)
		}(start)
	}

	r := newRouter(routeDeps{
		transactionHandler: handlers.NewTransactionHandler(transactionUsecase),
		webhookHandler:     handlers.NewWebhookHandler(webhookUsecase),
		adminHandler:       handlers.NewAdminHandler(adminUsecase),
		adminMiddleware:    middleware.AdminTokenMiddleware(cfg.Security.AdminTokenHash),
		metrics:            recorder,
		checks: map[string]healthCheck{
			"database": sqlDB.PingContext,
			"redis":    redis.Ping,
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "PayRoute backend starting",
			zap.String("port", cfg.Server.Port),
			zap.String("api", "/api/v1"),
		)
		serverErr <- runServer(srv)
	}()

	var runErr error
	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("failed to start server: %w", err)
		}
	case <-shutdownSignal():
		logger.Info(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "Server shutdown failed", zap.Error(err))
		}
		cancel()
	}

	sweeper.Stop()
	healthJob.Stop()
	cancelJobs()
	wg.Wait()
	return runErr
}
