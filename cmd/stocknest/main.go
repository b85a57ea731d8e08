package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stocknest/stocknest/internal/activity"
	"github.com/stocknest/stocknest/internal/app"
	"github.com/stocknest/stocknest/internal/audit"
	"github.com/stocknest/stocknest/internal/observability"
	"github.com/stocknest/stocknest/internal/platform/cache"
	"github.com/stocknest/stocknest/internal/platform/db"
	"github.com/stocknest/stocknest/internal/ratelimit"
	"github.com/stocknest/stocknest/internal/rbac"
	"github.com/stocknest/stocknest/internal/token"
	"github.com/stocknest/stocknest/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	auditor := audit.NewDispatcher(asynqClient, logger)

	validator := token.NewValidator(cfg.JWTSecret, cfg.JWTAudience)

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo)
	guard := rbac.Guard{
		Validator: validator,
		Resolver:  rbacService,
		Logger:    logger,
		Audit:     auditor,
	}

	rateLimitRepo := ratelimit.NewRepository(dbpool)
	configCache := ratelimit.NewConfigCache(rateLimitRepo, cfg.RateLimitCacheTTL)
	windowStore, err := ratelimit.NewStore(cfg.RateLimitStoreSize)
	if err != nil {
		logger.Error("window store", slog.Any("error", err))
		os.Exit(1)
	}
	limiter := ratelimit.NewLimiter(validator, rbacService, configCache, windowStore, logger, auditor, cfg.RateLimitExcludePaths)

	tracker := activity.NewTracker(redisClient, cfg.ActivityTTL, logger)

	rbacHandler := rbac.NewHandler(logger, rbacService, guard, auditor)
	rateLimitHandler := ratelimit.NewHandler(logger, rateLimitRepo, configCache, rbacService, guard, auditor)
	usersHandler := users.NewHandler(logger, users.NewRepository(dbpool), guard)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Limiter:          limiter,
		Tracker:          tracker,
		RBACHandler:      rbacHandler,
		RateLimitHandler: rateLimitHandler,
		UsersHandler:     usersHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
