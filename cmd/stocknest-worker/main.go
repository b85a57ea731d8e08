package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/stocknest/stocknest/internal/app"
	"github.com/stocknest/stocknest/internal/audit"
	"github.com/stocknest/stocknest/internal/platform/db"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: 5,
			Queues:      map[string]int{"default": 1},
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(audit.TaskTypeRecord, audit.HandleRecordTask(audit.NewWriter(pool)))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down worker")
		server.Shutdown()
	}()

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
