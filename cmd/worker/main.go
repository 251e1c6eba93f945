package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"posledger/backend/internal/bootstrap"
	"posledger/backend/internal/config"
	"posledger/backend/internal/jobs"
	"posledger/backend/internal/logging"
	"posledger/backend/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if !cfg.RedisEnabled() {
		return errors.New("REDIS_ADDR is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, closeRepo, err := bootstrap.OpenRepository(startupCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeRepo() }()
	broker, closeBroker := bootstrap.OpenBroker(startupCtx, cfg, logger)
	defer func() { _ = closeBroker() }()

	svc := service.New(repo, broker, logger)

	worker, err := newWorker(cfg, logger, jobs.NewReorderScanJob(svc, logger))
	if err != nil {
		return err
	}
	logger.Info("worker configured",
		slog.String("reorder_spec", cfg.ReorderScanSpec),
		slog.Int("concurrency", cfg.WorkerConcurrency),
	)
	return worker.Run(ctx)
}

func newWorker(cfg config.Config, logger *slog.Logger, reorder *jobs.ReorderScanJob) (*jobs.Worker, error) {
	task, err := jobs.NewReorderScanTask("schedule")
	if err != nil {
		return nil, fmt.Errorf("build reorder task: %w", err)
	}
	var cron []jobs.CronRegistration
	if cfg.ReorderScanSpec != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.ReorderScanSpec, Task: task})
	}
	return jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReorderScan, Handler: reorder.Handle},
		},
		Cron: cron,
	})
}
