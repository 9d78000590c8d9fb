package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/atelier-garage/garage/internal/app"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/billing/quotes"
	"github.com/atelier-garage/garage/internal/dispatch"
	jobmetrics "github.com/atelier-garage/garage/internal/jobs"
	"github.com/atelier-garage/garage/internal/platform/db"
	"github.com/atelier-garage/garage/internal/shared"
	"github.com/atelier-garage/garage/jobs"
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
	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	// the sweep never sends documents, so events are dropped
	quoteService := quotes.NewService(
		quotes.NewRepository(pool),
		numbering.NewAllocator(numbering.NewPostgresStore(pool)),
		dispatch.NewDispatcher(nil, logger),
		quotes.WithValidityDays(cfg.QuoteValidityDays),
	)

	deliveryJob := jobs.NewDeliveryJob(jobs.LogTransport{Logger: logger}, logger, metrics)
	expiryJob := jobs.NewQuoteExpiryJob(quoteService, logger, metrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{Keys: shared.NewIdempotencyStore(pool), Logger: logger, Metrics: metrics}

	expiryTask, err := jobs.NewQuoteExpiryTask()
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDeliverDocument, Handler: deliveryJob.Handle},
			{Type: jobs.TaskQuoteExpiry, Handler: expiryJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.QuoteExpiryCron, Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
