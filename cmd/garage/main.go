package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atelier-garage/garage/internal/app"
	"github.com/atelier-garage/garage/internal/audit"
	"github.com/atelier-garage/garage/internal/auth"
	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/invoices"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/billing/payments"
	"github.com/atelier-garage/garage/internal/billing/quotes"
	"github.com/atelier-garage/garage/internal/dispatch"
	"github.com/atelier-garage/garage/internal/observability"
	"github.com/atelier-garage/garage/internal/platform/cache"
	"github.com/atelier-garage/garage/internal/platform/db"
	"github.com/atelier-garage/garage/internal/shared"
	"github.com/atelier-garage/garage/jobs"
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

	if cfg.DBMigrate {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "garage_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	authService, err := auth.NewService(cfg.AdminEmail, cfg.AdminPasswordHash)
	if err != nil {
		logger.Error("configure admin", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	billingMetrics := observability.NewBillingMetrics(metrics.Registerer())

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	dispatcher := dispatch.NewDispatcher(jobs.NewDeliverySink(queue), logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	allocator := numbering.NewAllocator(numbering.NewPostgresStore(pool), numbering.WithObserver(billingMetrics))

	clientService := clients.NewService(clients.NewRepository(pool))
	quoteService := quotes.NewService(quotes.NewRepository(pool), allocator, dispatcher,
		quotes.WithValidityDays(cfg.QuoteValidityDays))
	invoiceService := invoices.NewService(invoices.NewRepository(pool), allocator, dispatcher,
		invoices.WithDueDays(cfg.InvoiceDueDays),
		invoices.WithLegalNotices(cfg.LegalNotices))
	paymentService := payments.NewService(payments.NewRepository(pool), dispatcher,
		payments.WithIdempotency(shared.NewIdempotencyStore(pool)),
		payments.WithObserver(billingMetrics))

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		Metrics:         metrics,
		AuthHandler:     auth.NewHandler(logger, authService, sessionManager, cfg.LoginRateLimit),
		ClientsHandler:  clients.NewHandler(logger, clientService),
		QuotesHandler:   quotes.NewHandler(logger, quoteService),
		InvoicesHandler: invoices.NewHandler(logger, invoiceService),
		PaymentsHandler: payments.NewHandler(logger, paymentService),
		AuditHandler:    audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		JobHandler:      jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
