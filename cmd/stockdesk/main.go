package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockdesk/stockdesk/internal/alerts"
	"github.com/stockdesk/stockdesk/internal/app"
	"github.com/stockdesk/stockdesk/internal/auth"
	"github.com/stockdesk/stockdesk/internal/catalog"
	"github.com/stockdesk/stockdesk/internal/customers"
	"github.com/stockdesk/stockdesk/internal/invoicing"
	"github.com/stockdesk/stockdesk/internal/observability"
	"github.com/stockdesk/stockdesk/internal/payments"
	"github.com/stockdesk/stockdesk/internal/platform/cache"
	"github.com/stockdesk/stockdesk/internal/platform/db"
	"github.com/stockdesk/stockdesk/internal/shared"
	"github.com/stockdesk/stockdesk/jobs"
	"github.com/stockdesk/stockdesk/report"
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, true); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

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

	asynqOpts, err := jobs.RedisClientOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("asynq options", slog.Any("error", err))
		os.Exit(1)
	}
	jobClient := jobs.NewClient(asynqOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynqOpts)
	defer func() {
		_ = inspector.Close()
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
	lowStockCache := catalog.NewRedisLowStockCache(redisClient, cfg.LowStockTTL, logger)
	pdfClient := report.NewClient(cfg.GotenbergURL)

	authService := auth.NewService(auth.NewRepository(dbpool), cfg.AuthSecret, cfg.AuthTokenTTL)

	alertService := alerts.NewService(alerts.NewRepository(dbpool), jobClient, metrics, logger)
	catalogService := catalog.NewService(catalog.NewRepository(dbpool), lowStockCache, alertService, auditLogger, logger)
	customerService := customers.NewService(customers.NewRepository(dbpool), auditLogger, logger)
	invoiceService := invoicing.NewService(invoicing.NewRepository(dbpool), invoicing.Policy{
		AllowNegativeStock:  cfg.StockAllowNegative,
		DeleteRestoresStock: cfg.InvoiceDeleteRestoresStock,
	}, invoicing.Deps{
		Publisher: alertService,
		Cache:     lowStockCache,
		Renderer:  pdfClient,
		Audit:     auditLogger,
		Metrics:   metrics,
		Logger:    logger,
	})
	paymentService := payments.NewService(payments.NewRepository(dbpool), auditLogger, metrics, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		RequireAuth:      authService.Middleware,
		AuthHandler:      auth.NewHandler(logger, authService),
		CatalogHandler:   catalog.NewHandler(logger, catalogService),
		CustomersHandler: customers.NewHandler(logger, customerService),
		InvoicesHandler:  invoicing.NewHandler(logger, invoiceService, idempotencyStore),
		PaymentsHandler:  payments.NewHandler(logger, paymentService),
		AlertsHandler:    alerts.NewHandler(logger, alertService),
		ReportHandler:    report.NewHandler(pdfClient, logger),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := app.NewServer(cfg, router)
	if err := app.Serve(ctx, server, logger, 10*time.Second); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
