package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/compose"
	"github.com/billingdesk/invoice-notifier/internal/config"
	"github.com/billingdesk/invoice-notifier/internal/handler"
	"github.com/billingdesk/invoice-notifier/internal/infra/postgresql"
	"github.com/billingdesk/invoice-notifier/internal/infra/postgresql/migrations"
	infraredis "github.com/billingdesk/invoice-notifier/internal/infra/redis"
	"github.com/billingdesk/invoice-notifier/internal/observability"
	"github.com/billingdesk/invoice-notifier/internal/provider"
	"github.com/billingdesk/invoice-notifier/internal/repository"
	"github.com/billingdesk/invoice-notifier/internal/service"
	"github.com/billingdesk/invoice-notifier/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	businessLoc, err := cfg.BusinessLocation()
	if err != nil {
		logger.Fatal("business timezone resolution failed", zap.Error(err))
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	invoiceRepo := repository.NewGormInvoiceRepo(db)
	historyRepo := repository.NewGormHistoryRepo(db)

	whatsapp, err := provider.NewWhatsAppProvider(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIKey)
	if err != nil {
		logger.Fatal("whatsapp provider initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	composer := compose.NewComposer(cfg.CompanyName, cfg.CompanyPhone, businessLoc)
	sender := service.NewRetryingSender(whatsapp, cfg.SendMaxAttempts, cfg.SendRetryDelay(), cfg.SendTimeout(), logger)
	sender.SetMetrics(metrics)
	dedup := service.NewDedupGuard(historyRepo, businessLoc)

	runner, err := service.NewDispatchRunner(invoiceRepo, historyRepo, dedup, composer, sender, cfg.InvoiceDelay(), logger)
	if err != nil {
		logger.Fatal("dispatch runner initialization failed", zap.Error(err))
	}
	runner.SetMetrics(metrics)

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}
	runner.SetRateLimiter(limiter)

	runLock, err := infraredis.NewRunLock(rdb, uuid.NewString())
	if err != nil {
		logger.Fatal("run lock initialization failed", zap.Error(err))
	}
	runner.SetRunLock(runLock)

	invoiceSvc, err := service.NewInvoiceService(invoiceRepo, logger)
	if err != nil {
		logger.Fatal("invoice service initialization failed", zap.Error(err))
	}
	reportSvc, err := service.NewReportService(invoiceRepo, historyRepo, businessLoc)
	if err != nil {
		logger.Fatal("report service initialization failed", zap.Error(err))
	}

	scheduler, err := service.NewScheduler(runner, cfg.DispatchCron, businessLoc, logger)
	if err != nil {
		logger.Fatal("dispatch scheduler initialization failed", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterInvoiceRoutes(app, invoiceSvc); err != nil {
		logger.Fatal("invoice route registration failed", zap.Error(err))
	}
	if err := handler.RegisterDispatchRoutes(app, runner); err != nil {
		logger.Fatal("dispatch route registration failed", zap.Error(err))
	}
	if err := handler.RegisterReportRoutes(app, reportSvc); err != nil {
		logger.Fatal("report route registration failed", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("invoice-notifier api started",
		zap.Int("port", cfg.APIPort),
		zap.String("dispatchCron", cfg.DispatchCron),
		zap.String("businessTimezone", cfg.BusinessTimezone),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("api server stopped", zap.Error(err))
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}
}
