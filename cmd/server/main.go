package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockusage/internal/config"
	"github.com/mamadbah2/stockusage/internal/repository/mongodb"
	"github.com/mamadbah2/stockusage/internal/repository/sheets"
	"github.com/mamadbah2/stockusage/internal/scheduler"
	"github.com/mamadbah2/stockusage/internal/server/handlers"
	"github.com/mamadbah2/stockusage/internal/server/router"
	notifysvc "github.com/mamadbah2/stockusage/internal/service/notify"
	reportingsvc "github.com/mamadbah2/stockusage/internal/service/reporting"
	"github.com/mamadbah2/stockusage/internal/service/usage"
	"github.com/mamadbah2/stockusage/pkg/clients/erp"
	whatsappclient "github.com/mamadbah2/stockusage/pkg/clients/whatsapp"
	"github.com/mamadbah2/stockusage/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	location, err := time.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.String("timezone", cfg.Reporting.Timezone), zap.Error(err))
	}

	opts := usage.Options{
		LookupTimeout:  cfg.Usage.LookupTimeout,
		StockEntryType: cfg.Usage.StockEntryType,
		Location:       location,
	}

	// Interface values stay nil unless the integration is configured.
	var (
		digest    handlers.DigestBuilder
		messenger handlers.Messenger
	)

	if cfg.MongoDB.Enabled() {
		connectCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		mongoRepo, err := mongodb.Connect(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, logger.Named(baseLogger, "repo.mongodb"))
		cancel()
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()

		opts.Archive = mongoRepo
		digest = reportingsvc.NewService(mongoRepo, location, cfg.Reporting.Currency, logger.Named(baseLogger, "svc.reporting"))
	} else {
		baseLogger.Warn("MONGODB_URI missing, consumption archive and daily digest disabled")
	}

	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, logger.Named(baseLogger, "repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		opts.Exporter = sheets.NewConsumptionExporter(sheetsRepo, logger.Named(baseLogger, "export.sheets"))
	}

	if cfg.WhatsApp.Enabled() {
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		messagingSvc := notifysvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, cfg.Reporting.Currency, logger.Named(baseLogger, "svc.notify"))
		opts.Notifier = messagingSvc
		messenger = messagingSvc
	} else {
		baseLogger.Info("whatsapp notifications disabled")
	}

	erpClient := erp.NewClient(cfg.ERP, logger.Named(baseLogger, "client.erp"))
	usageSvc := usage.NewService(erpClient, usage.NewSessionManager(), opts, logger.Named(baseLogger, "svc.usage"))

	gin.SetMode(gin.ReleaseMode)
	usageHandler := handlers.NewUsageHandler(usageSvc, logger.Named(baseLogger, "handlers.usage"))
	notifyHandler := handlers.NewNotifyHandler(messenger, digest, location, logger.Named(baseLogger, "handlers.notify"))
	engine := router.New(usageHandler, notifyHandler, logger.Named(baseLogger, "router"))

	sched := scheduler.NewScheduler(*cfg, location, usageSvc, digest, messenger, logger.Named(baseLogger, "scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
