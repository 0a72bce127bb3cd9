package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/akshatj2209/calender-assistant-sub001/internal/api"
	"github.com/akshatj2209/calender-assistant-sub001/internal/classifier"
	"github.com/akshatj2209/calender-assistant-sub001/internal/config"
	"github.com/akshatj2209/calender-assistant-sub001/internal/db"
	"github.com/akshatj2209/calender-assistant-sub001/internal/email"
	"github.com/akshatj2209/calender-assistant-sub001/internal/jobs"
	"github.com/akshatj2209/calender-assistant-sub001/internal/metrics"
	"github.com/akshatj2209/calender-assistant-sub001/internal/responder"
	"github.com/akshatj2209/calender-assistant-sub001/internal/service"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Store
	// ------------------------------------------------
	var store db.Store
	if cfg.DatabaseURL != "" {
		pg, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.InitSchema(ctx); err != nil {
			logger.Fatal("schema init failed", zap.Error(err))
		}
		store = pg
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store = db.NewMemory()
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Mail Transport + Classifier
	// ------------------------------------------------
	sender := &email.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}

	fetcher := &email.IMAPFetcher{
		Host:     cfg.IMAPHost,
		Port:     cfg.IMAPPort,
		Username: cfg.IMAPUser,
		Password: cfg.IMAPPassword,
		TLS:      cfg.IMAPTLS,
		Lookback: cfg.IMAPLookback,
	}

	cls := classifier.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel)

	// ------------------------------------------------
	// Services
	// ------------------------------------------------
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("invalid timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}
	generator := responder.NewGenerator(cfg.SenderName, loc)

	limiter := rate.NewLimiter(rate.Limit(cfg.SendRateLimit), cfg.SendRateLimit)

	emailSvc := service.NewEmailService(store, logger)
	responseSvc := service.NewResponseService(store, emailSvc, sender, limiter, logger)

	// ------------------------------------------------
	// Background Jobs
	// ------------------------------------------------
	intake := jobs.NewIntake(
		fetcher, cls, emailSvc, responseSvc, generator,
		cfg.IMAPUser, cfg.FetchBatchMax, cfg.ResponseDelay,
		logger,
	)
	dispatch := jobs.NewDispatch(responseSvc, cfg.DispatchBatchMax, logger)

	manager := jobs.NewManager(
		jobs.NewRunner("email-processing", cfg.IntakeInterval, intake.Cycle, logger),
		jobs.NewRunner("response-sending", cfg.DispatchInterval, dispatch.Cycle, logger),
	)
	manager.Start(ctx)

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	handler := &api.Handler{
		Emails:    emailSvc,
		Responses: responseSvc,
		Jobs:      manager,
		Log:       logger,
	}
	handler.Register(e)

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := e.Start(":" + cfg.APIPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// Let in-flight job cycles finish; no record is left mid-transition.
	manager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
