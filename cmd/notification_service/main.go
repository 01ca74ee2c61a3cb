package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tenacious-erp/integration_services/internal/core_domain"
	"github.com/tenacious-erp/integration_services/internal/notification_service/app"
	"github.com/tenacious-erp/integration_services/internal/notification_service/middleware"
	"github.com/tenacious-erp/integration_services/internal/notification_service/provider"
	"github.com/tenacious-erp/integration_services/internal/notification_service/repository/postgres"
	transporthttp "github.com/tenacious-erp/integration_services/internal/notification_service/transport/http"
	"github.com/tenacious-erp/integration_services/internal/platform/config"
	"github.com/tenacious-erp/integration_services/internal/platform/database"
	"github.com/tenacious-erp/integration_services/internal/platform/logger"
	"github.com/tenacious-erp/integration_services/internal/platform/messagebroker"
)

const (
	// Publishers emit per-doctype subjects, e.g. workflow.transitions.sales_order.
	workflowEventsSubject    = "workflow.transitions.*"
	workflowEventsQueueGroup = "notification_workers"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("notification_service")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New("notification-service", cfg.LogLevel)
	appLogger.Info("Notification service starting", "log_level", cfg.LogLevel)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(rootCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL")

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, "notification-service", appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Connected to NATS")

	repo := postgres.NewPgMessageRecordRepository(dbPool, appLogger)

	notifiers := make(map[core_domain.ProviderName]provider.Notifier)
	var waProvider *provider.WhatsAppProvider
	if cfg.UseMockProvider {
		appLogger.Warn("Using mock messaging providers; no real messages will be sent")
		notifiers[core_domain.ProviderWhatsApp] = provider.NewMockProvider(appLogger, core_domain.ProviderWhatsApp)
		notifiers[core_domain.ProviderTwilio] = provider.NewMockProvider(appLogger, core_domain.ProviderTwilio)
	}
	if !cfg.UseMockProvider && cfg.WhatsAppAccessToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		waProvider = provider.NewWhatsAppProvider(appLogger, provider.WhatsAppConfig{
			APIBaseURL:        cfg.WhatsAppAPIBaseURL,
			AccessToken:       cfg.WhatsAppAccessToken,
			PhoneNumberID:     cfg.WhatsAppPhoneNumberID,
			BusinessAccountID: cfg.WhatsAppBusinessAccountID,
		}, nil)
		notifiers[core_domain.ProviderWhatsApp] = waProvider
	}
	if !cfg.UseMockProvider && cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		notifiers[core_domain.ProviderTwilio] = provider.NewTwilioProvider(appLogger, provider.TwilioConfig{
			APIBaseURL: cfg.TwilioAPIBaseURL,
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
		}, nil)
	}
	if len(notifiers) == 0 {
		appLogger.Warn("No messaging provider configured; submissions will fail until credentials are set")
	}

	notificationSvc := app.NewNotificationService(repo, notifiers, appLogger)

	var templateCatalog *app.TemplateCatalog
	var connTester transporthttp.ConnectionTester
	if waProvider != nil {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		templateCatalog = app.NewTemplateCatalog(waProvider, rdb, cfg.WhatsAppTemplateCacheTTL, appLogger)
		connTester = waProvider
	}

	workflowConsumer := app.NewWorkflowConsumer(natsClient, notificationSvc, appLogger)

	messageHandler := transporthttp.NewMessageHandler(notificationSvc, templateCatalog, connTester, appLogger)

	router := chi.NewRouter()
	router.Use(chi_middleware.RequestID)
	router.Use(chi_middleware.RealIP)
	router.Use(chi_middleware.Recoverer)
	router.Use(transporthttp.PrometheusMetricsMiddleware)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTAccessSecret, appLogger))
		messageHandler.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.NotificationServicePort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return workflowConsumer.Start(gCtx, workflowEventsSubject, workflowEventsQueueGroup)
	})

	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service terminated with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Notification service shut down cleanly")
}
