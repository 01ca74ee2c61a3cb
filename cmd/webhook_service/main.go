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
	"golang.org/x/sync/errgroup"

	notifpostgres "github.com/tenacious-erp/integration_services/internal/notification_service/repository/postgres"
	"github.com/tenacious-erp/integration_services/internal/platform/config"
	"github.com/tenacious-erp/integration_services/internal/platform/database"
	"github.com/tenacious-erp/integration_services/internal/platform/logger"
	"github.com/tenacious-erp/integration_services/internal/webhook_service/app"
	transporthttp "github.com/tenacious-erp/integration_services/internal/webhook_service/transport/http"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("webhook_service")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New("webhook-service", cfg.LogLevel)
	appLogger.Info("Webhook service starting", "log_level", cfg.LogLevel)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(rootCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL")

	repo := notifpostgres.NewPgMessageRecordRepository(dbPool, appLogger)
	reconciler := app.NewReconciler(repo, appLogger)
	webhookHandler := transporthttp.NewWebhookHandler(reconciler, cfg.WhatsAppVerifyToken, appLogger)

	// Webhook routes carry no auth middleware: providers authenticate through
	// the GET verification handshake and callbacks must always be accepted.
	router := chi.NewRouter()
	router.Use(chi_middleware.RequestID)
	router.Use(chi_middleware.RealIP)
	router.Use(chi_middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	router.Handle("/metrics", promhttp.Handler())
	webhookHandler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.WebhookServicePort),
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
	appLogger.Info("Webhook service shut down cleanly")
}
