package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tenacious-erp/integration_services/internal/backup_service/adapters/msauth"
	"github.com/tenacious-erp/integration_services/internal/backup_service/adapters/onedrive"
	"github.com/tenacious-erp/integration_services/internal/backup_service/adapters/s3storage"
	"github.com/tenacious-erp/integration_services/internal/backup_service/app"
	"github.com/tenacious-erp/integration_services/internal/backup_service/domain"
	"github.com/tenacious-erp/integration_services/internal/backup_service/repository/postgres"
	"github.com/tenacious-erp/integration_services/internal/platform/config"
	"github.com/tenacious-erp/integration_services/internal/platform/database"
	"github.com/tenacious-erp/integration_services/internal/platform/logger"
)

// checkInterval is how often the frequency gate is re-evaluated. The gate
// itself decides whether a backup actually runs.
const checkInterval = time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("backup_service")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New("backup-service", cfg.LogLevel)
	appLogger.Info("Backup service starting", "target", cfg.BackupTarget, "frequency", cfg.BackupFrequency)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(rootCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	var uploader domain.Uploader
	switch cfg.BackupTarget {
	case "s3":
		uploader = s3storage.NewUploader(s3storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		}, appLogger)
	case "onedrive":
		tokens := msauth.NewTokenSource(msauth.Config{
			LoginBaseURL: cfg.MSLoginBaseURL,
			TenantID:     cfg.MSTenantID,
			ClientID:     cfg.MSClientID,
			ClientSecret: cfg.MSClientSecret,
			RefreshToken: cfg.MSRefreshToken,
		}, appLogger)
		uploader = onedrive.NewUploader(tokens, cfg.MSGraphBaseURL, appLogger)
	default:
		appLogger.Error("Unknown backup target", "target", cfg.BackupTarget)
		os.Exit(1)
	}

	stateRepo := postgres.NewPgBackupStateRepository(dbPool)
	backupSvc := app.NewBackupService(uploader, stateRepo, app.Options{
		FolderName: cfg.BackupFolderName,
		Frequency:  cfg.BackupFrequency,
		SourceDir:  cfg.BackupSourceDir,
	}, appLogger)

	runOnce := func() {
		summary, err := backupSvc.Run(rootCtx)
		switch {
		case errors.Is(err, domain.ErrBackupNotDue):
			appLogger.Debug("Backup not due yet")
		case err != nil:
			appLogger.Error("Backup run failed", "error", err, "uploaded", summary.Uploaded, "failed", summary.Failed)
		default:
			appLogger.Info("Backup run finished", "uploaded", summary.Uploaded)
		}
	}

	runOnce()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rootCtx.Done():
			appLogger.Info("Backup service shut down cleanly")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
