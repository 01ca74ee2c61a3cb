package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tenacious-erp/integration_services/internal/backup_service/domain"
)

// Options configures a backup run.
type Options struct {
	FolderName string
	Frequency  string // "daily" or "weekly"
	SourceDir  string
}

// RunSummary reports what one backup run did.
type RunSummary struct {
	Uploaded int
	Failed   int
}

// BackupService uploads database backup files to a cloud storage target on a
// daily or weekly cadence.
type BackupService struct {
	uploader domain.Uploader
	state    domain.StateRepository
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewBackupService creates a BackupService.
func NewBackupService(uploader domain.Uploader, state domain.StateRepository, opts Options, logger *slog.Logger) *BackupService {
	return &BackupService{
		uploader: uploader,
		state:    state,
		opts:     opts,
		logger:   logger.With("component", "backup_service", "target", uploader.Name()),
		now:      time.Now,
	}
}

// IsBackupDue applies the frequency gate against the persisted last-run time.
// A never-run state is always due.
func (s *BackupService) IsBackupDue(ctx context.Context) (bool, error) {
	last, err := s.state.GetLastBackupOn(ctx)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}

	interval := 24 * time.Hour
	if s.opts.Frequency == "weekly" {
		interval = 7 * 24 * time.Hour
	}
	return s.now().Sub(*last) >= interval, nil
}

// Run performs one backup cycle: gate on frequency, ensure the remote
// folder, upload every file in the source directory, then record the run.
// A run with any failed upload does not advance the last-run marker, so the
// next tick retries.
func (s *BackupService) Run(ctx context.Context) (RunSummary, error) {
	due, err := s.IsBackupDue(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to evaluate backup schedule: %w", err)
	}
	if !due {
		return RunSummary{}, domain.ErrBackupNotDue
	}

	files, err := s.collectFiles()
	if err != nil {
		return RunSummary{}, err
	}
	if len(files) == 0 {
		s.logger.InfoContext(ctx, "No backup files found, nothing to upload", "source_dir", s.opts.SourceDir)
		return RunSummary{}, nil
	}

	folderRef, err := s.uploader.EnsureFolder(ctx, s.opts.FolderName)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to prepare backup folder %q: %w", s.opts.FolderName, err)
	}

	var summary RunSummary
	for _, f := range files {
		if err := s.uploader.UploadFile(ctx, folderRef, f); err != nil {
			s.logger.ErrorContext(ctx, "Backup file upload failed", "file", f, "error", err)
			summary.Failed++
			continue
		}
		summary.Uploaded++
	}

	if summary.Failed > 0 {
		return summary, fmt.Errorf("%d of %d backup files failed to upload", summary.Failed, len(files))
	}

	if err := s.state.SetLastBackupOn(ctx, s.now()); err != nil {
		return summary, fmt.Errorf("backup uploaded but state could not be saved: %w", err)
	}

	s.logger.InfoContext(ctx, "Backup run completed", "uploaded", summary.Uploaded)
	return summary, nil
}

// collectFiles lists the regular files directly inside the source directory.
// Subdirectories are skipped; backup dumps are written flat.
func (s *BackupService) collectFiles() ([]string, error) {
	entries, err := os.ReadDir(s.opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup source directory %s: %w", s.opts.SourceDir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(s.opts.SourceDir, e.Name()))
	}
	return files, nil
}
