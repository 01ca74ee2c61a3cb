package domain

import (
	"context"
	"errors"
	"time"
)

// ErrBackupNotDue indicates the frequency gate rejected a run.
var ErrBackupNotDue = errors.New("backup is not due yet based on the configured frequency")

// Uploader is the port for a cloud storage backup target.
type Uploader interface {
	Name() string
	// EnsureFolder checks for or creates the backup folder and returns an
	// opaque reference (item id for OneDrive, key prefix for S3).
	EnsureFolder(ctx context.Context, folderName string) (string, error)
	UploadFile(ctx context.Context, folderRef string, filePath string) error
}

// StateRepository persists when the last successful backup ran so the
// frequency gate survives restarts.
type StateRepository interface {
	GetLastBackupOn(ctx context.Context) (*time.Time, error)
	SetLastBackupOn(ctx context.Context, t time.Time) error
}
