package s3storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config carries the connection settings for an S3-compatible store. A
// custom Endpoint with PathStyle enabled supports MinIO and other
// self-hosted targets.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Uploader pushes backup files to an S3-compatible object store.
type Uploader struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewUploader builds an S3 client from static credentials.
func NewUploader(cfg Config, logger *slog.Logger) *Uploader {
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.PathStyle,
		BaseEndpoint: nonEmptyPtr(cfg.Endpoint),
	})
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With("uploader", "s3"),
	}
}

// Name returns the uploader identifier.
func (u *Uploader) Name() string {
	return "s3"
}

// EnsureFolder returns the folder name as a key prefix. Object stores have
// no real folders, so there is nothing to create.
func (u *Uploader) EnsureFolder(_ context.Context, folderName string) (string, error) {
	return strings.Trim(folderName, "/"), nil
}

// UploadFile puts one local file under the folder prefix.
func (u *Uploader) UploadFile(ctx context.Context, folderRef string, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	key := folderRef + "/" + filepath.Base(filePath)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to bucket %s: %w", key, u.bucket, err)
	}

	u.logger.Info("Uploaded backup file to S3", "bucket", u.bucket, "key", key)
	return nil
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
