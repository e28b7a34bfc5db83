// Package storage talks to the S3-compatible object store. Only presigned
// URLs and bucket housekeeping go through the service; file bytes travel
// directly between clients and the store.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Skotchmaster/data_delivery/internal/config"
	"github.com/Skotchmaster/data_delivery/internal/errs"
)

const DefaultTimeout = 5 * time.Second

type Store interface {
	EnsureBucket(ctx context.Context, bucket string) error
	GenerateUploadURL(ctx context.Context, bucket, key string) (string, error)
	GenerateDownloadURL(ctx context.Context, bucket, key string) (string, error)
	RemoveObjects(ctx context.Context, bucket string, keys []string) error
}

// NewFromConfig picks the backend named in cfg.Backend.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(cfg.PresignExpiry()), nil
	case "s3":
		return NewS3(ctx, cfg)
	case "minio":
		return NewMinio(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

func connErr(err error) error {
	if err == nil {
		return nil
	}
	return errs.StorageConnection(err)
}
