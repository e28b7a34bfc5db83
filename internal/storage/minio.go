package storage

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Skotchmaster/data_delivery/internal/config"
)

type Minio struct {
	client  *minio.Client
	expiry  time.Duration
	timeout time.Duration
}

func NewMinio(cfg config.StorageConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &Minio{client: client, expiry: cfg.PresignExpiry(), timeout: cfg.Timeout()}, nil
}

func (m *Minio) EnsureBucket(ctx context.Context, bucket string) error {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return connErr(err)
	}
	if exists {
		return nil
	}
	return connErr(m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
}

func (m *Minio) GenerateUploadURL(ctx context.Context, bucket, key string) (string, error) {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	u, err := m.client.PresignedPutObject(ctx, bucket, key, m.expiry)
	if err != nil {
		return "", connErr(err)
	}
	return u.String(), nil
}

func (m *Minio) GenerateDownloadURL(ctx context.Context, bucket, key string) (string, error) {
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	u, err := m.client.PresignedGetObject(ctx, bucket, key, m.expiry, nil)
	if err != nil {
		return "", connErr(err)
	}
	return u.String(), nil
}

func (m *Minio) RemoveObjects(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	for res := range m.client.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			return connErr(res.Err)
		}
	}
	return nil
}
