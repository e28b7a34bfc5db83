package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/data_delivery/internal/config"
	"github.com/Skotchmaster/data_delivery/internal/errs"
)

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StorageConfig{Backend: "memory"}},
		{name: "minio", cfg: config.StorageConfig{Backend: "minio", Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}},
		{name: "s3", cfg: config.StorageConfig{Backend: "s3", Endpoint: "localhost:9000", Region: "us-east-1", AccessKey: "a", SecretKey: "b"}},
		{name: "unknown", cfg: config.StorageConfig{Backend: "tape"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NewFromConfig(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}

func TestPresignedURLsAreLocal(t *testing.T) {
	t.Parallel()

	cfg := config.StorageConfig{
		Endpoint:       "localhost:9000",
		Region:         "us-east-1",
		AccessKey:      "access",
		SecretKey:      "secret",
		PresignSeconds: 600,
	}
	ctx := context.Background()

	s3store, err := NewS3(ctx, cfg)
	require.NoError(t, err)
	minioStore, err := NewMinio(cfg)
	require.NoError(t, err)

	for name, st := range map[string]Store{"s3": s3store, "minio": minioStore} {
		st := st
		t.Run(name, func(t *testing.T) {
			up, err := st.GenerateUploadURL(ctx, "proj-bucket", "file.c4gh")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(up, "http://localhost:9000/proj-bucket/file.c4gh?"), up)
			assert.Contains(t, up, "X-Amz-Signature=")

			down, err := st.GenerateDownloadURL(ctx, "proj-bucket", "file.c4gh")
			require.NoError(t, err)
			assert.Contains(t, down, "X-Amz-Expires=600")
		})
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	m := NewMemory(time.Minute)
	ctx := context.Background()

	require.NoError(t, m.EnsureBucket(ctx, "b1"))
	assert.True(t, m.HasBucket("b1"))

	u, err := m.GenerateDownloadURL(ctx, "b1", "k")
	require.NoError(t, err)
	assert.Contains(t, u, "/b1/k")

	require.NoError(t, m.RemoveObjects(ctx, "b1", []string{"k", "j"}))
	assert.Equal(t, []string{"k", "j"}, m.Removed("b1"))

	m.Fail = errors.New("connection refused")
	_, err = m.GenerateUploadURL(ctx, "b1", "k")
	assert.ErrorIs(t, err, errs.ErrStorageConnection)
}
