package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dds.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url = "postgres://file/db"
token_secret = "from-file-secret-value"
rsa_key_bits = 3072

[storage]
backend = "minio"
endpoint = "minio.local:9000"
presign_seconds = 600
`), 0o600))

	t.Setenv("DDS_CONFIG_FILE", path)
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, "from-file-secret-value", cfg.TokenSecret)
	assert.Equal(t, 3072, cfg.RSAKeyBits)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, "minio.local:9000", cfg.Storage.Endpoint)
	assert.Equal(t, 600, cfg.Storage.PresignSeconds)
	assert.Equal(t, 5, cfg.Storage.TimeoutSeconds)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 168, cfg.TokenTTLHours)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "TOKEN_SECRET")
	assert.Contains(t, err.Error(), "STORAGE_ENDPOINT")

	cfg.DatabaseURL = "postgres://x"
	cfg.TokenSecret = "0123456789abcdef"
	cfg.Storage.Backend = "memory"
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "floppy"
	assert.Error(t, cfg.Validate())
}

func TestCSV(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CSV(""))
	assert.Equal(t, []string{"a", "b"}, CSV(" a, ,b "))
}
