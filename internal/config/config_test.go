package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopdesk/docs-service/internal/document"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	// point at a file that does not exist so a developer .env does not leak in
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "none.env"))
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("MONGODB_URI", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:5010", cfg.Server.Addr())
	require.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	require.Empty(t, cfg.MongoDB.URI, "mongo is optional")
	require.Equal(t, "memory", cfg.Document.LockBackend)
	require.Equal(t, document.StatusDraft, cfg.Document.RevertStatus)
	require.Equal(t, 10*time.Second, cfg.Document.LockTTL)
	require.Equal(t, 15*time.Minute, cfg.Document.ExportURLTTL)
	require.False(t, cfg.MinIO.Enabled())
	require.False(t, cfg.RateLimit.Enabled)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("MONGODB_DATABASE", "docs_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("DOCUMENT_LOCK_BACKEND", "Redis")
	t.Setenv("DOCUMENT_REVERT_STATUS", "review")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.test, https://admin.shop.test")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "docs_test", cfg.MongoDB.Database)
	require.Equal(t, "6379", cfg.Redis.Port)
	require.Equal(t, "redis", cfg.Document.LockBackend)
	require.Equal(t, document.StatusReview, cfg.Document.RevertStatus)
	require.True(t, cfg.RateLimit.Enabled)
	require.Equal(t, 2.5, cfg.RateLimit.RPS)
	require.Equal(t, []string{"https://shop.test", "https://admin.shop.test"}, cfg.Server.CORSOrigins)
	require.True(t, cfg.MinIO.Enabled())
	require.Equal(t, "document-snapshots", cfg.MinIO.Bucket)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT=7777\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	// godotenv never overrides, so clear the var and restore it afterwards
	t.Setenv("SERVER_PORT", "")
	require.NoError(t, os.Unsetenv("SERVER_PORT"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "7777", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	isolate(t)
	t.Setenv("DOCUMENT_LOCK_BACKEND", "redis")
	t.Setenv("REDIS_HOST", "")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("DOCUMENT_LOCK_BACKEND", "etcd")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("DOCUMENT_LOCK_BACKEND", "memory")
	t.Setenv("DOCUMENT_REVERT_STATUS", "deleted")
	_, err = LoadConfig()
	require.Error(t, err)
}
