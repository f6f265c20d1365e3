package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotebridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
db:
  driver: sqlite
  sqlite_path: /tmp/qb.db
notify:
  sink: redis
  redis_addr: localhost:6379
worker:
  recovery_stale_after: 10m
batch_fanout_concurrency: 8
`), 0o600))

	t.Setenv("PORT", "7070")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")

	cfg, err := LoadConfig(logger.Nop(), path)
	require.NoError(t, err)
	require.Equal(t, "7070", cfg.Port)
	require.Equal(t, "sqlite", cfg.DB.Driver)
	require.Equal(t, "/tmp/qb.db", cfg.DBConfig().SQLitePath)
	require.Equal(t, "redis", cfg.SinkConfig().Kind)
	require.Equal(t, 10*time.Minute, cfg.Worker.RecoveryStaleAfter)
	require.Equal(t, 500*time.Millisecond, cfg.Worker.OutboxPollInterval)
	require.Equal(t, 8, cfg.BatchFanoutConcurrency)
	// Untouched defaults survive.
	require.Equal(t, time.Minute, cfg.Worker.RecoveryInterval)
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	_, err := LoadConfig(logger.Nop(), "")
	require.Error(t, err)
}
