package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Load_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "flowforge.db", cfg.Database.Path)
	require.Equal(t, "sqlite", cfg.Broker.Kind)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	require.Equal(t, 2, cfg.Worker.Pollers)
	require.Equal(t, time.Second, cfg.Worker.PollingInterval)
	require.True(t, cfg.Scheduler.Enabled)
}

func Test_Load_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
database:
  path: /var/lib/flowforge/data.db
broker:
  kind: redis
  redis_addr: redis:6379
server:
  port: 9000
worker:
  pollers: 8
  polling_interval: 250ms
scheduler:
  enabled: false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "/var/lib/flowforge/data.db", cfg.Database.Path)
	require.Equal(t, "redis", cfg.Broker.Kind)
	require.Equal(t, "redis:6379", cfg.Broker.RedisAddr)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, 8, cfg.Worker.Pollers)
	require.Equal(t, 250*time.Millisecond, cfg.Worker.PollingInterval)
	require.False(t, cfg.Scheduler.Enabled)
}

func Test_Load_Env(t *testing.T) {
	t.Setenv("FLOWFORGE_BROKER_KIND", "redis")
	t.Setenv("FLOWFORGE_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "redis", cfg.Broker.Kind)
	require.Equal(t, 7070, cfg.Server.Port)
}

func Test_Load_RejectsUnknownBroker(t *testing.T) {
	t.Setenv("FLOWFORGE_BROKER_KIND", "kafka")

	_, err := Load("")
	require.Error(t, err)
}

func Test_Load_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
