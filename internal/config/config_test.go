package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PROVIDER_BASE_URL", "http://provider.local")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.False(t, cfg.ArchiveMode)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "@every 30m", cfg.CleanupSchedule)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "0.0.0.0:9092", cfg.Web.BindAddress)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PROVIDER_BASE_URL", "http://provider.local")
	t.Setenv("ARCHIVE_MODE", "true")
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("TELEMETRY_ENABLED", "false")
	t.Setenv("TELEMETRY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("WEB_BIND_ADDRESS", "127.0.0.1:0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.ArchiveMode)
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "127.0.0.1:0", cfg.Web.BindAddress)

	opts := cfg.LoggerOptions()
	assert.Equal(t, slog.LevelDebug, opts.Level)
	assert.Equal(t, "text", opts.Format)
}

func TestLoadConfigRequiresProvider(t *testing.T) {
	t.Setenv("PROVIDER_BASE_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
}
