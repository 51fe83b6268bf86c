package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/italolelis/chapter_downloader/internal/logctx"
)

// Config struct for environment variables.
type Config struct {
	DataDir     string `envconfig:"DATA_DIR" default:"data"`
	ArchiveMode bool   `envconfig:"ARCHIVE_MODE" default:"false"`
	AppVersion  string `envconfig:"APP_VERSION" default:"dev"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite3"`
	DBDSN    string `envconfig:"DB_DSN" default:"downloads.db"`

	ProviderBaseURL string        `envconfig:"PROVIDER_BASE_URL" required:"true"`
	ProviderToken   string        `envconfig:"PROVIDER_TOKEN"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`

	CleanupSchedule string `envconfig:"CLEANUP_SCHEDULE" default:"@every 30m"`

	LogLevel      string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"json"`
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"14"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	return logctx.ParseLevel(c.LogLevel)
}

// LoggerOptions maps the LOG_* settings onto logctx options.
func (c *Config) LoggerOptions() logctx.Options {
	return logctx.Options{
		Level:      c.SlogLevel(),
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
	}
}
