package tracekit

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the environment-tunable settings for the export pipeline.
type Config struct {
	Batch    BatchConfig
	Exporter ExporterConfig
	Logging  LogConfig
}

// BatchConfig tunes the batching span processor.
type BatchConfig struct {
	MaxQueueSize       int           `envconfig:"TRACE_MAX_QUEUE_SIZE" default:"2048"`
	MaxExportBatchSize int           `envconfig:"TRACE_MAX_EXPORT_BATCH_SIZE" default:"512"`
	ScheduledDelay     time.Duration `envconfig:"TRACE_SCHEDULED_DELAY" default:"5s"`
	ExportTimeout      time.Duration `envconfig:"TRACE_EXPORT_TIMEOUT" default:"30s"`
}

// ExporterConfig tunes the bundled HTTP exporter.
type ExporterConfig struct {
	Endpoint string `envconfig:"TRACE_EXPORT_ENDPOINT" default:""`
	RetryMax int    `envconfig:"TRACE_EXPORT_RETRY_MAX" default:"2"`
}

// LogConfig tunes telemetry diagnostic logging.
type LogConfig struct {
	Level       string `envconfig:"TRACE_LOG_LEVEL" default:"warn"`
	Development bool   `envconfig:"TRACE_LOG_DEV" default:"false"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Batch: BatchConfig{
			MaxQueueSize:       DefaultMaxQueueSize,
			MaxExportBatchSize: DefaultMaxExportBatchSize,
			ScheduledDelay:     DefaultScheduledDelay,
			ExportTimeout:      DefaultExportTimeout,
		},
		Exporter: ExporterConfig{
			RetryMax: 2,
		},
		Logging: LogConfig{
			Level:       "warn",
			Development: false,
		},
	}
}

// Options converts the batch settings into BatchProcessor options.
func (c BatchConfig) Options() []BatchOption {
	return []BatchOption{
		WithMaxQueueSize(c.MaxQueueSize),
		WithMaxExportBatchSize(c.MaxExportBatchSize),
		WithScheduledDelay(c.ScheduledDelay),
		WithExportTimeout(c.ExportTimeout),
	}
}
