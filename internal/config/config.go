package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	Name               string `mapstructure:"name"`
	Schema             string `mapstructure:"schema"`
	SSLMode            string `mapstructure:"sslmode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// NATSConfig holds NATS configuration. An empty URL disables messaging.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Stream        string        `mapstructure:"stream"`
}

// Enabled reports whether a NATS server is configured.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// ArchiveConfig holds the archival migration settings.
type ArchiveConfig struct {
	BatchSize              int           `mapstructure:"batch_size"`
	DefaultCycleLengthDays int           `mapstructure:"default_cycle_length_days"`
	BaselineElapsedDays    int           `mapstructure:"baseline_elapsed_days"`
	MaxRetries             int           `mapstructure:"max_retries"`
	RetryInitialDelay      time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay          time.Duration `mapstructure:"retry_max_delay"`
	FallbackCourseName     string        `mapstructure:"fallback_course_name"`
	Isolation              string        `mapstructure:"isolation"`
}

// WorkerConfig holds the request consumer configuration.
type WorkerConfig struct {
	Subject     string        `mapstructure:"subject"`
	QueueGroup  string        `mapstructure:"queue_group"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// MetricsConfig holds OpenTelemetry metrics configuration.
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

var validIsolationLevels = map[string]bool{
	"":                true,
	"read_committed":  true,
	"repeatable_read": true,
	"serializable":    true,
}

// New creates a new Config instance from Viper.
func New(v *viper.Viper) *Config {
	var config Config

	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}

	if err := config.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	return &config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}

	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}

	if c.Archive.BatchSize < 0 {
		return errors.New("archive.batch_size must not be negative")
	}

	if c.Archive.DefaultCycleLengthDays < 1 {
		return errors.New("archive.default_cycle_length_days must be at least 1")
	}

	if c.Archive.BaselineElapsedDays < 0 {
		return errors.New("archive.baseline_elapsed_days must not be negative")
	}

	if c.Archive.MaxRetries < 0 {
		return errors.New("archive.max_retries must not be negative")
	}

	if strings.TrimSpace(c.Archive.FallbackCourseName) == "" {
		return errors.New("archive.fallback_course_name is required")
	}

	if !validIsolationLevels[c.Archive.Isolation] {
		return fmt.Errorf("archive.isolation %q is not supported", c.Archive.Isolation)
	}

	return nil
}
