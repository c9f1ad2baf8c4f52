// Package config loads runtime configuration for the nodewatch server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains runtime configuration for the nodewatch service.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	NATS     NATSConfig     `yaml:"nats" mapstructure:"nats"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig captures HTTP server settings.
type ServerConfig struct {
	Port                int `yaml:"port" mapstructure:"port"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
}

// ReadTimeout returns the configured read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the configured write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout as a duration.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// DatabaseConfig captures Postgres connection settings.
type DatabaseConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	MigrationsPath string `yaml:"migrations_path" mapstructure:"migrations_path"`
}

// IngestConfig captures ingestion pipeline settings.
type IngestConfig struct {
	// MaxUploadBytes caps the accepted upload size server-side. The UI
	// rejects larger files before they reach us, but we defend anyway.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	// BatchSize bounds the number of event rows per insert statement.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	// Mode selects the record validation policy: "lenient" fills missing
	// fields with sentinels, "strict" drops records missing required fields.
	Mode string `yaml:"mode" mapstructure:"mode"`
}

// NATSConfig captures NATS message broker connection settings.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	URL           string `yaml:"url" mapstructure:"url"`
	MaxReconnects int    `yaml:"max_reconnects" mapstructure:"max_reconnects"`
	ReconnectWait int    `yaml:"reconnect_wait_seconds" mapstructure:"reconnect_wait_seconds"`
}

// ReconnectWaitDuration returns the reconnect wait as a time.Duration.
func (n NATSConfig) ReconnectWaitDuration() time.Duration {
	return time.Duration(n.ReconnectWait) * time.Second
}

// RedisConfig captures the optional ingest-stats Redis backend.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	URL     string `yaml:"url" mapstructure:"url"`
}

// LoggingConfig captures logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
}

// Load reads configuration from the provided path and environment variables.
// Environment variables use the NODEWATCH_ prefix with dots replaced by
// underscores (NODEWATCH_SERVER_PORT, NODEWATCH_DATABASE_URL, ...).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 30)
	v.SetDefault("server.idle_timeout_seconds", 60)

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("ingest.max_upload_bytes", int64(10<<20)) // 10 MiB
	v.SetDefault("ingest.batch_size", 100)
	v.SetDefault("ingest.mode", "lenient")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait_seconds", 2)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/nodewatch")
	}

	v.SetEnvPrefix("NODEWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found; use defaults
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values that cannot be defaulted sensibly.
func (c *Config) Validate() error {
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		return fmt.Errorf("ingest.max_upload_bytes must be positive, got %d", c.Ingest.MaxUploadBytes)
	}
	switch c.Ingest.Mode {
	case "lenient", "strict":
	default:
		return fmt.Errorf("ingest.mode must be lenient or strict, got %q", c.Ingest.Mode)
	}
	return nil
}
