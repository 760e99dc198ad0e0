// Package config provides centralized configuration for the Kestrel
// pipeline. Configuration is read from $KESTREL_CONFIG_DIR/config.yaml with
// environment variable overrides; validation is fail-fast so a run never
// starts with a missing NAT table or source timezone.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kestrelsec/kestrel/internal/model"
)

// ConfigurationError is fatal at startup: the run refuses to start.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Config is the master configuration struct.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Server      ServerConfig      `mapstructure:"server"`
	OpenSearch  OpenSearchConfig  `mapstructure:"opensearch"`
	Redis       RedisConfig       `mapstructure:"redis"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Time        TimeConfig        `mapstructure:"time"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Risk        RiskConfig        `mapstructure:"risk"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// OpenSearchConfig holds log store connection settings.
type OpenSearchConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
}

// RedisConfig holds cursor checkpoint store settings.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// NATSConfig holds incident feed publisher settings.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// DatabaseConfig holds incident repository settings.
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"` // "postgres" or "memory"
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// GatewayConfig bounds every query the pipeline issues.
type GatewayConfig struct {
	MaxPageSize   int           `mapstructure:"max_page_size"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

// TimeConfig fixes the input timezone per source family and the display
// timezone used on output. Input timezones are configured, never inferred
// per record.
type TimeConfig struct {
	DisplayTimezone string            `mapstructure:"display_timezone"`
	SourceTimezones map[string]string `mapstructure:"source_timezones"`
}

// CorrelationConfig holds per-strategy windows and the NAT table location.
type CorrelationConfig struct {
	NATTablePath  string        `mapstructure:"nat_table_path"`
	NATWindow     time.Duration `mapstructure:"nat_window"`
	EmailWindow   time.Duration `mapstructure:"email_window"`
	HostWindow    time.Duration `mapstructure:"host_window"`
	MinConfidence float64       `mapstructure:"min_confidence"`
}

// RiskConfig holds escalation rule bonuses.
type RiskConfig struct {
	EmailDivergenceBonus int `mapstructure:"email_divergence_bonus"`
	AuthChainBonus       int `mapstructure:"auth_chain_bonus"`
}

// Load reads configuration from $KESTREL_CONFIG_DIR/config.yaml and
// environment variables. A missing config file is fine; invalid settings
// are not.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configDir := os.Getenv("KESTREL_CONFIG_DIR")
	if configDir == "" {
		configDir = "/etc/kestrel"
	}
	v.SetConfigFile(fmt.Sprintf("%s/config.yaml", configDir))
	v.SetConfigType("yaml")

	v.SetEnvPrefix("KESTREL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
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

// Validate enforces the startup invariants. Any violation aborts the run
// before the first query is issued.
func (c *Config) Validate() error {
	if c.Correlation.NATTablePath == "" {
		return &ConfigurationError{Field: "correlation.nat_table_path", Reason: "NAT mapping table is required"}
	}
	if c.Correlation.NATWindow <= 0 {
		return &ConfigurationError{Field: "correlation.nat_window", Reason: "window width must be positive"}
	}
	if c.Correlation.EmailWindow <= 0 {
		return &ConfigurationError{Field: "correlation.email_window", Reason: "window width must be positive"}
	}
	if c.Correlation.HostWindow <= 0 {
		return &ConfigurationError{Field: "correlation.host_window", Reason: "window width must be positive"}
	}
	if c.Correlation.MinConfidence < 0 || c.Correlation.MinConfidence > 1 {
		return &ConfigurationError{Field: "correlation.min_confidence", Reason: "must be in [0,1]"}
	}
	if c.Gateway.MaxPageSize <= 0 {
		return &ConfigurationError{Field: "gateway.max_page_size", Reason: "must be positive"}
	}
	if c.Gateway.RetryAttempts <= 0 {
		return &ConfigurationError{Field: "gateway.retry_attempts", Reason: "must be positive"}
	}
	if c.Time.DisplayTimezone == "" {
		return &ConfigurationError{Field: "time.display_timezone", Reason: "display timezone is required"}
	}
	for _, src := range model.AllSources() {
		if _, ok := c.Time.SourceTimezones[string(src)]; !ok {
			return &ConfigurationError{
				Field:  fmt.Sprintf("time.source_timezones.%s", src),
				Reason: "input timezone mapping is required for every source",
			}
		}
	}
	return nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.port", 8097)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "admin")
	v.SetDefault("opensearch.insecure", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("database.type", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "kestrel")
	v.SetDefault("database.postgres.user", "kestrel")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("gateway.max_page_size", 500)
	v.SetDefault("gateway.retry_attempts", 3)
	v.SetDefault("gateway.retry_backoff", "500ms")
	v.SetDefault("gateway.fetch_timeout", "30s")

	v.SetDefault("time.display_timezone", "Asia/Taipei")
	defaultZones := make(map[string]string, len(model.AllSources()))
	for _, src := range model.AllSources() {
		defaultZones[string(src)] = "Asia/Taipei"
	}
	// Appliances that already emit UTC timestamps
	defaultZones[string(model.SourcePaloAlto)] = "UTC"
	defaultZones[string(model.SourceTrendApex)] = "UTC"
	v.SetDefault("time.source_timezones", defaultZones)

	v.SetDefault("correlation.nat_table_path", "/etc/kestrel/nat-mappings.yaml")
	v.SetDefault("correlation.nat_window", "120s")
	v.SetDefault("correlation.email_window", "24h")
	v.SetDefault("correlation.host_window", "10m")
	v.SetDefault("correlation.min_confidence", 0.0)

	v.SetDefault("risk.email_divergence_bonus", 30)
	v.SetDefault("risk.auth_chain_bonus", 25)
}
