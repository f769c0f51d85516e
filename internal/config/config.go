// Package config provides configuration management for the paper bot.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the paper bot.
type Config struct {
	// Bot contains messaging platform settings.
	Bot BotConfig `mapstructure:"bot"`
	// Server contains the operational HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// ArXiv contains arXiv API client settings.
	ArXiv ArXivConfig `mapstructure:"arxiv"`
	// Limits contains the conversational limits and quotas.
	Limits LimitsConfig `mapstructure:"limits"`
}

// BotConfig holds messaging platform settings.
type BotConfig struct {
	// Token is the bot API token (loaded from PAPERBOT_BOT_TOKEN env var).
	Token string `mapstructure:"-"`
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int `mapstructure:"poll_timeout"`
	// Debug enables verbose transport logging from the bot library.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the operational HTTP server configuration. It serves
// health probes and metrics only; all user traffic goes over the bot
// transport.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	// Default is "require" for production security. Use "disable" only for local development.
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// ArXivConfig holds arXiv API client settings.
type ArXivConfig struct {
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Burst is the maximum burst of requests allowed past the rate limit.
	Burst int `mapstructure:"burst"`
	// MaxRetries is the retry budget for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base backoff delay.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// LimitsConfig holds the conversational limits and quotas.
type LimitsConfig struct {
	// ResultsPerPage is how many papers one results page shows.
	ResultsPerPage int `mapstructure:"results_per_page"`
	// LoadMoreTimeout is the inactivity delay before a reminder fires.
	LoadMoreTimeout time.Duration `mapstructure:"load_more_timeout"`
	// RateLimitRequests is the admission quota per window.
	RateLimitRequests int `mapstructure:"rate_limit_requests"`
	// RateLimitWindow is the sliding admission window.
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	// DailyTrafficQuotaMB is the per-user daily download budget in MB.
	DailyTrafficQuotaMB int64 `mapstructure:"daily_traffic_quota_mb"`
	// MaxSingleFileMB rejects any single document larger than this (MB).
	MaxSingleFileMB int64 `mapstructure:"max_single_file_mb"`
	// PlatformTransferCeilingMB is the platform's hard transfer limit (MB).
	PlatformTransferCeilingMB int64 `mapstructure:"platform_transfer_ceiling_mb"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PAPERBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paperbot")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Bot.Token = os.Getenv("PAPERBOT_BOT_TOKEN")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Bot defaults
	v.SetDefault("bot.poll_timeout", 30)
	v.SetDefault("bot.debug", false)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "paperbot")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paperbot")
	// Default to "require" for production security. Use PAPERBOT_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// arXiv defaults
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("arxiv.timeout", "10s")
	v.SetDefault("arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("arxiv.burst", 3)
	v.SetDefault("arxiv.max_retries", 3)
	v.SetDefault("arxiv.retry_delay", "1s")

	// Conversational limits
	v.SetDefault("limits.results_per_page", 5)
	v.SetDefault("limits.load_more_timeout", "300s")
	v.SetDefault("limits.rate_limit_requests", 5)
	v.SetDefault("limits.rate_limit_window", "60s")
	v.SetDefault("limits.daily_traffic_quota_mb", 2048)
	v.SetDefault("limits.max_single_file_mb", 100)
	v.SetDefault("limits.platform_transfer_ceiling_mb", 20)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("PAPERBOT_BOT_TOKEN must be set")
	}
	if c.Bot.PollTimeout <= 0 {
		return fmt.Errorf("bot poll_timeout must be positive")
	}

	// Validate server port
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate arXiv config
	if c.ArXiv.Timeout <= 0 {
		return fmt.Errorf("arxiv timeout must be positive")
	}
	if c.ArXiv.RateLimit <= 0 {
		return fmt.Errorf("arxiv rate_limit must be positive")
	}
	if c.ArXiv.Burst <= 0 {
		return fmt.Errorf("arxiv burst must be positive")
	}

	// Validate limits
	if c.Limits.ResultsPerPage <= 0 {
		return fmt.Errorf("results_per_page must be positive")
	}
	if c.Limits.LoadMoreTimeout <= 0 {
		return fmt.Errorf("load_more_timeout must be positive")
	}
	if c.Limits.RateLimitRequests <= 0 {
		return fmt.Errorf("rate_limit_requests must be positive")
	}
	if c.Limits.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be positive")
	}
	if c.Limits.DailyTrafficQuotaMB <= 0 {
		return fmt.Errorf("daily_traffic_quota_mb must be positive")
	}
	if c.Limits.MaxSingleFileMB <= 0 {
		return fmt.Errorf("max_single_file_mb must be positive")
	}
	if c.Limits.PlatformTransferCeilingMB <= 0 {
		return fmt.Errorf("platform_transfer_ceiling_mb must be positive")
	}
	if c.Limits.PlatformTransferCeilingMB > c.Limits.MaxSingleFileMB {
		return fmt.Errorf("platform_transfer_ceiling_mb (%d) must be <= max_single_file_mb (%d)",
			c.Limits.PlatformTransferCeilingMB, c.Limits.MaxSingleFileMB)
	}

	return nil
}
