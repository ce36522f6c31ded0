package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"` // "production" hides error details
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Per-IP limit on /api routes; 0 disables it
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite3" or "postgres"
	URL             string        `mapstructure:"url"`    // postgres connection URL
	Path            string        `mapstructure:"path"`   // sqlite file
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ProvidersConfig holds configuration for usage providers
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig holds OpenAI admin API configuration
type OpenAIConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	APIKeyFile          string        `mapstructure:"api_key_file"` // takes precedence over api_key
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second"`
	Burst               int           `mapstructure:"burst"`
	MaxRateLimitRetries int           `mapstructure:"max_rate_limit_retries"` // 0 retries 429s forever
}

// SyncConfig holds automatic sync configuration
type SyncConfig struct {
	Interval   time.Duration `mapstructure:"interval"` // 0 disables auto-sync
	WindowDays int           `mapstructure:"window_days"`
}

// PricingConfig holds the per-token rates used to estimate usage cost
type PricingConfig struct {
	InputPerToken  string               `mapstructure:"input_per_token"`
	OutputPerToken string               `mapstructure:"output_per_token"`
	Models         map[string]ModelRate `mapstructure:"models"`
}

// ModelRate overrides the default rates for one model
type ModelRate struct {
	InputPerToken  string `mapstructure:"input_per_token"`
	OutputPerToken string `mapstructure:"output_per_token"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "text"
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Config file is optional
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromEnv loads configuration primarily from environment variables
func LoadFromEnv() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from .env file if it exists
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	// Read from environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind specific environment variables
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit_requests", 100)
	v.SetDefault("server.rate_limit_window", 15*time.Minute)
	v.SetDefault("server.allowed_origins", []string{})

	// Database defaults
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "./data/ai-spend.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	// Provider defaults
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.timeout", 30*time.Second)
	v.SetDefault("providers.openai.requests_per_second", 1.0)
	v.SetDefault("providers.openai.burst", 2)
	v.SetDefault("providers.openai.max_rate_limit_retries", 0)

	// Sync defaults
	v.SetDefault("sync.interval", time.Duration(0))
	v.SetDefault("sync.window_days", 30)

	// Pricing defaults ($1 / $2 per million tokens)
	v.SetDefault("pricing.input_per_token", "0.000001")
	v.SetDefault("pricing.output_per_token", "0.000002")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
}

func bindEnvVars(v *viper.Viper) {
	// Helper to bind and log errors (BindEnv errors are non-fatal but should be logged)
	bindEnv := func(key string, envVars ...string) {
		if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
			slog.Warn("failed to bind environment variable",
				slog.String("key", key),
				slog.String("env_var", strings.Join(envVars, ",")),
				slog.String("error", err.Error()))
		}
	}

	// Provider credentials from environment
	bindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	bindEnv("providers.openai.api_key_file", "OPENAI_API_KEY_FILE")
	bindEnv("providers.openai.base_url", "OPENAI_BASE_URL")

	// Database
	bindEnv("database.driver", "DATABASE_DRIVER")
	bindEnv("database.url", "DATABASE_URL")
	bindEnv("database.path", "DATABASE_PATH")

	// Server config
	bindEnv("server.host", "SERVER_HOST")
	bindEnv("server.port", "SERVER_PORT", "PORT")
	bindEnv("server.environment", "APP_ENV", "NODE_ENV")
	bindEnv("server.rate_limit_requests", "API_RATE_LIMIT")
	bindEnv("server.allowed_origins", "CORS_ORIGINS")

	// Sync
	bindEnv("sync.interval", "SYNC_INTERVAL")
	bindEnv("sync.window_days", "SYNC_WINDOW_DAYS")

	// Logging
	bindEnv("logging.level", "LOG_LEVEL")
	bindEnv("logging.format", "LOG_FORMAT")
	bindEnv("logging.file", "LOG_FILE")
}

// Validate checks if the configuration is valid. Missing OpenAI credentials
// are not an error: the server runs with sync disabled.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.RateLimitRequests < 0 {
		return fmt.Errorf("server rate limit must not be negative, got %d", c.Server.RateLimitRequests)
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server rate limit window must be positive")
	}

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite3 driver")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q (want sqlite3 or postgres)", c.Database.Driver)
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync interval must not be negative")
	}
	if c.Sync.WindowDays < 1 {
		return fmt.Errorf("sync window must be at least 1 day, got %d", c.Sync.WindowDays)
	}

	if c.Providers.OpenAI.RequestsPerSecond <= 0 {
		return fmt.Errorf("openai requests_per_second must be positive")
	}
	if c.Providers.OpenAI.Timeout <= 0 {
		return fmt.Errorf("openai timeout must be positive")
	}

	if err := checkRate("pricing.input_per_token", c.Pricing.InputPerToken); err != nil {
		return err
	}
	if err := checkRate("pricing.output_per_token", c.Pricing.OutputPerToken); err != nil {
		return err
	}
	for model, r := range c.Pricing.Models {
		if err := checkRate("pricing.models."+model+".input_per_token", r.InputPerToken); err != nil {
			return err
		}
		if err := checkRate("pricing.models."+model+".output_per_token", r.OutputPerToken); err != nil {
			return err
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

func checkRate(key, value string) error {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("%s must be a decimal number: %w", key, err)
	}
	if d.IsNegative() {
		return fmt.Errorf("%s must not be negative", key)
	}
	return nil
}
