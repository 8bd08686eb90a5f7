// Package config defines the top-level configuration of the nexus exchange
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NEXUS_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Market   MarketConfig   `toml:"market"`
	Auth     AuthConfig     `toml:"auth"`
	Insight  InsightConfig  `toml:"insight"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	LogFile  string         `toml:"log_file"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// AdminAPIKey guards /api/admin/*. Empty leaves the admin API open.
	AdminAPIKey string `toml:"admin_api_key"`
	// RateLimit is the number of requests allowed per client IP per
	// RateWindow. Zero disables rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// StorageConfig selects the snapshot store backend.
type StorageConfig struct {
	// Driver is one of "memory", "leveldb" or "postgres".
	Driver      string `toml:"driver"`
	LevelDBPath string `toml:"leveldb_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters for ledger archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveCron schedules ledger exports in serve mode, e.g. "0 3 * * *".
	// Empty disables the schedule.
	ArchiveCron string `toml:"archive_cron"`
}

// KafkaConfig holds trade event publishing parameters.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// MarketConfig holds price simulation parameters.
type MarketConfig struct {
	TickInterval duration `toml:"tick_interval"`
}

// AuthConfig holds session parameters.
type AuthConfig struct {
	// DemoMode accepts any password at login.
	DemoMode      bool     `toml:"demo_mode"`
	SessionSecret string   `toml:"session_secret"`
	SessionTTL    duration `toml:"session_ttl"`
}

// InsightConfig holds generative model parameters.
type InsightConfig struct {
	APIKey        string   `toml:"api_key"`
	BaseURL       string   `toml:"base_url"`
	AnalysisModel string   `toml:"analysis_model"`
	StrategyModel string   `toml:"strategy_model"`
	Timeout       duration `toml:"timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Storage: StorageConfig{
			Driver:      "leveldb",
			LevelDBPath: "data/nexus.db",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "nexus",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  20,
			KeyPrefix: "nexus:",
			LockTTL:   duration{5 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "nexus-ledgers",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "nexus.trades",
		},
		Market: MarketConfig{
			TickInterval: duration{5 * time.Second},
		},
		Auth: AuthConfig{
			SessionTTL: duration{24 * time.Hour},
		},
		Insight: InsightConfig{
			BaseURL:       "https://generativelanguage.googleapis.com/v1beta",
			AnalysisModel: "gemini-3-flash-preview",
			StrategyModel: "gemini-3-pro-preview",
			Timeout:       duration{20 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_executed", "listing_added", "price_override"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"ticker":  true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDrivers = map[string]bool{
	"memory":   true,
	"leveldb":  true,
	"postgres": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, ticker, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	// Storage
	if !validDrivers[strings.ToLower(c.Storage.Driver)] {
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: memory, leveldb, postgres)", c.Storage.Driver))
	}
	if strings.EqualFold(c.Storage.Driver, "leveldb") && c.Storage.LevelDBPath == "" {
		errs = append(errs, "storage: leveldb_path must not be empty for the leveldb driver")
	}

	// Postgres
	if strings.EqualFold(c.Storage.Driver, "postgres") {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be positive")
		}
	}

	// S3
	if c.S3.Enabled || strings.EqualFold(c.Mode, "archive") {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if !c.S3.Enabled {
			errs = append(errs, "s3: must be enabled for mode archive")
		}
		if c.S3.ArchiveCron != "" && len(strings.Fields(c.S3.ArchiveCron)) != 5 {
			errs = append(errs, fmt.Sprintf("s3: archive_cron %q must have 5 fields", c.S3.ArchiveCron))
		}
	}

	// Kafka
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka: brokers must not be empty when enabled")
	}

	// Market
	if c.Market.TickInterval.Duration <= 0 {
		errs = append(errs, "market: tick_interval must be positive")
	}

	// Auth
	if c.Auth.SessionTTL.Duration <= 0 {
		errs = append(errs, "auth: session_ttl must be positive")
	}

	// Insight
	if c.Insight.Timeout.Duration <= 0 {
		errs = append(errs, "insight: timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
