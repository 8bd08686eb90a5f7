package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NEXUS_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known NEXUS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "NEXUS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "NEXUS_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "NEXUS_SERVER_ADMIN_API_KEY")
	setInt(&cfg.Server.RateLimit, "NEXUS_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "NEXUS_SERVER_RATE_WINDOW")

	// ── Storage ──
	setStr(&cfg.Storage.Driver, "NEXUS_STORAGE_DRIVER")
	setStr(&cfg.Storage.LevelDBPath, "NEXUS_STORAGE_LEVELDB_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "NEXUS_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "NEXUS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NEXUS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NEXUS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NEXUS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NEXUS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NEXUS_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "NEXUS_POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NEXUS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "NEXUS_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "NEXUS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NEXUS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NEXUS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NEXUS_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "NEXUS_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "NEXUS_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.LockTTL, "NEXUS_REDIS_LOCK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "NEXUS_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "NEXUS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NEXUS_S3_REGION")
	setStr(&cfg.S3.Bucket, "NEXUS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NEXUS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NEXUS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NEXUS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NEXUS_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ArchiveCron, "NEXUS_S3_ARCHIVE_CRON")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "NEXUS_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "NEXUS_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "NEXUS_KAFKA_TOPIC")

	// ── Market ──
	setDuration(&cfg.Market.TickInterval, "NEXUS_MARKET_TICK_INTERVAL")

	// ── Auth ──
	setBool(&cfg.Auth.DemoMode, "NEXUS_AUTH_DEMO_MODE")
	setStr(&cfg.Auth.SessionSecret, "NEXUS_AUTH_SESSION_SECRET")
	setDuration(&cfg.Auth.SessionTTL, "NEXUS_AUTH_SESSION_TTL")

	// ── Insight ──
	setStr(&cfg.Insight.APIKey, "NEXUS_INSIGHT_API_KEY")
	setStr(&cfg.Insight.APIKey, "GEMINI_API_KEY") // compatibility alias
	setStr(&cfg.Insight.BaseURL, "NEXUS_INSIGHT_BASE_URL")
	setStr(&cfg.Insight.AnalysisModel, "NEXUS_INSIGHT_ANALYSIS_MODEL")
	setStr(&cfg.Insight.StrategyModel, "NEXUS_INSIGHT_STRATEGY_MODEL")
	setDuration(&cfg.Insight.Timeout, "NEXUS_INSIGHT_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NEXUS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NEXUS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NEXUS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NEXUS_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "NEXUS_MODE")
	setStr(&cfg.LogLevel, "NEXUS_LOG_LEVEL")
	setStr(&cfg.LogFile, "NEXUS_LOG_FILE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
