package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Market.TickInterval.Duration != 5*time.Second {
		t.Errorf("tick_interval = %s", cfg.Market.TickInterval)
	}
	if cfg.Storage.Driver != "leveldb" || cfg.Auth.DemoMode {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Storage, cfg.Auth)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Mode != "serve" {
		t.Errorf("cfg = %+v", cfg.Server)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "ticker"
log_level = "debug"

[server]
port = 9090

[storage]
driver = "memory"

[market]
tick_interval = "250ms"

[auth]
demo_mode = true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NEXUS_SERVER_PORT", "7070")
	t.Setenv("NEXUS_KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("NEXUS_INSIGHT_TIMEOUT", "3s")
	t.Setenv("NEXUS_REDIS_ENABLED", "not-a-bool")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "ticker" || cfg.LogLevel != "debug" || cfg.Storage.Driver != "memory" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Market.TickInterval.Duration != 250*time.Millisecond || !cfg.Auth.DemoMode {
		t.Errorf("market/auth = %+v %+v", cfg.Market, cfg.Auth)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env port = %d, want 7070", cfg.Server.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Insight.Timeout.Duration != 3*time.Second {
		t.Errorf("insight timeout = %s", cfg.Insight.Timeout)
	}
	if cfg.Redis.Enabled {
		t.Error("malformed bool should be ignored")
	}
	if cfg.Postgres.Database != "nexus" {
		t.Errorf("unset section lost its defaults: %+v", cfg.Postgres)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("mode = \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0
	cfg.Storage.Driver = "sqlite"
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = nil
	cfg.Market.TickInterval.Duration = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"mode", "log_level", "server: port", "storage: unknown driver", "kafka: brokers", "market: tick_interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateArchiveNeedsS3(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "s3") {
		t.Fatalf("err = %v", err)
	}
	cfg.S3.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("archive with s3: %v", err)
	}
}

func TestValidatePostgresOnlyWhenSelected(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Host = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("postgres unused but validated: %v", err)
	}
	cfg.Storage.Driver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected postgres host error")
	}
	cfg.Postgres.DSN = "postgres://localhost/nexus"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dsn should satisfy postgres: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.Auth.SessionSecret = "secret"
	cfg.Insight.APIKey = "key"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	for name, v := range map[string]string{
		"postgres.password":     out.Postgres.Password,
		"auth.session_secret":   out.Auth.SessionSecret,
		"insight.api_key":       out.Insight.APIKey,
		"notify.telegram_token": out.Notify.TelegramToken,
	} {
		if v != redacted {
			t.Errorf("%s = %q, want redacted", name, v)
		}
	}
	if out.S3.AccessKey != "" {
		t.Error("empty secrets should stay empty")
	}
	if cfg.Insight.APIKey != "key" {
		t.Error("original config was modified")
	}

	out.Server.CORSOrigins[0] = "changed"
	if cfg.Server.CORSOrigins[0] == "changed" {
		t.Error("redacted copy shares CORS slice with original")
	}
}
