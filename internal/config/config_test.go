package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"TOKEN_SECRET", "LOCKOUT_THRESHOLD", "LOCKOUT_WINDOW", "STORAGE_DRIVER", "MAIL_DRIVER", "REDIS_URL", "BCRYPT_COST"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Lockout.Threshold != 5 || cfg.Lockout.Window != 120*time.Second {
		t.Errorf("Lockout = %+v, want 5 / 2m0s", cfg.Lockout)
	}
	if cfg.Password.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, want 10", cfg.Password.BcryptCost)
	}
	if cfg.Storage.Driver != StorageDriverPostgres || cfg.Mail.Driver != MailDriverLog {
		t.Errorf("drivers = %q / %q", cfg.Storage.Driver, cfg.Mail.Driver)
	}
	if cfg.Redis.Enabled() {
		t.Error("redis should be disabled without REDIS_URL")
	}
	if !cfg.Server.MetricsEnabled {
		t.Error("metrics should be enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "s3cr3t")
	t.Setenv("LOCKOUT_THRESHOLD", "3")
	t.Setenv("LOCKOUT_WINDOW", "45")
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("MAIL_DRIVER", "")

	cfg := Load()

	if cfg.Token.Secret != "s3cr3t" {
		t.Errorf("Token = %+v", cfg.Token)
	}
	if cfg.Lockout.Threshold != 3 || cfg.Lockout.Window != 45*time.Second {
		t.Errorf("Lockout = %+v", cfg.Lockout)
	}
	if cfg.Storage.Driver != StorageDriverMemory {
		t.Errorf("Storage.Driver = %q", cfg.Storage.Driver)
	}
	if !cfg.Redis.Enabled() {
		t.Error("redis should be enabled")
	}
	if got := strings.Join(cfg.Server.AllowedOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("AllowedOrigins = %q", got)
	}
	if cfg.Server.MetricsEnabled {
		t.Error("METRICS_ENABLED=false ignored")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "s3cr3t")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("MAIL_DRIVER", "")
	valid := Load

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing secret", func(c *Config) { c.Token.Secret = "" }, "TOKEN_SECRET"},
		{"zero threshold", func(c *Config) { c.Lockout.Threshold = 0 }, "LOCKOUT_THRESHOLD"},
		{"zero window", func(c *Config) { c.Lockout.Window = 0 }, "LOCKOUT_WINDOW"},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "mysql" }, "STORAGE_DRIVER"},
		{"unknown mail", func(c *Config) { c.Mail.Driver = "pigeon" }, "MAIL_DRIVER"},
		{"smtp without host", func(c *Config) { c.Mail.Driver = MailDriverSMTP; c.Mail.Host = "" }, "SMTP_HOST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConnectionStrings(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "accounts", SSLMode: "disable"}

	if got := d.DSN(); got != "host=db port=5432 user=u password=p dbname=accounts sslmode=disable" {
		t.Errorf("DSN() = %q", got)
	}
	if got := d.URL(); got != "postgres://u:p@db:5432/accounts?sslmode=disable" {
		t.Errorf("URL() = %q", got)
	}
}
