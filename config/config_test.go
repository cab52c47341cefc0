package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Ping.Interval)
	assert.Equal(t, "30-M", cfg.Limiter.Rate)
	assert.Equal(t, "30-H", cfg.Notify.Rate)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
app:
  env: production
storage:
  driver: csv
  path: /tmp/views.csv
  send_path: /tmp/sends.csv
ping:
  url: https://example.com/health
  interval: 10m
logger:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "csv", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/sends.csv", cfg.Storage.SendPath)
	assert.Equal(t, 10*time.Minute, cfg.Ping.Interval)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9000\"\n")
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/receipts?sslmode=disable")
	t.Setenv("PING_URL", "https://example.com")
	t.Setenv("PING_INTERVAL", "30s")
	t.Setenv("NOTIFY_TO", "me@example.com")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("NOTIFY_RATE", "5-M")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Ping.Interval)
	assert.True(t, cfg.Notify.Enabled)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, "5-M", cfg.Notify.Rate)
}

func TestInvalidEnvValues(t *testing.T) {
	t.Run("ping interval", func(t *testing.T) {
		t.Setenv("PING_INTERVAL", "often")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})
	t.Run("smtp port", func(t *testing.T) {
		t.Setenv("SMTP_PORT", "smtp")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, true},
		{"csv without send path", func(c *Config) {
			c.Storage.Driver = "csv"
			c.Storage.SendPath = ""
		}, true},
		{"mysql without dsn", func(c *Config) { c.Storage.Driver = "mysql" }, true},
		{"mysql with dsn", func(c *Config) {
			c.Storage.Driver = "mysql"
			c.Storage.DSN = "user:pass@tcp(localhost:3306)/receipts?parseTime=true"
		}, false},
		{"ping without interval", func(c *Config) {
			c.Ping.URL = "https://example.com"
			c.Ping.Interval = 0
		}, true},
		{"notify without smtp", func(c *Config) {
			c.Notify.Enabled = true
			c.Notify.To = "me@example.com"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetBaseURL(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "http://localhost:8080", cfg.GetBaseURL(""))
	assert.Equal(t, "http://tracker.local", cfg.GetBaseURL("tracker.local"))

	cfg.App.Env = "production"
	assert.Equal(t, "https://tracker.example.com", cfg.GetBaseURL("tracker.example.com"))

	cfg.App.BaseURL = "https://receipts.example.com"
	assert.Equal(t, "https://receipts.example.com", cfg.GetBaseURL("ignored"))
}
