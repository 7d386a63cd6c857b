package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, DefaultHTTPPort, cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.Services.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Services.HealthTimeout)
	assert.Equal(t, 10*time.Second, cfg.Telegram.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 10, cfg.Poller.BatchSize)
	assert.Len(t, cfg.Services.URLs, 3)
	assert.Contains(t, cfg.Services.URLs, "participant")
	assert.False(t, cfg.Database.IsPostgres())
	assert.True(t, cfg.Scheduler.Tasks["cleanup_logs"].Enabled)
	assert.True(t, cfg.Scheduler.Tasks["retry_failed_messages"].Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Poller.TaskTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour}, cfg.Retry.Backoff)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgresql://user:pass@db:5432/telegive")
	t.Setenv("WEBHOOK_URL", "https://bot.example.com/")
	t.Setenv("AUTH_SERVICE_URL", "https://auth.example.com/")
	t.Setenv("SERVICE_TO_SERVICE_SECRET", "s3cret")
	t.Setenv("TELEGIVE_POLLER_INTERVAL", "2s")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.Database.IsPostgres())
	assert.Equal(t, "https://bot.example.com", cfg.Webhook.BaseURL)
	assert.Equal(t, "https://auth.example.com", cfg.Services.URLs["auth"])
	assert.Equal(t, "s3cret", cfg.Services.Secret)
	assert.Equal(t, "s3cret", cfg.Services.AuthToken, "auth token falls back to the shared secret")
	assert.Equal(t, 2*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logger:
  level: DEBUG
  json: true
webhook:
  base_url: https://hooks.example.com
  strict_payloads: true
services:
  auth_token: dedicated
messages:
  fallback: "nope"
retry:
  max_attempts: 5
  backoff: ["1m", "10m"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Logger.JSON)
	assert.True(t, cfg.Webhook.StrictPayloads)
	assert.Equal(t, "dedicated", cfg.Services.AuthToken)
	assert.Equal(t, "nope", cfg.Messages.Fallback)
	assert.Equal(t, DefaultMessages.Help, cfg.Messages.Help)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, []time.Duration{time.Minute, 10 * time.Minute}, cfg.Retry.Backoff)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logger.Level = "loud" }},
		{"bad webhook url", func(c *Config) { c.Webhook.BaseURL = "not a url" }},
		{"bad service url", func(c *Config) { c.Services.URLs["channel"] = "::" }},
		{"missing auth service", func(c *Config) { delete(c.Services.URLs, "auth") }},
		{"zero batch", func(c *Config) { c.Poller.BatchSize = 0 }},
		{"short task timeout", func(c *Config) { c.Poller.TaskTimeout = time.Second }},
		{"no retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"empty retry backoff", func(c *Config) { c.Retry.Backoff = nil }},
		{"enabled task without schedule", func(c *Config) {
			c.Scheduler.Tasks["cleanup_logs"] = TaskConfig{Enabled: true}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
