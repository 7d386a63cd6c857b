package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every nested key when read from the environment,
// e.g. TELEGIVE_POLLER_INTERVAL.
const EnvPrefix = "TELEGIVE"

// platformEnv binds the variable names used by the hosting platform and the
// sibling services on top of the prefixed names.
var platformEnv = map[string][]string{
	"database.url":              {"DATABASE_URL"},
	"webhook.base_url":          {"WEBHOOK_URL"},
	"http.port":                 {"PORT"},
	"services.urls.auth":        {"AUTH_SERVICE_URL"},
	"services.urls.channel":     {"CHANNEL_SERVICE_URL"},
	"services.urls.participant": {"PARTICIPANT_SERVICE_URL"},
	"services.secret":           {"SERVICE_TO_SERVICE_SECRET"},
	"services.auth_token":       {"AUTH_SERVICE_TOKEN"},
}

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. the YAML file at path (optional, missing file is fine)
// 3. TELEGIVE_* and platform environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range platformEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns a validated configuration built only from defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("default config does not unmarshal: %v", err))
	}
	cfg.normalize()
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("http.port", DefaultHTTPPort)
	v.SetDefault("http.read_timeout", DefaultHTTPReadTimeout)
	v.SetDefault("http.write_timeout", DefaultHTTPWriteTimeout)
	v.SetDefault("http.shutdown_timeout", DefaultHTTPShutdownTimeout)
	v.SetDefault("http.max_body_bytes", DefaultHTTPMaxBodyBytes)

	v.SetDefault("database.url", DefaultDatabaseURL)

	v.SetDefault("webhook.base_url", DefaultWebhookURL)
	v.SetDefault("webhook.strict_payloads", false)

	for name, url := range DefaultServiceURLs {
		v.SetDefault("services.urls."+name, url)
	}
	v.SetDefault("services.secret", "")
	v.SetDefault("services.auth_token", "")
	v.SetDefault("services.timeout", DefaultServiceTimeout)
	v.SetDefault("services.health_timeout", DefaultServiceHealthTimeout)
	v.SetDefault("services.user_agent", DefaultUserAgent)

	v.SetDefault("telegram.api_url", DefaultTelegramAPIURL)
	v.SetDefault("telegram.timeout", DefaultTelegramTimeout)

	v.SetDefault("poller.interval", DefaultPollerInterval)
	v.SetDefault("poller.batch_size", DefaultPollerBatchSize)
	v.SetDefault("poller.task_retention", DefaultTaskRetention)
	v.SetDefault("poller.task_timeout", DefaultTaskTimeout)
	v.SetDefault("poller.log_retention", DefaultLogRetention)
	v.SetDefault("poller.error_log_retention", DefaultErrorLogRetention)
	v.SetDefault("poller.status_refresh", DefaultStatusRefresh)
	v.SetDefault("poller.status_stale_after", DefaultStatusStaleAfter)
	v.SetDefault("poller.seed_on_start", DefaultSeedTasks)

	v.SetDefault("scheduler.tasks.cleanup_logs.enabled", true)
	v.SetDefault("scheduler.tasks.cleanup_logs.schedule", DefaultCleanupSchedule)
	v.SetDefault("scheduler.tasks.health_check_bots.enabled", true)
	v.SetDefault("scheduler.tasks.health_check_bots.schedule", DefaultHealthCheckSchedule)
	v.SetDefault("scheduler.tasks.retry_failed_messages.enabled", true)
	v.SetDefault("scheduler.tasks.retry_failed_messages.schedule", DefaultRetrySchedule)

	v.SetDefault("audit.queue_size", DefaultAuditQueueSize)

	v.SetDefault("retry.max_attempts", DefaultRetryMaxAttempts)
	v.SetDefault("retry.backoff", DefaultRetryBackoff)
	v.SetDefault("retry.batch_size", DefaultRetryBatchSize)

	v.SetDefault("messages.welcome", DefaultMessages.Welcome)
	v.SetDefault("messages.help", DefaultMessages.Help)
	v.SetDefault("messages.status_header", DefaultMessages.StatusHeader)
	v.SetDefault("messages.status_unavailable", DefaultMessages.StatusUnavailable)
	v.SetDefault("messages.health_header", DefaultMessages.HealthHeader)
	v.SetDefault("messages.channels_header", DefaultMessages.ChannelsHeader)
	v.SetDefault("messages.channels_empty", DefaultMessages.ChannelsEmpty)
	v.SetDefault("messages.channels_unavailable", DefaultMessages.ChannelsUnavailable)
	v.SetDefault("messages.participants_count", DefaultMessages.ParticipantsCount)
	v.SetDefault("messages.participants_unavailable", DefaultMessages.ParticipantsUnavailable)
	v.SetDefault("messages.giveaway_join", DefaultMessages.GiveawayJoin)
	v.SetDefault("messages.giveaway_invalid", DefaultMessages.GiveawayInvalid)
	v.SetDefault("messages.fallback", DefaultMessages.Fallback)
}
