// Package config loads, defaults and validates the service configuration.
// Values come from defaults, an optional YAML file and environment variables.
package config

import "time"

// Config is built once at startup and passed to every component.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Services  ServicesConfig  `mapstructure:"services"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"             validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"   validate:"min=1024"`
}

// DatabaseConfig selects the store. postgres:// and postgresql:// URLs use
// PostgreSQL; anything else is treated as a SQLite file path.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

type WebhookConfig struct {
	// BaseURL is the public origin Telegram posts updates to.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// StrictPayloads answers malformed update bodies with 400 instead of 200.
	StrictPayloads bool `mapstructure:"strict_payloads"`
}

// ServicesConfig describes the sibling Telegive services.
type ServicesConfig struct {
	URLs          map[string]string `mapstructure:"urls"           validate:"required,min=1,dive,keys,required,endkeys,required,url"`
	Secret        string            `mapstructure:"secret"`
	AuthToken     string            `mapstructure:"auth_token"`
	Timeout       time.Duration     `mapstructure:"timeout"        validate:"min=100ms,max=1m"`
	HealthTimeout time.Duration     `mapstructure:"health_timeout" validate:"min=100ms,max=1m"`
	UserAgent     string            `mapstructure:"user_agent"     validate:"required"`
}

type TelegramConfig struct {
	APIURL  string        `mapstructure:"api_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"min=1s,max=2m"`
}

type PollerConfig struct {
	Interval          time.Duration `mapstructure:"interval"            validate:"min=100ms"`
	BatchSize         int           `mapstructure:"batch_size"          validate:"min=1,max=1000"`
	TaskRetention     time.Duration `mapstructure:"task_retention"      validate:"min=1h"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout"        validate:"min=1m"`
	LogRetention      time.Duration `mapstructure:"log_retention"       validate:"min=1h"`
	ErrorLogRetention time.Duration `mapstructure:"error_log_retention" validate:"min=1h"`
	StatusRefresh     time.Duration `mapstructure:"status_refresh"      validate:"min=1s"`
	StatusStaleAfter  time.Duration `mapstructure:"status_stale_after"  validate:"min=1s"`
	SeedOnStart       []string      `mapstructure:"seed_on_start"`
}

// SchedulerConfig holds cron schedules that enqueue background tasks.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// RetryConfig bounds resending of failed replies. Backoff[i] is the wait
// after the (i+1)th attempt; the last entry repeats.
type RetryConfig struct {
	MaxAttempts int             `mapstructure:"max_attempts" validate:"min=1,max=10"`
	Backoff     []time.Duration `mapstructure:"backoff"      validate:"min=1,dive,min=1s"`
	BatchSize   int             `mapstructure:"batch_size"   validate:"min=1,max=500"`
}

type AuditConfig struct {
	QueueSize int `mapstructure:"queue_size" validate:"min=1"`
}

// MessagesConfig holds every user-facing reply. "@botname" is replaced with
// the handling bot's username, "{count}" and "{giveaway_id}" with the
// participant count and the deep-link giveaway id.
type MessagesConfig struct {
	Welcome                 string `mapstructure:"welcome"                  validate:"required"`
	Help                    string `mapstructure:"help"                     validate:"required"`
	StatusHeader            string `mapstructure:"status_header"            validate:"required"`
	StatusUnavailable       string `mapstructure:"status_unavailable"       validate:"required"`
	HealthHeader            string `mapstructure:"health_header"            validate:"required"`
	ChannelsHeader          string `mapstructure:"channels_header"          validate:"required"`
	ChannelsEmpty           string `mapstructure:"channels_empty"           validate:"required"`
	ChannelsUnavailable     string `mapstructure:"channels_unavailable"     validate:"required"`
	ParticipantsCount       string `mapstructure:"participants_count"       validate:"required"`
	ParticipantsUnavailable string `mapstructure:"participants_unavailable" validate:"required"`
	GiveawayJoin            string `mapstructure:"giveaway_join"            validate:"required"`
	GiveawayInvalid         string `mapstructure:"giveaway_invalid"         validate:"required"`
	Fallback                string `mapstructure:"fallback"                 validate:"required"`
}

// IsPostgres reports whether the database URL targets PostgreSQL.
func (c DatabaseConfig) IsPostgres() bool {
	return hasPostgresScheme(c.URL)
}
