package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"

	DefaultHTTPPort            = 8080
	DefaultHTTPReadTimeout     = 15 * time.Second
	DefaultHTTPWriteTimeout    = 30 * time.Second
	DefaultHTTPShutdownTimeout = 10 * time.Second
	DefaultHTTPMaxBodyBytes    = 1 << 20

	DefaultDatabaseURL = "telegive_bot.db"
	DefaultWebhookURL  = "http://localhost:8080"

	DefaultServiceTimeout       = 3 * time.Second
	DefaultServiceHealthTimeout = 2 * time.Second
	DefaultUserAgent            = "Telegive-Bot-Service/1.0"

	DefaultTelegramAPIURL  = "https://api.telegram.org"
	DefaultTelegramTimeout = 10 * time.Second

	DefaultPollerInterval    = 5 * time.Second
	DefaultPollerBatchSize   = 10
	DefaultTaskRetention     = 7 * 24 * time.Hour
	DefaultTaskTimeout       = 30 * time.Minute
	DefaultLogRetention      = 30 * 24 * time.Hour
	DefaultErrorLogRetention = 90 * 24 * time.Hour
	DefaultStatusRefresh     = time.Minute
	DefaultStatusStaleAfter  = 5 * time.Minute

	DefaultAuditQueueSize = 1024

	DefaultRetryMaxAttempts = 3
	DefaultRetryBatchSize   = 50

	DefaultCleanupSchedule     = "0 0 3 * * *"
	DefaultHealthCheckSchedule = "0 */30 * * * *"
	DefaultRetrySchedule       = "0 */5 * * * *"
)

// DefaultServiceURLs are the local development addresses of the sibling services.
var DefaultServiceURLs = map[string]string{
	"auth":        "http://localhost:8001",
	"channel":     "http://localhost:8002",
	"participant": "http://localhost:8004",
}

// DefaultRetryBackoff waits 5 minutes, 15 minutes, then an hour between
// delivery attempts.
var DefaultRetryBackoff = []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour}

// DefaultSeedTasks are enqueued once at startup.
var DefaultSeedTasks = []string{"cleanup_logs", "health_check_bots"}

// DefaultMessages are the stock user-facing replies.
var DefaultMessages = MessagesConfig{
	Welcome: "🚀 Welcome to @botname!\n\n" +
		"I'm your Telegive assistant. I can show your channels, participants and the status of the platform.\n\n" +
		"Type /help to see what I can do.",
	Help: "📋 Available commands:\n\n" +
		"/start - Start the bot\n" +
		"/help - Show this help message\n" +
		"/status - Check bot status\n" +
		"/health - Check service health\n" +
		"/channels - List your channels\n" +
		"/participants - Show participant count",
	StatusHeader:            "🤖 Bot Status:\n",
	StatusUnavailable:       "❌ Unable to fetch bot status at the moment.",
	HealthHeader:            "🏥 Service Health:\n",
	ChannelsHeader:          "📺 Your channels:\n",
	ChannelsEmpty:           "📺 You don't have any channels yet.",
	ChannelsUnavailable:     "❌ Unable to fetch channels at the moment.",
	ParticipantsCount:       "👥 Total participants: {count}",
	ParticipantsUnavailable: "❌ Unable to fetch participants at the moment.",
	GiveawayJoin:            "🎯 Processing participation for giveaway {giveaway_id}...",
	GiveawayInvalid:         "❌ Invalid giveaway link.",
	Fallback:                "🤔 Sorry, I didn't understand that. Type /help to see the available commands.",
}
