// Package tasks implements the background task executors drained by the
// poller, and the cron jobs that enqueue them.
package tasks

import (
	"log/slog"

	"github.com/telegive/bot-service/internal/config"
	"github.com/telegive/bot-service/internal/database"
	"github.com/telegive/bot-service/internal/telegram"
)

// TaskDeps contains all dependencies required by task executors.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
	// Pool caches one Telegram client per bot. Health checks build missing
	// clients through it and evict bots whose token was revoked.
	Pool *telegram.Pool
}
