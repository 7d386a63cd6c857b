package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/telegive/bot-service/internal/database"
)

// newCleanupLogsTask deletes append-only log rows past their retention.
// Error logs are kept longer than the others.
func newCleanupLogsTask(deps TaskDeps) Executor {
	log := deps.Logger.With("task", TypeCleanupLogs)

	return func(ctx context.Context, _ database.BackgroundTask) (string, error) {
		log.InfoContext(ctx, "Starting log cleanup...")
		startTime := time.Now()
		now := startTime.UTC()

		logCutoff := now.Add(-deps.Config.Poller.LogRetention)
		plan := []struct {
			kind   database.LogKind
			cutoff time.Time
		}{
			{database.LogWebhook, logCutoff},
			{database.LogMessage, logCutoff},
			{database.LogServiceInteraction, logCutoff},
			{database.LogPushNotification, logCutoff},
			{database.LogError, now.Add(-deps.Config.Poller.ErrorLogRetention)},
		}

		parts := make([]string, 0, len(plan))
		var total int64
		for _, step := range plan {
			deleted, err := deps.Store.DeleteLogsBefore(ctx, step.kind, step.cutoff)
			if err != nil {
				log.ErrorContext(ctx, "Log cleanup failed", "kind", step.kind, "error", err, "duration", time.Since(startTime))
				return "", fmt.Errorf("cleanup of %s failed: %w", step.kind, err)
			}
			total += deleted
			parts = append(parts, fmt.Sprintf("%s=%d", step.kind, deleted))
		}

		log.InfoContext(ctx, "Log cleanup completed successfully", "deleted", total, "duration", time.Since(startTime))
		return fmt.Sprintf("deleted %d rows (%s)", total, strings.Join(parts, ", ")), nil
	}
}
