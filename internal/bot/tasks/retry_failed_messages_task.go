package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/telegive/bot-service/internal/database"
)

// newRetryFailedMessagesTask resends failed replies whose backoff has
// elapsed. Replies to users who blocked the bot, and replies that reached
// the attempt cap, stay failed.
func newRetryFailedMessagesTask(deps TaskDeps) Executor {
	log := deps.Logger.With("task", TypeRetryFailedMessages)
	cfg := deps.Config.Retry

	return func(ctx context.Context, _ database.BackgroundTask) (string, error) {
		failed, err := deps.Store.ListRetryableMessages(ctx, cfg.MaxAttempts, cfg.BatchSize)
		if err != nil {
			return "", fmt.Errorf("failed to list failed messages: %w", err)
		}

		now := time.Now().UTC()
		bots := make(map[string]*database.BotRegistration)
		var delivered, stillFailed, waiting, skipped int
		for i := range failed {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			msg := &failed[i]
			if !retryDue(msg, cfg.Backoff, now) {
				waiting++
				continue
			}

			reg, seen := bots[msg.BotID]
			if !seen {
				reg, err = deps.Store.GetActiveBot(ctx, msg.BotID)
				if err != nil {
					return "", fmt.Errorf("failed to load bot %s: %w", msg.BotID, err)
				}
				bots[msg.BotID] = reg
			}
			if reg == nil {
				skipped++
				continue
			}

			res := Deliver(ctx, deps.Pool, reg, msg.ChatID, *msg.BotResponse)
			msg.RecordAttempt(now, DeliveryErrorCode(res))
			if res.OK {
				delivered++
			} else {
				stillFailed++
				log.WarnContext(ctx, "Resend failed", "message_id", msg.ID, "bot_id", msg.BotID,
					"attempt", msg.DeliveryAttempts, "error", res.Error)
			}
			if err := deps.Store.UpdateMessageLog(context.WithoutCancel(ctx), msg); err != nil {
				log.ErrorContext(ctx, "Failed to store resend outcome", "message_id", msg.ID, "error", err)
			}
		}

		log.InfoContext(ctx, "Failed message retry finished", "delivered", delivered,
			"failed", stillFailed, "waiting", waiting, "skipped", skipped)
		return fmt.Sprintf("retried %d messages: %d delivered, %d failed, %d waiting, %d skipped",
			delivered+stillFailed, delivered, stillFailed, waiting, skipped), nil
	}
}

// retryDue reports whether the backoff after the last attempt has elapsed.
// backoff[n-1] applies after the nth attempt; the last entry repeats.
func retryDue(msg *database.MessageLog, backoff []time.Duration, now time.Time) bool {
	if msg.LastAttemptAt == nil || msg.DeliveryAttempts == 0 || len(backoff) == 0 {
		return true
	}
	wait := backoff[min(msg.DeliveryAttempts-1, len(backoff)-1)]
	return !now.Before(msg.LastAttemptAt.Add(wait))
}
