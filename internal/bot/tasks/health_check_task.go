package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telegive/bot-service/internal/database"
	apperrors "github.com/telegive/bot-service/internal/errors"
	"github.com/telegive/bot-service/internal/metrics"
)

// newHealthCheckBotsTask re-validates every active bot token with getMe.
// A rejected token deactivates the bot; any other failure only bumps its
// error count.
func newHealthCheckBotsTask(deps TaskDeps) Executor {
	log := deps.Logger.With("task", TypeHealthCheckBots)

	return func(ctx context.Context, _ database.BackgroundTask) (string, error) {
		bots, err := deps.Store.ListActiveBots(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list active bots: %w", err)
		}

		var healthy, deactivated, failed int
		for _, b := range bots {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}

			client, err := deps.Pool.Acquire(b.BotID, b.BotToken)
			if err != nil {
				log.WarnContext(ctx, "Failed to build bot client", "bot_id", b.BotID, "error", err)
				failed++
				if err := deps.Store.RecordBotCheck(ctx, b.BotID, false, time.Now()); err != nil {
					log.ErrorContext(ctx, "Failed to record bot check", "bot_id", b.BotID, "error", err)
				}
				continue
			}

			res := client.GetBotInfo(ctx)
			switch {
			case res.OK:
				healthy++
				err = deps.Store.RecordBotCheck(ctx, b.BotID, true, time.Now())
			case errors.Is(res.Err, apperrors.ErrInvalidToken):
				deactivated++
				log.WarnContext(ctx, "Bot token rejected, deactivating bot", "bot_id", b.BotID)
				deps.Pool.Remove(b.BotID)
				_, err = deps.Store.DeactivateBot(ctx, b.BotID)
			default:
				failed++
				log.WarnContext(ctx, "Bot health check failed", "bot_id", b.BotID, "error", res.Error)
				err = deps.Store.RecordBotCheck(ctx, b.BotID, false, time.Now())
			}
			if err != nil {
				log.ErrorContext(ctx, "Failed to store bot health result", "bot_id", b.BotID, "error", err)
			}
		}

		metrics.ActiveBots.Set(float64(len(bots) - deactivated))
		log.InfoContext(ctx, "Bot health check finished",
			"checked", len(bots), "healthy", healthy, "deactivated", deactivated, "failed", failed)
		return fmt.Sprintf("checked %d bots: %d healthy, %d deactivated, %d failed",
			len(bots), healthy, deactivated, failed), nil
	}
}
