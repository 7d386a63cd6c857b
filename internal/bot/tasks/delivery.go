package tasks

import (
	"context"

	"github.com/telegive/bot-service/internal/database"
	apperrors "github.com/telegive/bot-service/internal/errors"
	"github.com/telegive/bot-service/internal/telegram"
)

// Deliver sends text through the bot's pooled client. A client that cannot
// be built is reported as a failed send.
func Deliver(ctx context.Context, pool *telegram.Pool, reg *database.BotRegistration, chatID int64, text string) telegram.Result {
	client, err := pool.Acquire(reg.BotID, reg.BotToken)
	if err != nil {
		return telegram.Result{
			Description: err.Error(),
			Error:       apperrors.PublicMessage(err),
			Err:         err,
		}
	}
	return client.SendMessage(ctx, chatID, text)
}

// DeliveryErrorCode is the error_code stored on a message log for res.
// It is empty for a delivered reply.
func DeliveryErrorCode(res telegram.Result) string {
	switch {
	case res.OK:
		return ""
	case res.Blocked():
		return database.MessageErrorUserBlocked
	case res.Err != nil:
		return apperrors.Code(res.Err)
	default:
		return database.MessageErrorSendFailed
	}
}
