// Package handlers maps chat commands to reply texts, along with their
// registration order and middleware.
package handlers

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/telegive/bot-service/internal/metrics"
)

// Middleware wraps a HandlerFunc.
type Middleware func(HandlerFunc) HandlerFunc

// applyMiddleware wraps handler so the first middleware in mw is the outermost.
func applyMiddleware(handler HandlerFunc, mw []Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// Instrument logs each command and counts it.
func Instrument(deps HandlerDeps, name string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd Command) string {
			log := deps.Logger.With("handler", name)
			log.InfoContext(ctx, "Handling command", "bot_id", cmd.BotID, "chat_id", cmd.ChatID, "user_id", cmd.UserID)

			start := time.Now()
			reply := next(ctx, cmd)
			metrics.CommandsTotal.WithLabelValues(name).Inc()

			log.DebugContext(ctx, "Command handled", "bot_id", cmd.BotID, "duration", time.Since(start), "reply_length", len(reply))
			return reply
		}
	}
}

// Recover turns a handler panic into the fallback reply.
func Recover(deps HandlerDeps, name string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd Command) (reply string) {
			defer func() {
				if r := recover(); r != nil {
					deps.Logger.ErrorContext(ctx, "Command handler panicked",
						"handler", name,
						"bot_id", cmd.BotID,
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
					reply = deps.Config.Messages.Fallback
				}
			}()
			return next(ctx, cmd)
		}
	}
}
