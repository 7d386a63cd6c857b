package handlers

import (
	"context"
	"log/slog"

	"github.com/telegive/bot-service/internal/config"
	"github.com/telegive/bot-service/internal/services"
)

// BotCounter is the store query the /status command needs.
type BotCounter interface {
	CountActiveBots(ctx context.Context) (int, error)
}

// HandlerDeps provides dependencies for chat command handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Store    BotCounter
	Services services.Caller
}
