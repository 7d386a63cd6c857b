package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NewStatusHandler returns a handler for the /status command.
func NewStatusHandler(deps HandlerDeps) HandlerFunc {
	return statusHandler{deps: deps, now: time.Now}.Handle
}

type statusHandler struct {
	deps HandlerDeps
	now  func() time.Time
}

func (h statusHandler) Handle(ctx context.Context, cmd Command) string {
	count, err := h.deps.Store.CountActiveBots(ctx)
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to count active bots", "bot_id", cmd.BotID, "error", err)
		return h.deps.Config.Messages.StatusUnavailable
	}

	var sb strings.Builder
	sb.WriteString(h.deps.Config.Messages.StatusHeader)
	fmt.Fprintf(&sb, "🤖 Bot: @%s\n", cmd.BotID)
	sb.WriteString("✅ Status: Active\n")
	fmt.Fprintf(&sb, "📈 Total Active Bots: %d\n", count)
	fmt.Fprintf(&sb, "🕐 Last Update: %s UTC", h.now().UTC().Format(time.DateTime))
	return sb.String()
}
