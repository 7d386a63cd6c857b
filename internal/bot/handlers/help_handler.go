package handlers

import (
	"context"
)

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) HandlerFunc {
	return helpHandler{deps}.Handle
}

// helpHandler returns the static command list.
type helpHandler struct {
	deps HandlerDeps
}

func (h helpHandler) Handle(_ context.Context, cmd Command) string {
	return withBotName(h.deps.Config.Messages.Help, cmd.BotID)
}
