package handlers

import (
	"context"
	"strconv"
	"strings"
)

const giveawayPrefix = "giveaway_"

// Placeholders substituted into configurable replies.
const (
	botNamePlaceholder  = "@botname"
	giveawayPlaceholder = "{giveaway_id}"
	countPlaceholder    = "{count}"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler greets the user, or acknowledges a giveaway deep link
// ("/start giveaway_<id>").
type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, cmd Command) string {
	msgs := h.deps.Config.Messages

	for _, arg := range strings.Fields(strings.TrimPrefix(cmd.Text, "/start")) {
		if !strings.HasPrefix(arg, giveawayPrefix) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(arg, giveawayPrefix), 10, 64)
		if err != nil || id <= 0 {
			h.deps.Logger.WarnContext(ctx, "Invalid giveaway deep link", "bot_id", cmd.BotID, "arg", arg)
			return msgs.GiveawayInvalid
		}
		h.deps.Logger.InfoContext(ctx, "Giveaway deep link received", "bot_id", cmd.BotID, "giveaway_id", id, "user_id", cmd.UserID)
		return fill(msgs.GiveawayJoin, giveawayPlaceholder, strconv.FormatInt(id, 10))
	}

	return withBotName(msgs.Welcome, cmd.BotID)
}

// withBotName substitutes the "@botname" placeholder.
func withBotName(text, botID string) string {
	if botID == "" {
		return text
	}
	return fill(text, botNamePlaceholder, "@"+botID)
}

// fill replaces placeholder in operator-supplied text. Text without the
// placeholder is returned unchanged.
func fill(text, placeholder, value string) string {
	return strings.ReplaceAll(text, placeholder, value)
}
