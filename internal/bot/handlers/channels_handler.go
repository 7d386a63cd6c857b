package handlers

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/telegive/bot-service/internal/services"
)

const maxListedChannels = 5

// NewChannelsHandler returns a handler for the /channels command.
func NewChannelsHandler(deps HandlerDeps) HandlerFunc {
	return channelsHandler{deps}.Handle
}

// channelsHandler lists the user's channels from the channel service.
type channelsHandler struct {
	deps HandlerDeps
}

func (h channelsHandler) Handle(ctx context.Context, cmd Command) string {
	msgs := h.deps.Config.Messages

	res, err := h.deps.Services.Call(ctx, services.Request{
		Service: "channel",
		Path:    fmt.Sprintf("/api/channels/user/%d", cmd.UserID),
	})
	if err != nil || !res.Success {
		h.deps.Logger.WarnContext(ctx, "Failed to fetch channels", "user_id", cmd.UserID, "error", callError(res, err))
		return msgs.ChannelsUnavailable
	}

	channels, _ := field(res.Data, "channels").([]any)
	if len(channels) == 0 {
		return msgs.ChannelsEmpty
	}

	var sb strings.Builder
	sb.WriteString(msgs.ChannelsHeader)
	for _, ch := range channels[:min(len(channels), maxListedChannels)] {
		name, _ := field(ch, "name").(string)
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(&sb, "• %s\n", html.EscapeString(name))
	}
	if extra := len(channels) - maxListedChannels; extra > 0 {
		fmt.Fprintf(&sb, "\n...and %d more", extra)
	}
	return strings.TrimRight(sb.String(), "\n")
}
