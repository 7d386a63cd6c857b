package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/telegive/bot-service/internal/services"
)

// NewParticipantsHandler returns a handler for the /participants command.
func NewParticipantsHandler(deps HandlerDeps) HandlerFunc {
	return participantsHandler{deps}.Handle
}

type participantsHandler struct {
	deps HandlerDeps
}

func (h participantsHandler) Handle(ctx context.Context, cmd Command) string {
	msgs := h.deps.Config.Messages

	res, err := h.deps.Services.Call(ctx, services.Request{
		Service: "participant",
		Path:    fmt.Sprintf("/api/participants/user/%d", cmd.UserID),
	})
	if err != nil || !res.Success {
		h.deps.Logger.WarnContext(ctx, "Failed to fetch participants", "user_id", cmd.UserID, "error", callError(res, err))
		return msgs.ParticipantsUnavailable
	}

	return fill(msgs.ParticipantsCount, countPlaceholder, strconv.Itoa(participantCount(res.Data)))
}

// participantCount reads "count", then "total", then the length of
// "participants". A bare JSON array counts its elements.
func participantCount(data any) int {
	if list, ok := data.([]any); ok {
		return len(list)
	}
	for _, key := range []string{"count", "total"} {
		if n, ok := asInt(field(data, key)); ok {
			return n
		}
	}
	if list, ok := field(data, "participants").([]any); ok {
		return len(list)
	}
	return 0
}
