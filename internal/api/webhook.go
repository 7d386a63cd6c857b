package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-telegram/bot/models"

	"github.com/telegive/bot-service/internal/bot/handlers"
	"github.com/telegive/bot-service/internal/bot/tasks"
	"github.com/telegive/bot-service/internal/database"
	apperrors "github.com/telegive/bot-service/internal/errors"
	"github.com/telegive/bot-service/internal/logger"
	"github.com/telegive/bot-service/internal/metrics"
)

const maxStoredPayload = 64 << 10

// handleWebhook receives one Telegram update for a registered bot. Apart from
// unknown bots and strict-mode malformed payloads it always answers 200, so
// Telegram does not redeliver.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	botID := chi.URLParam(r, "bot_id")
	log := s.logger.With("bot_id", botID, "request_id", middleware.GetReqID(ctx))
	start := time.Now()

	reg, err := s.Store.GetActiveBot(ctx, botID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up bot", "error", err)
		s.recordError(ctx, err, r.URL.Path, botID, nil)
		writeError(w, apperrors.NewInternal("failed to look up bot", err))
		return
	}
	if reg == nil {
		metrics.WebhookUpdatesTotal.WithLabelValues("not_found").Inc()
		log.WarnContext(ctx, "Webhook for unknown or inactive bot")
		writeError(w, apperrors.NewNotFound("Bot not found"))
		return
	}

	body, readErr := readBody(w, r, s.Config.HTTP.MaxBodyBytes)
	var update models.Update
	if readErr != nil || len(body) == 0 || json.Unmarshal(body, &update) != nil {
		s.rejectMalformed(ctx, w, reg.BotID, body, readErr)
		return
	}

	wl := &database.WebhookLog{BotID: reg.BotID, RawPayload: logger.Truncate(string(body), maxStoredPayload)}
	if err := s.Store.CreateWebhookLog(ctx, wl); err != nil {
		log.WarnContext(ctx, "Failed to create webhook log", "error", err)
		wl = nil
	}

	sent, procErr := s.processUpdate(ctx, reg, &update)

	if wl != nil {
		wl.Status = database.WebhookStatusProcessed
		wl.ResponseSent = database.Ptr(sent)
		wl.ProcessingTime = database.Ptr(time.Since(start).Seconds())
		if procErr != nil {
			wl.Status = database.WebhookStatusError
			wl.ErrorMessage = database.Ptr(procErr.Error())
		}
		if err := s.Store.FinishWebhookLog(context.WithoutCancel(ctx), wl); err != nil {
			log.WarnContext(ctx, "Failed to finalize webhook log", "error", err)
		}
	}

	if procErr != nil {
		metrics.WebhookUpdatesTotal.WithLabelValues(database.WebhookStatusError).Inc()
		log.ErrorContext(ctx, "Webhook processing failed", "update_id", update.ID, "error", procErr)
		writeJSON(w, http.StatusOK, map[string]string{"status": "error"})
		return
	}
	metrics.WebhookUpdatesTotal.WithLabelValues(database.WebhookStatusProcessed).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) rejectMalformed(ctx context.Context, w http.ResponseWriter, botID string, body []byte, readErr error) {
	reason := "malformed payload"
	if readErr != nil {
		reason = "unreadable payload: " + readErr.Error()
	}
	s.logger.WarnContext(ctx, "Ignoring malformed webhook payload", "bot_id", botID, "reason", reason, "size", len(body))
	metrics.WebhookUpdatesTotal.WithLabelValues("ignored").Inc()

	wl := &database.WebhookLog{
		BotID:        botID,
		RawPayload:   logger.Truncate(string(body), maxStoredPayload),
		Status:       database.WebhookStatusError,
		ErrorMessage: database.Ptr(reason),
	}
	if err := s.Store.CreateWebhookLog(ctx, wl); err != nil {
		s.logger.WarnContext(ctx, "Failed to create webhook log", "bot_id", botID, "error", err)
	}

	if s.Config.Webhook.StrictPayloads {
		writeError(w, apperrors.NewValidationError("malformed update payload", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "ignored": "malformed_payload"})
}

// processUpdate dispatches a text message and delivers the reply. Delivery
// failures are recorded on the message log only; the returned error is set
// for internal failures, including panics.
func (s *Server) processUpdate(ctx context.Context, reg *database.BotRegistration, update *models.Update) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = apperrors.NewInternal(fmt.Sprintf("webhook processing panicked: %v", r), nil)
			s.recordError(ctx, err, "/webhook/"+reg.BotID, reg.BotID, stack)
		}
	}()

	msg := update.Message
	if msg == nil || msg.Text == "" {
		return false, nil
	}

	cmd := handlers.Command{BotID: reg.BotID, ChatID: msg.Chat.ID, Text: msg.Text}
	if msg.From != nil {
		cmd.UserID = msg.From.ID
		cmd.Username = msg.From.Username
	}

	reply := s.Dispatcher.Dispatch(ctx, cmd)

	ml := &database.MessageLog{
		BotID:       reg.BotID,
		ChatID:      cmd.ChatID,
		UserID:      cmd.UserID,
		Username:    cmd.Username,
		MessageText: cmd.Text,
	}
	if err := s.Store.CreateMessageLog(ctx, ml); err != nil {
		s.logger.WarnContext(ctx, "Failed to create message log", "bot_id", reg.BotID, "error", err)
		ml = nil
	}

	res := tasks.Deliver(ctx, s.Pool, reg, cmd.ChatID, reply)
	if !res.OK {
		s.logger.WarnContext(ctx, "Failed to deliver reply", "bot_id", reg.BotID, "chat_id", cmd.ChatID, "error", res.Error)
	}

	if ml != nil {
		ml.BotResponse = database.Ptr(reply)
		ml.RecordAttempt(time.Now(), tasks.DeliveryErrorCode(res))
		if err := s.Store.UpdateMessageLog(context.WithoutCancel(ctx), ml); err != nil {
			s.logger.WarnContext(ctx, "Failed to update message log", "bot_id", reg.BotID, "error", err)
		}
	}

	if err := s.Store.TouchBot(context.WithoutCancel(ctx), reg.BotID, time.Now()); err != nil {
		s.logger.WarnContext(ctx, "Failed to update bot activity", "bot_id", reg.BotID, "error", err)
	}
	return res.OK, nil
}
