package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/telegive/bot-service/internal/database"
	apperrors "github.com/telegive/bot-service/internal/errors"
	"github.com/telegive/bot-service/internal/metrics"
	"github.com/telegive/bot-service/internal/services"
	"github.com/telegive/bot-service/internal/telegram"
)

type registerBotRequest struct {
	BotToken string `json:"bot_token" validate:"required"`
	UserID   int64  `json:"user_id"   validate:"gt=0"`
}

func (s *Server) webhookURL(botID string) string {
	return strings.TrimRight(s.Config.Webhook.BaseURL, "/") + "/webhook/" + botID
}

func (s *Server) handleRegisterBot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerBotRequest
	if err := decodeJSON(w, r, s.Config.HTTP.MaxBodyBytes, &req); err != nil {
		writeError(w, err)
		return
	}

	client, err := s.NewClient(req.BotToken)
	if err != nil {
		writeError(w, err)
		return
	}
	info := client.GetBotInfo(ctx)
	if !info.OK {
		s.logger.WarnContext(ctx, "Bot token validation failed", "user_id", req.UserID, "error", info.Error)
		writeError(w, tokenError(info))
		return
	}
	if info.Bot == nil || info.Bot.Username == "" {
		writeError(w, apperrors.NewInvalidToken("Bot has no username", nil))
		return
	}
	botID := info.Bot.Username
	log := s.logger.With("bot_id", botID, "user_id", req.UserID)

	s.checkOwner(r, req.UserID)

	existing, err := s.Store.GetBot(ctx, botID)
	if err != nil {
		s.failInternal(w, r, err, botID)
		return
	}
	if existing != nil && existing.IsActive {
		writeError(w, apperrors.NewConflict("Bot already registered"))
		return
	}

	reg := &database.BotRegistration{
		BotID:       botID,
		TelegramID:  info.Bot.ID,
		BotToken:    req.BotToken,
		OwnerUserID: req.UserID,
		WebhookURL:  s.webhookURL(botID),
	}
	if existing != nil {
		err = s.Store.ReactivateBot(ctx, reg)
	} else {
		err = s.Store.CreateBot(ctx, reg)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			writeError(w, err)
			return
		}
		s.failInternal(w, r, err, botID)
		return
	}

	hook := client.SetWebhook(ctx, reg.WebhookURL)
	if hook.OK {
		if err := s.Store.SetWebhookStatus(ctx, botID, true); err != nil {
			log.WarnContext(ctx, "Failed to store webhook status", "error", err)
		}
	} else {
		log.WarnContext(ctx, "Failed to set webhook", "webhook_url", reg.WebhookURL, "error", hook.Error)
	}

	s.Pool.Put(botID, req.BotToken, botID, client)
	s.refreshActiveBots(ctx)
	log.InfoContext(ctx, "Bot registered", "reactivated", existing != nil, "webhook_set", hook.OK)

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":      "success",
		"bot_id":      botID,
		"webhook_url": reg.WebhookURL,
		"webhook_set": hook.OK,
		"timestamp":   time.Now().UTC(),
	})
}

// checkOwner asks the auth service about the owner. The outcome is only
// logged; registration does not depend on it.
func (s *Server) checkOwner(r *http.Request, userID int64) {
	if s.Services == nil {
		return
	}
	res, err := s.Services.Call(r.Context(), services.Request{
		Service: services.AuthService,
		Path:    fmt.Sprintf("/api/users/%d", userID),
	})
	if err != nil {
		s.logger.DebugContext(r.Context(), "Owner check skipped", "user_id", userID, "error", err)
		return
	}
	if !res.Success {
		s.logger.WarnContext(r.Context(), "Owner could not be verified", "user_id", userID, "error", res.Error)
	}
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.Store.ListActiveBots(r.Context())
	if err != nil {
		s.failInternal(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bots":      bots,
		"count":     len(bots),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	botID := chi.URLParam(r, "bot_id")

	ok, err := s.Store.DeactivateBot(ctx, botID)
	if err != nil {
		s.failInternal(w, r, err, botID)
		return
	}
	if !ok {
		writeError(w, apperrors.NewNotFound("Bot not found"))
		return
	}
	s.Pool.Remove(botID)
	s.refreshActiveBots(ctx)
	s.logger.InfoContext(ctx, "Bot unregistered", "bot_id", botID)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"bot_id":    botID,
		"timestamp": time.Now().UTC(),
	})
}

// failInternal logs err, records it as an ErrorLog and answers 500.
func (s *Server) failInternal(w http.ResponseWriter, r *http.Request, err error, botID string) {
	s.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "bot_id", botID, "error", err)
	s.recordError(r.Context(), err, r.URL.Path, botID, nil)
	writeError(w, apperrors.NewInternal("Internal server error", err))
}

func (s *Server) refreshActiveBots(ctx context.Context) {
	if n, err := s.Store.CountActiveBots(ctx); err == nil {
		metrics.ActiveBots.Set(float64(n))
	}
}

// tokenError keeps typed Telegram failures and maps the rest to InvalidToken.
func tokenError(res telegram.Result) error {
	switch apperrors.Code(res.Err) {
	case apperrors.CodeTimeout, apperrors.CodeConnectionError:
		return res.Err
	}
	return apperrors.NewInvalidToken("Invalid bot token", res.Err)
}
