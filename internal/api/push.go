package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/telegive/bot-service/internal/database"
	"github.com/telegive/bot-service/internal/logger"
)

// Push notification types.
const (
	PushTokenUpdate  = "bot_token_update"
	PushTokenRemoved = "bot_token_removed"
)

// HeaderServiceName names the calling service on push requests.
const HeaderServiceName = "X-Service-Name"

type tokenUpdateRequest struct {
	BotID       pushedBotID `json:"bot_id"`
	BotToken    string      `json:"bot_token"`
	BotUsername string      `json:"bot_username"`
	Status      string      `json:"status"`
}

// pushedBotID is the bot_id the auth service sends: usually the numeric
// Telegram id, sometimes as a string or a username.
type pushedBotID string

func (id *pushedBotID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*id = pushedBotID(strings.TrimSpace(text))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("bot_id must be a number or a string")
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("bot_id must be an integer: %w", err)
	}
	*id = pushedBotID(n.String())
	return nil
}

// telegramID returns the numeric form of the id, if it has one.
func (id pushedBotID) telegramID() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil && n > 0
}

type pushFailure struct {
	code    int
	title   string
	message string
}

// pushRecorder writes PushNotification rows for one request.
type pushRecorder struct {
	s       *Server
	base    database.PushNotification
	started time.Time
}

func (p *pushRecorder) record(ctx context.Context, status, errMsg string) {
	if p.s.Audit == nil {
		return
	}
	rec := p.base
	rec.Status = status
	rec.CreatedAt = time.Now().UTC()
	if status != database.PushStatusReceived {
		rec.ProcessingTime = database.Ptr(time.Since(p.started).Seconds())
		rec.RequestData = nil
	}
	if errMsg != "" {
		rec.ErrorMessage = database.Ptr(errMsg)
	}
	p.s.Audit.RecordPushNotification(ctx, rec)
}

// handleTokenUpdate applies a token change pushed by the auth service.
// Registrations stay keyed by the getMe username; the pushed bot_id only
// locates the registration and is stored on the push record. A missing
// token or status "removed" tears the bot down.
func (s *Server) handleTokenUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	source := r.Header.Get(HeaderServiceName)
	if source == "" {
		source = "unknown"
	}

	var req tokenUpdateRequest
	raw, err := readBody(w, r, s.Config.HTTP.MaxBodyBytes)
	if err != nil || len(raw) == 0 || json.Unmarshal(raw, &req) != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid request",
			"message": "No JSON data provided",
		})
		return
	}

	rec := &pushRecorder{s: s, started: start, base: database.PushNotification{
		SourceService:    source,
		NotificationType: PushTokenUpdate,
		RequestData:      database.Ptr(logger.Truncate(redactToken(raw), maxStoredPayload)),
	}}

	if req.BotID == "" {
		rec.record(ctx, database.PushStatusFailed, "bot_id is required")
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid request",
			"message": "bot_id is required",
		})
		return
	}

	removal := req.Status == "removed" || req.BotToken == ""
	if removal {
		rec.base.NotificationType = PushTokenRemoved
	}
	rec.base.BotID = database.Ptr(string(req.BotID))
	if req.BotUsername != "" {
		rec.base.BotUsername = database.Ptr(req.BotUsername)
	}
	rec.record(ctx, database.PushStatusReceived, "")
	rec.base.RequestData = nil

	log := s.logger.With("pushed_bot_id", string(req.BotID), "source_service", source)
	log.InfoContext(ctx, "Push notification received", "notification_type", rec.base.NotificationType)

	existing, err := s.pushedRegistration(ctx, req)
	if err != nil {
		s.recordError(ctx, err, "/bot/token/update", string(req.BotID), nil)
		rec.record(ctx, database.PushStatusFailed, "Failed to load bot registration")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Bot lookup failed",
			"message": "Failed to load bot registration",
		})
		return
	}
	var previous string
	if existing != nil && existing.IsActive {
		previous = existing.BotToken
	}

	var fail *pushFailure
	if removal {
		fail = s.removeBotToken(ctx, existing)
	} else {
		fail = s.applyBotToken(ctx, req, existing)
	}
	if fail != nil {
		log.WarnContext(ctx, "Push notification failed", "error", fail.message)
		rec.record(ctx, database.PushStatusFailed, fail.message)
		writeJSON(w, fail.code, map[string]any{
			"success": false,
			"error":   fail.title,
			"message": fail.message,
		})
		return
	}
	rec.record(ctx, database.PushStatusProcessed, "")

	body := map[string]any{
		"success":         true,
		"bot_initialized": !removal,
		"previous_token":  maskedOrNil(previous),
		"new_token":       nil,
		"processing_time": time.Since(start).Seconds(),
	}
	if removal {
		body["message"] = "Bot token removed and bot stopped"
	} else {
		body["message"] = "Token updated successfully"
		body["new_token"] = maskedOrNil(req.BotToken)
	}
	log.InfoContext(ctx, "Push notification processed", "bot_initialized", !removal)
	writeJSON(w, http.StatusOK, body)
}

// pushedRegistration finds the registration a push refers to: by numeric
// Telegram id first, then by username from bot_username or bot_id.
func (s *Server) pushedRegistration(ctx context.Context, req tokenUpdateRequest) (*database.BotRegistration, error) {
	if id, ok := req.BotID.telegramID(); ok {
		reg, err := s.Store.GetBotByTelegramID(ctx, id)
		if err != nil || reg != nil {
			return reg, err
		}
	}
	for _, name := range []string{req.BotUsername, string(req.BotID)} {
		name = strings.TrimPrefix(name, "@")
		if name == "" {
			continue
		}
		reg, err := s.Store.GetBot(ctx, name)
		if err != nil || reg != nil {
			return reg, err
		}
	}
	return nil, nil
}

// removeBotToken stops the bot; an unknown registration has nothing to stop.
func (s *Server) removeBotToken(ctx context.Context, reg *database.BotRegistration) *pushFailure {
	if reg == nil {
		return nil
	}
	s.Pool.Remove(reg.BotID)
	if _, err := s.Store.DeactivateBot(ctx, reg.BotID); err != nil {
		s.recordError(ctx, err, "/bot/token/update", reg.BotID, nil)
		return &pushFailure{http.StatusInternalServerError, "Bot stop failed", "Failed to stop existing bot"}
	}
	s.refreshActiveBots(ctx)
	return nil
}

// applyBotToken validates the token and stores it on the registration keyed
// by the getMe username, points the webhook at this service and pools the
// client. prior is the registration the push referred to; if getMe reports
// a different username it is deactivated so one Telegram bot never has two
// active rows.
func (s *Server) applyBotToken(ctx context.Context, req tokenUpdateRequest, prior *database.BotRegistration) *pushFailure {
	initFailed := &pushFailure{http.StatusInternalServerError, "Bot initialization failed", "Failed to initialize bot with provided token"}

	client, err := s.NewClient(req.BotToken)
	if err != nil {
		return initFailed
	}
	info := client.GetBotInfo(ctx)
	if !info.OK {
		s.logger.WarnContext(ctx, "Pushed token rejected by Telegram", "pushed_bot_id", string(req.BotID), "error", info.Error)
		return initFailed
	}
	if info.Bot == nil || info.Bot.Username == "" {
		s.logger.WarnContext(ctx, "Pushed token has no bot username", "pushed_bot_id", string(req.BotID))
		return initFailed
	}
	botID := info.Bot.Username

	existing, err := s.Store.GetBot(ctx, botID)
	if err != nil {
		s.recordError(ctx, err, "/bot/token/update", botID, nil)
		return initFailed
	}
	reg := &database.BotRegistration{
		BotID:      botID,
		TelegramID: info.Bot.ID,
		BotToken:   req.BotToken,
		WebhookURL: s.webhookURL(botID),
	}
	switch {
	case existing != nil:
		reg.OwnerUserID = existing.OwnerUserID
	case prior != nil:
		reg.OwnerUserID = prior.OwnerUserID
	}
	if prior != nil && prior.BotID != botID && prior.IsActive {
		s.logger.InfoContext(ctx, "Bot username changed, retiring old registration", "old_bot_id", prior.BotID, "bot_id", botID)
		if fail := s.removeBotToken(ctx, prior); fail != nil {
			return fail
		}
	}
	if existing != nil {
		err = s.Store.ReactivateBot(ctx, reg)
	} else {
		err = s.Store.CreateBot(ctx, reg)
	}
	if err != nil {
		s.recordError(ctx, err, "/bot/token/update", botID, nil)
		return initFailed
	}

	if hook := client.SetWebhook(ctx, reg.WebhookURL); hook.OK {
		if err := s.Store.SetWebhookStatus(ctx, botID, true); err != nil {
			s.logger.WarnContext(ctx, "Failed to store webhook status", "bot_id", botID, "error", err)
		}
	} else {
		s.logger.WarnContext(ctx, "Failed to set webhook", "bot_id", botID, "error", hook.Error)
	}

	s.Pool.Put(botID, req.BotToken, botID, client)
	s.refreshActiveBots(ctx)
	return nil
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serviceConfig := map[string]any{
		"service_secret_configured": s.Config.Services.Secret != "",
		"webhook_base_url":          s.Config.Webhook.BaseURL,
	}
	body := map[string]any{
		"pooled_bots":           s.Pool.Snapshot(),
		"pool_size":             s.Pool.Len(),
		"service_configuration": serviceConfig,
		"timestamp":             time.Now().UTC(),
	}
	if n, err := s.Store.CountActiveBots(ctx); err == nil {
		body["active_bots"] = n
	}

	stats, err := s.Store.PushNotificationStats(ctx, time.Time{})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load push notification stats", "error", err)
		body["push_notification_stats"] = map[string]string{"error": "unavailable"}
	} else {
		recent, _ := s.Store.PushNotificationStats(ctx, time.Now().UTC().Add(-24*time.Hour))
		rate := 0.0
		if stats.Total > 0 {
			rate = float64(stats.Processed) / float64(stats.Total) * 100
		}
		body["push_notification_stats"] = map[string]any{
			"total_notifications":      stats.Total,
			"successful_notifications": stats.Processed,
			"failed_notifications":     stats.Failed,
			"by_type":                  stats.ByType,
			"recent_notifications_24h": recent.Total,
			"success_rate":             rate,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func maskedOrNil(token string) any {
	if token == "" {
		return nil
	}
	return logger.MaskToken(token)
}

// redactToken replaces bot_token in a JSON object before it is stored.
func redactToken(raw []byte) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw)
	}
	if tok, ok := m["bot_token"].(string); ok && tok != "" {
		m["bot_token"] = logger.MaskToken(tok)
	}
	out, err := json.Marshal(m)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
