package database

import (
	"context"
	"fmt"
	"time"
)

const (
	maxListLimit = 500

	webhookLogColumns = `id, bot_id, raw_payload, status, response_sent, processing_time, error_message, created_at`
	messageLogColumns = `id, bot_id, chat_id, user_id, username, message_text, bot_response, status,
        delivery_attempts, last_attempt_at, error_code, created_at`
)

func (s *sqlxStore) CreateWebhookLog(ctx context.Context, log *WebhookLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = utcNow()
	}
	if log.Status == "" {
		log.Status = WebhookStatusReceived
	}
	query := `
        INSERT INTO webhook_logs (bot_id, raw_payload, status, response_sent, processing_time, error_message, created_at)
        VALUES (:bot_id, :raw_payload, :status, :response_sent, :processing_time, :error_message, :created_at)
        RETURNING id`
	id, err := s.insertReturningID(ctx, s.db, query, log)
	if err != nil {
		logCtxErr(ctx, s.logger, "create_webhook_log", err)
		return fmt.Errorf("failed to create webhook log for %s: %w", log.BotID, err)
	}
	log.ID = id
	return nil
}

func (s *sqlxStore) FinishWebhookLog(ctx context.Context, log *WebhookLog) error {
	query := `
        UPDATE webhook_logs
        SET status = :status, response_sent = :response_sent, processing_time = :processing_time,
            error_message = :error_message
        WHERE id = :id`
	if _, err := s.db.NamedExecContext(ctx, query, log); err != nil {
		logCtxErr(ctx, s.logger, "finish_webhook_log", err)
		return fmt.Errorf("failed to finish webhook log %d: %w", log.ID, err)
	}
	return nil
}

func (s *sqlxStore) ListWebhookLogs(ctx context.Context, botID string, limit int) ([]WebhookLog, error) {
	logs := []WebhookLog{}
	query := s.db.Rebind(`SELECT ` + webhookLogColumns + ` FROM webhook_logs WHERE bot_id = ? ORDER BY id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &logs, query, botID, clampLimit(limit, maxListLimit)); err != nil {
		return nil, fmt.Errorf("failed to list webhook logs: %w", err)
	}
	return logs, nil
}

func (s *sqlxStore) CreateMessageLog(ctx context.Context, log *MessageLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = utcNow()
	}
	if log.Status == "" {
		log.Status = MessageStatusProcessing
	}
	query := `
        INSERT INTO message_logs (bot_id, chat_id, user_id, username, message_text, bot_response, status, created_at)
        VALUES (:bot_id, :chat_id, :user_id, :username, :message_text, :bot_response, :status, :created_at)
        RETURNING id`
	id, err := s.insertReturningID(ctx, s.db, query, log)
	if err != nil {
		logCtxErr(ctx, s.logger, "create_message_log", err)
		return fmt.Errorf("failed to create message log for %s: %w", log.BotID, err)
	}
	log.ID = id
	return nil
}

func (s *sqlxStore) UpdateMessageLog(ctx context.Context, log *MessageLog) error {
	query := `
        UPDATE message_logs
        SET bot_response = :bot_response, status = :status, delivery_attempts = :delivery_attempts,
            last_attempt_at = :last_attempt_at, error_code = :error_code
        WHERE id = :id`
	if _, err := s.db.NamedExecContext(ctx, query, log); err != nil {
		logCtxErr(ctx, s.logger, "update_message_log", err)
		return fmt.Errorf("failed to update message log %d: %w", log.ID, err)
	}
	return nil
}

func (s *sqlxStore) ListMessageLogs(ctx context.Context, botID string, limit int) ([]MessageLog, error) {
	logs := []MessageLog{}
	query := s.db.Rebind(`SELECT ` + messageLogColumns + ` FROM message_logs WHERE bot_id = ? ORDER BY id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &logs, query, botID, clampLimit(limit, maxListLimit)); err != nil {
		return nil, fmt.Errorf("failed to list message logs: %w", err)
	}
	return logs, nil
}

// ListRetryableMessages returns failed replies below maxAttempts whose
// recipient has not blocked the bot, oldest first.
func (s *sqlxStore) ListRetryableMessages(ctx context.Context, maxAttempts, limit int) ([]MessageLog, error) {
	logs := []MessageLog{}
	query := s.db.Rebind(`SELECT ` + messageLogColumns + ` FROM message_logs
        WHERE status = ? AND delivery_attempts < ? AND bot_response IS NOT NULL
            AND (error_code IS NULL OR error_code <> ?)
        ORDER BY id LIMIT ?`)
	err := s.db.SelectContext(ctx, &logs, query,
		MessageStatusFailed, maxAttempts, MessageErrorUserBlocked, clampLimit(limit, maxListLimit))
	if err != nil {
		logCtxErr(ctx, s.logger, "list_retryable_messages", err)
		return nil, fmt.Errorf("failed to list retryable messages: %w", err)
	}
	return logs, nil
}

func (s *sqlxStore) CountMessageLogsByStatus(ctx context.Context, status string) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM message_logs WHERE status = ?`, status)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s messages: %w", status, err)
	}
	return n, nil
}

func (s *sqlxStore) SaveServiceInteraction(ctx context.Context, interaction *ServiceInteraction) error {
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = utcNow()
	}
	query := `
        INSERT INTO service_interactions (service_name, endpoint, method, status_code, response_time,
            success, error_message, created_at)
        VALUES (:service_name, :endpoint, :method, :status_code, :response_time,
            :success, :error_message, :created_at)
        RETURNING id`
	id, err := s.insertReturningID(ctx, s.db, query, interaction)
	if err != nil {
		return fmt.Errorf("failed to save service interaction: %w", err)
	}
	interaction.ID = id
	return nil
}

func (s *sqlxStore) ListServiceInteractions(ctx context.Context, limit int) ([]ServiceInteraction, error) {
	rows := []ServiceInteraction{}
	query := s.db.Rebind(`
        SELECT id, service_name, endpoint, method, status_code, response_time, success, error_message, created_at
        FROM service_interactions ORDER BY id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, clampLimit(limit, maxListLimit)); err != nil {
		return nil, fmt.Errorf("failed to list service interactions: %w", err)
	}
	return rows, nil
}

func (s *sqlxStore) SaveErrorLog(ctx context.Context, log *ErrorLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = utcNow()
	}
	query := `
        INSERT INTO error_logs (error_type, error_message, stack_trace, endpoint, bot_id, created_at)
        VALUES (:error_type, :error_message, :stack_trace, :endpoint, :bot_id, :created_at)
        RETURNING id`
	id, err := s.insertReturningID(ctx, s.db, query, log)
	if err != nil {
		return fmt.Errorf("failed to save error log: %w", err)
	}
	log.ID = id
	return nil
}

func (s *sqlxStore) ListErrorLogs(ctx context.Context, limit int) ([]ErrorLog, error) {
	rows := []ErrorLog{}
	query := s.db.Rebind(`
        SELECT id, error_type, error_message, stack_trace, endpoint, bot_id, created_at
        FROM error_logs ORDER BY id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, clampLimit(limit, maxListLimit)); err != nil {
		return nil, fmt.Errorf("failed to list error logs: %w", err)
	}
	return rows, nil
}

func (s *sqlxStore) CountErrorLogsSince(ctx context.Context, since time.Time) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM error_logs WHERE created_at >= ?`, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count error logs: %w", err)
	}
	return n, nil
}

func (s *sqlxStore) SavePushNotification(ctx context.Context, n *PushNotification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = utcNow()
	}
	query := `
        INSERT INTO push_notifications (source_service, notification_type, bot_id, bot_username, status,
            processing_time, error_message, request_data, created_at)
        VALUES (:source_service, :notification_type, :bot_id, :bot_username, :status,
            :processing_time, :error_message, :request_data, :created_at)
        RETURNING id`
	id, err := s.insertReturningID(ctx, s.db, query, n)
	if err != nil {
		return fmt.Errorf("failed to save push notification: %w", err)
	}
	n.ID = id
	return nil
}

func (s *sqlxStore) PushNotificationStats(ctx context.Context, since time.Time) (PushStats, error) {
	stats := PushStats{ByType: map[string]int{}}
	var rows []struct {
		NotificationType string `db:"notification_type"`
		Status           string `db:"status"`
		N                int    `db:"n"`
	}
	query := s.db.Rebind(`
        SELECT notification_type, status, COUNT(*) AS n
        FROM push_notifications WHERE created_at >= ?
        GROUP BY notification_type, status`)
	if err := s.db.SelectContext(ctx, &rows, query, since.UTC()); err != nil {
		return stats, fmt.Errorf("failed to aggregate push notifications: %w", err)
	}
	for _, r := range rows {
		stats.Total += r.N
		stats.ByType[r.NotificationType] += r.N
		switch r.Status {
		case PushStatusProcessed:
			stats.Processed += r.N
		case PushStatusFailed:
			stats.Failed += r.N
		}
	}
	return stats, nil
}

// DeleteLogsBefore removes log rows older than cutoff. kind is never user
// input; it selects one of the fixed log tables.
func (s *sqlxStore) DeleteLogsBefore(ctx context.Context, kind LogKind, cutoff time.Time) (int64, error) {
	switch kind {
	case LogWebhook, LogMessage, LogServiceInteraction, LogError, LogPushNotification:
	default:
		return 0, fmt.Errorf("unknown log kind %q", kind)
	}
	deleted, err := s.exec(ctx, `DELETE FROM `+string(kind)+` WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		logCtxErr(ctx, s.logger, "delete_logs", err)
		return 0, fmt.Errorf("failed to delete old %s: %w", kind, err)
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "Deleted old log rows", "table", string(kind), "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}
