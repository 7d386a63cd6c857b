package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/telegive/bot-service/internal/errors"
)

const botColumns = `id, bot_id, telegram_id, bot_token, owner_user_id, webhook_url, webhook_set,
	is_active, error_count, created_at, updated_at, last_activity`

// CreateBot inserts a new registration inside a transaction so the
// existence check and the insert see the same snapshot.
func (s *sqlxStore) CreateBot(ctx context.Context, bot *BotRegistration) error {
	if bot == nil {
		return fmt.Errorf("cannot save nil bot registration")
	}
	if bot.BotID == "" || bot.BotToken == "" {
		return apperrors.NewValidationError("bot registration needs bot_id and bot_token", nil)
	}

	now := utcNow()
	bot.CreatedAt = now
	bot.UpdatedAt = now
	bot.IsActive = true

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for bot registration", "bot_id", bot.BotID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	var existing int
	if err := tx.GetContext(ctx, &existing, tx.Rebind(`SELECT COUNT(*) FROM bot_registrations WHERE bot_id = ?`), bot.BotID); err != nil {
		return fmt.Errorf("failed to check existing bot %s: %w", bot.BotID, err)
	}
	if existing > 0 {
		return apperrors.NewConflict("Bot already registered")
	}

	query := `
        INSERT INTO bot_registrations (bot_id, telegram_id, bot_token, owner_user_id, webhook_url, webhook_set,
            is_active, error_count, created_at, updated_at, last_activity)
        VALUES (:bot_id, :telegram_id, :bot_token, :owner_user_id, :webhook_url, :webhook_set,
            :is_active, :error_count, :created_at, :updated_at, :last_activity)
        RETURNING id`
	id, err := s.insertReturningID(ctx, tx, query, bot)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("Bot already registered")
		}
		s.logger.ErrorContext(ctx, "Error saving bot registration", "bot_id", bot.BotID, "error", err)
		return fmt.Errorf("failed to save bot %s: %w", bot.BotID, err)
	}
	bot.ID = id

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "bot_id", bot.BotID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Bot registration saved", "bot_id", bot.BotID, "id", bot.ID)
	return nil
}

func (s *sqlxStore) GetBot(ctx context.Context, botID string) (*BotRegistration, error) {
	return s.getBot(ctx, `SELECT `+botColumns+` FROM bot_registrations WHERE bot_id = ?`, botID)
}

func (s *sqlxStore) GetActiveBot(ctx context.Context, botID string) (*BotRegistration, error) {
	return s.getBot(ctx, `SELECT `+botColumns+` FROM bot_registrations WHERE bot_id = ? AND is_active = ?`, botID, true)
}

// GetBotByTelegramID returns the most recently updated registration for a
// numeric Telegram bot id.
func (s *sqlxStore) GetBotByTelegramID(ctx context.Context, telegramID int64) (*BotRegistration, error) {
	return s.getBot(ctx, `SELECT `+botColumns+` FROM bot_registrations
        WHERE telegram_id = ? ORDER BY is_active DESC, updated_at DESC, id DESC LIMIT 1`, telegramID)
}

func (s *sqlxStore) getBot(ctx context.Context, query string, args ...any) (*BotRegistration, error) {
	var bot BotRegistration
	if err := s.db.GetContext(ctx, &bot, s.db.Rebind(query), args...); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		logCtxErr(ctx, s.logger, "get_bot", err)
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}
	return &bot, nil
}

func (s *sqlxStore) ListActiveBots(ctx context.Context) ([]BotRegistration, error) {
	bots := []BotRegistration{}
	query := s.db.Rebind(`SELECT ` + botColumns + ` FROM bot_registrations WHERE is_active = ? ORDER BY created_at, id`)
	if err := s.db.SelectContext(ctx, &bots, query, true); err != nil {
		logCtxErr(ctx, s.logger, "list_active_bots", err)
		return nil, fmt.Errorf("failed to list active bots: %w", err)
	}
	return bots, nil
}

func (s *sqlxStore) CountActiveBots(ctx context.Context) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM bot_registrations WHERE is_active = ?`, true)
	if err != nil {
		return 0, fmt.Errorf("failed to count active bots: %w", err)
	}
	return n, nil
}

func (s *sqlxStore) ReactivateBot(ctx context.Context, bot *BotRegistration) error {
	if bot == nil || bot.BotID == "" {
		return apperrors.NewValidationError("bot registration needs bot_id", nil)
	}
	bot.UpdatedAt = utcNow()
	bot.IsActive = true
	bot.ErrorCount = 0

	query := `
        UPDATE bot_registrations
        SET telegram_id = :telegram_id, bot_token = :bot_token, owner_user_id = :owner_user_id, webhook_url = :webhook_url,
            webhook_set = :webhook_set, is_active = :is_active, error_count = :error_count,
            updated_at = :updated_at
        WHERE bot_id = :bot_id`
	res, err := s.db.NamedExecContext(ctx, query, bot)
	if err != nil {
		logCtxErr(ctx, s.logger, "reactivate_bot", err)
		return fmt.Errorf("failed to reactivate bot %s: %w", bot.BotID, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return apperrors.NewNotFound("Bot not found")
	}
	return nil
}

func (s *sqlxStore) DeactivateBot(ctx context.Context, botID string) (bool, error) {
	affected, err := s.exec(ctx,
		`UPDATE bot_registrations SET is_active = ?, updated_at = ? WHERE bot_id = ? AND is_active = ?`,
		false, utcNow(), botID, true)
	if err != nil {
		logCtxErr(ctx, s.logger, "deactivate_bot", err)
		return false, fmt.Errorf("failed to deactivate bot %s: %w", botID, err)
	}
	if affected > 0 {
		s.logger.InfoContext(ctx, "Bot deactivated", "bot_id", botID)
	}
	return affected > 0, nil
}

func (s *sqlxStore) SetWebhookStatus(ctx context.Context, botID string, set bool) error {
	if _, err := s.exec(ctx,
		`UPDATE bot_registrations SET webhook_set = ?, updated_at = ? WHERE bot_id = ?`,
		set, utcNow(), botID); err != nil {
		return fmt.Errorf("failed to update webhook status for %s: %w", botID, err)
	}
	return nil
}

func (s *sqlxStore) TouchBot(ctx context.Context, botID string, at time.Time) error {
	if _, err := s.exec(ctx,
		`UPDATE bot_registrations SET last_activity = ? WHERE bot_id = ?`,
		at.UTC(), botID); err != nil {
		return fmt.Errorf("failed to update last activity for %s: %w", botID, err)
	}
	return nil
}

func (s *sqlxStore) RecordBotCheck(ctx context.Context, botID string, ok bool, at time.Time) error {
	var err error
	if ok {
		_, err = s.exec(ctx,
			`UPDATE bot_registrations SET error_count = 0, last_activity = ?, updated_at = ? WHERE bot_id = ?`,
			at.UTC(), at.UTC(), botID)
	} else {
		_, err = s.exec(ctx,
			`UPDATE bot_registrations SET error_count = error_count + 1, updated_at = ? WHERE bot_id = ?`,
			at.UTC(), botID)
	}
	if err != nil {
		return fmt.Errorf("failed to record health check for %s: %w", botID, err)
	}
	return nil
}
