package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/telegive/bot-service/internal/logger"
)

// Store defines the interface for database operations.
// Lookups that find nothing return nil, nil.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// CreateBot inserts a new registration. Returns a CONFLICT error if the
	// bot_id already exists.
	CreateBot(ctx context.Context, bot *BotRegistration) error
	GetBot(ctx context.Context, botID string) (*BotRegistration, error)
	GetActiveBot(ctx context.Context, botID string) (*BotRegistration, error)
	// GetBotByTelegramID looks a registration up by the numeric id getMe
	// reports, preferring an active row.
	GetBotByTelegramID(ctx context.Context, telegramID int64) (*BotRegistration, error)
	ListActiveBots(ctx context.Context) ([]BotRegistration, error)
	CountActiveBots(ctx context.Context) (int, error)
	// ReactivateBot rewrites token, owner and webhook of an existing row and
	// marks it active again.
	ReactivateBot(ctx context.Context, bot *BotRegistration) error
	// DeactivateBot returns false if the bot was unknown or already inactive.
	DeactivateBot(ctx context.Context, botID string) (bool, error)
	SetWebhookStatus(ctx context.Context, botID string, set bool) error
	TouchBot(ctx context.Context, botID string, at time.Time) error
	// RecordBotCheck resets error_count on success and increments it on failure.
	RecordBotCheck(ctx context.Context, botID string, ok bool, at time.Time) error

	CreateWebhookLog(ctx context.Context, log *WebhookLog) error
	FinishWebhookLog(ctx context.Context, log *WebhookLog) error
	ListWebhookLogs(ctx context.Context, botID string, limit int) ([]WebhookLog, error)
	CreateMessageLog(ctx context.Context, log *MessageLog) error
	// UpdateMessageLog stores the reply, status and delivery attempt fields.
	UpdateMessageLog(ctx context.Context, log *MessageLog) error
	ListRetryableMessages(ctx context.Context, maxAttempts, limit int) ([]MessageLog, error)
	ListMessageLogs(ctx context.Context, botID string, limit int) ([]MessageLog, error)
	CountMessageLogsByStatus(ctx context.Context, status string) (int, error)

	SaveServiceInteraction(ctx context.Context, interaction *ServiceInteraction) error
	ListServiceInteractions(ctx context.Context, limit int) ([]ServiceInteraction, error)
	SaveErrorLog(ctx context.Context, log *ErrorLog) error
	ListErrorLogs(ctx context.Context, limit int) ([]ErrorLog, error)
	CountErrorLogsSince(ctx context.Context, since time.Time) (int, error)
	SavePushNotification(ctx context.Context, n *PushNotification) error
	PushNotificationStats(ctx context.Context, since time.Time) (PushStats, error)

	// DeleteLogsBefore removes rows of one log table created before cutoff.
	DeleteLogsBefore(ctx context.Context, kind LogKind, cutoff time.Time) (int64, error)

	CreateTask(ctx context.Context, task *BackgroundTask) error
	GetTask(ctx context.Context, id int64) (*BackgroundTask, error)
	ListPendingTasks(ctx context.Context, limit int) ([]BackgroundTask, error)
	ListRecentTasks(ctx context.Context, limit int) ([]BackgroundTask, error)
	CountTasksByStatus(ctx context.Context, status string) (int, error)
	// StartTask moves a pending task to running. Returns false if the task
	// was no longer pending.
	StartTask(ctx context.Context, id int64, at time.Time) (bool, error)
	// FinishTask stores the terminal status, result or error, and completed_at.
	FinishTask(ctx context.Context, task *BackgroundTask) error
	// FailStaleTasks marks tasks still running since before startedBefore
	// as failed with reason, and returns how many it touched.
	FailStaleTasks(ctx context.Context, startedBefore time.Time, reason string) (int64, error)
	DeleteFinishedTasksBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, log *slog.Logger) Store {
	if log == nil {
		log = logger.Discard()
	}
	return &sqlxStore{
		db:     db,
		logger: log.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// insertReturningID runs a named INSERT ... RETURNING id statement.
// Both SQLite (3.35+) and PostgreSQL support RETURNING.
func (s *sqlxStore) insertReturningID(ctx context.Context, q sqlx.QueryerContext, query string, arg any) (int64, error) {
	bound, args, err := s.db.BindNamed(query, arg)
	if err != nil {
		return 0, fmt.Errorf("failed to bind query: %w", err)
	}
	var id int64
	if err := q.QueryRowxContext(ctx, bound, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *sqlxStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqlxStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// isUniqueViolation detects unique constraint failures on both dialects.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			code == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func logCtxErr(ctx context.Context, log *slog.Logger, op string, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.WarnContext(ctx, "Database operation interrupted", "op", op, "error", err)
		return
	}
	log.ErrorContext(ctx, "Database operation failed", "op", op, "error", err)
}

func clampLimit(limit, upper int) int {
	if limit <= 0 || limit > upper {
		return upper
	}
	return limit
}

func utcNow() time.Time {
	return time.Now().UTC()
}
