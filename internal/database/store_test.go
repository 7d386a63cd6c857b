package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/telegive/bot-service/internal/errors"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { CloseDB(db) })
	return NewStore(db, nil)
}

func TestResolveDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in         string
		wantDriver string
		wantDSN    string
	}{
		{"postgres://u:p@h/db", DriverPostgres, "postgres://u:p@h/db"},
		{"postgresql://u:p@h/db", DriverPostgres, "postgresql://u:p@h/db"},
		{"sqlite://data/bot.db", DriverSQLite, "data/bot.db?" + sqliteParams},
		{"bot.db?cache=shared", DriverSQLite, "bot.db?cache=shared&" + sqliteParams},
	}
	for _, tt := range tests {
		driver, dsn := ResolveDSN(tt.in)
		assert.Equal(t, tt.wantDriver, driver, tt.in)
		assert.Equal(t, tt.wantDSN, dsn, tt.in)
	}
}

func TestBotRegistrations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	bot := &BotRegistration{BotID: "giveaway_bot", BotToken: "1:abc", OwnerUserID: 42, WebhookURL: "https://x/webhook/giveaway_bot"}
	require.NoError(t, store.CreateBot(ctx, bot))
	assert.NotZero(t, bot.ID)

	t.Run("duplicate is a conflict", func(t *testing.T) {
		err := store.CreateBot(ctx, &BotRegistration{BotID: "giveaway_bot", BotToken: "1:def"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrConflict))
	})

	t.Run("active lookups", func(t *testing.T) {
		got, err := store.GetActiveBot(ctx, "giveaway_bot")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "1:abc", got.BotToken)
		assert.True(t, got.IsActive)

		missing, err := store.GetActiveBot(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	require.NoError(t, store.CreateBot(ctx, &BotRegistration{BotID: "second_bot", BotToken: "2:xyz"}))

	ok, err := store.DeactivateBot(ctx, "second_bot")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.DeactivateBot(ctx, "second_bot")
	require.NoError(t, err)
	assert.False(t, ok, "already inactive")

	active, err := store.ListActiveBots(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "giveaway_bot", active[0].BotID)

	inactive, err := store.GetActiveBot(ctx, "second_bot")
	require.NoError(t, err)
	assert.Nil(t, inactive)

	n, err := store.CountActiveBots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.ReactivateBot(ctx, &BotRegistration{BotID: "second_bot", BotToken: "2:new", OwnerUserID: 7}))
	again, err := store.GetActiveBot(ctx, "second_bot")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "2:new", again.BotToken)
	assert.Equal(t, int64(7), again.OwnerUserID)
}

func TestRecordBotCheckAndTouch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateBot(ctx, &BotRegistration{BotID: "b", BotToken: "1:t"}))
	require.NoError(t, store.RecordBotCheck(ctx, "b", false, time.Now()))
	require.NoError(t, store.RecordBotCheck(ctx, "b", false, time.Now()))

	bot, err := store.GetBot(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, bot.ErrorCount)
	assert.Nil(t, bot.LastActivity)

	require.NoError(t, store.RecordBotCheck(ctx, "b", true, time.Now()))
	require.NoError(t, store.SetWebhookStatus(ctx, "b", true))
	bot, err = store.GetBot(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 0, bot.ErrorCount)
	assert.NotNil(t, bot.LastActivity)
	assert.True(t, bot.WebhookSet)
}

func TestWebhookAndMessageLogs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	wl := &WebhookLog{BotID: "b", RawPayload: `{"update_id":1}`}
	require.NoError(t, store.CreateWebhookLog(ctx, wl))
	assert.Equal(t, WebhookStatusReceived, wl.Status)

	wl.Status = WebhookStatusProcessed
	wl.ResponseSent = Ptr(true)
	wl.ProcessingTime = Ptr(0.12)
	require.NoError(t, store.FinishWebhookLog(ctx, wl))

	logs, err := store.ListWebhookLogs(ctx, "b", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, WebhookStatusProcessed, logs[0].Status)
	require.NotNil(t, logs[0].ResponseSent)
	assert.True(t, *logs[0].ResponseSent)

	ml := &MessageLog{BotID: "b", ChatID: 100, UserID: 5, Username: "ann", MessageText: "/start"}
	require.NoError(t, store.CreateMessageLog(ctx, ml))
	ml.BotResponse = Ptr("hello")
	ml.Status = MessageStatusDelivered
	require.NoError(t, store.UpdateMessageLog(ctx, ml))

	msgs, err := store.ListMessageLogs(ctx, "b", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", *msgs[0].BotResponse)

	n, err := store.CountMessageLogsByStatus(ctx, MessageStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteLogsBefore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, store.CreateWebhookLog(ctx, &WebhookLog{BotID: "b", CreatedAt: now.Add(-31 * 24 * time.Hour)}))
	require.NoError(t, store.CreateWebhookLog(ctx, &WebhookLog{BotID: "b", CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, store.SaveErrorLog(ctx, &ErrorLog{ErrorType: "x", ErrorMessage: "old", CreatedAt: now.Add(-91 * 24 * time.Hour)}))

	deleted, err := store.DeleteLogsBefore(ctx, LogWebhook, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = store.DeleteLogsBefore(ctx, LogError, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	logs, err := store.ListWebhookLogs(ctx, "b", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = store.DeleteLogsBefore(ctx, LogKind("users; DROP TABLE x"), now)
	assert.Error(t, err)
}

func TestAuditRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveServiceInteraction(ctx, &ServiceInteraction{
		ServiceName: "auth", Endpoint: "/health", Method: "GET", StatusCode: Ptr(200), ResponseTime: 0.01, Success: true,
	}))
	require.NoError(t, store.SaveServiceInteraction(ctx, &ServiceInteraction{
		ServiceName: "channel", Endpoint: "/health", Method: "GET", Success: false, ErrorMessage: Ptr("Service timeout"),
	}))
	rows, err := store.ListServiceInteractions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].StatusCode)
	assert.Equal(t, 200, *rows[1].StatusCode)

	require.NoError(t, store.SaveErrorLog(ctx, &ErrorLog{ErrorType: "INTERNAL", ErrorMessage: "boom", BotID: Ptr("b")}))
	n, err := store.CountErrorLogsSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, status := range []string{PushStatusProcessed, PushStatusProcessed, PushStatusFailed} {
		require.NoError(t, store.SavePushNotification(ctx, &PushNotification{
			SourceService: "auth", NotificationType: "bot_token_update", Status: status,
		}))
	}
	stats, err := store.PushNotificationStats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, stats.ByType["bot_token_update"])
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	first := &BackgroundTask{TaskType: "cleanup_logs"}
	second := &BackgroundTask{TaskType: "health_check_bots"}
	require.NoError(t, store.CreateTask(ctx, first))
	require.NoError(t, store.CreateTask(ctx, second))

	pending, err := store.ListPendingTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID, "oldest first")

	started, err := store.StartTask(ctx, first.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, started)

	started, err = store.StartTask(ctx, first.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, started, "a running task cannot start twice")

	first.Status = TaskStatusCompleted
	first.Result = Ptr("deleted 0 rows")
	require.NoError(t, store.FinishTask(ctx, first))

	got, err := store.GetTask(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	bad := &BackgroundTask{ID: second.ID, Status: TaskStatusRunning}
	assert.Error(t, store.FinishTask(ctx, bad))

	n, err := store.CountTasksByStatus(ctx, TaskStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old := &BackgroundTask{TaskType: "cleanup_logs", CreatedAt: time.Now().UTC().Add(-8 * 24 * time.Hour)}
	require.NoError(t, store.CreateTask(ctx, old))
	old.Status = TaskStatusFailed
	old.ErrorMessage = Ptr("boom")
	require.NoError(t, store.FinishTask(ctx, old))

	deleted, err := store.DeleteFinishedTasksBefore(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	recent, err := store.ListRecentTasks(ctx, 20)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestListRetryableMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Now().UTC().Add(-time.Hour)

	tests := []struct {
		name      string
		attempts  int
		errorCode string
		reply     bool
		want      bool
	}{
		{name: "first failure", attempts: 1, errorCode: MessageErrorSendFailed, reply: true, want: true},
		{name: "attempts exhausted", attempts: 3, errorCode: MessageErrorSendFailed, reply: true},
		{name: "user blocked the bot", attempts: 1, errorCode: MessageErrorUserBlocked, reply: true},
		{name: "no reply stored", attempts: 1, errorCode: MessageErrorSendFailed},
		{name: "delivered", attempts: 1, reply: true},
	}

	want := map[int64]string{}
	for _, tt := range tests {
		ml := &MessageLog{BotID: "b", ChatID: 1, MessageText: tt.name}
		require.NoError(t, store.CreateMessageLog(ctx, ml), tt.name)
		if tt.reply {
			ml.BotResponse = Ptr("reply")
		}
		for i := 0; i < tt.attempts; i++ {
			ml.RecordAttempt(at, tt.errorCode)
		}
		require.NoError(t, store.UpdateMessageLog(ctx, ml), tt.name)
		if tt.want {
			want[ml.ID] = tt.name
		}
	}

	got, err := store.ListRetryableMessages(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for _, ml := range got {
		assert.Contains(t, want, ml.ID)
		assert.Equal(t, 1, ml.DeliveryAttempts)
		require.NotNil(t, ml.LastAttemptAt)
		assert.WithinDuration(t, at, *ml.LastAttemptAt, time.Second)
		require.NotNil(t, ml.ErrorCode)
		assert.Equal(t, MessageErrorSendFailed, *ml.ErrorCode)
	}
}

func TestRecordAttemptClearsErrorOnDelivery(t *testing.T) {
	t.Parallel()
	ml := &MessageLog{}
	at := time.Now()

	ml.RecordAttempt(at, MessageErrorSendFailed)
	assert.Equal(t, MessageStatusFailed, ml.Status)
	require.NotNil(t, ml.ErrorCode)

	ml.RecordAttempt(at, "")
	assert.Equal(t, MessageStatusDelivered, ml.Status)
	assert.Nil(t, ml.ErrorCode)
	assert.Equal(t, 2, ml.DeliveryAttempts)
}

func TestFailStaleTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC()

	stale := &BackgroundTask{TaskType: "cleanup_logs"}
	fresh := &BackgroundTask{TaskType: "cleanup_logs"}
	pending := &BackgroundTask{TaskType: "cleanup_logs", CreatedAt: now.Add(-2 * time.Hour)}
	for _, task := range []*BackgroundTask{stale, fresh, pending} {
		require.NoError(t, store.CreateTask(ctx, task))
	}
	_, err := store.StartTask(ctx, stale.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = store.StartTask(ctx, fresh.ID, now)
	require.NoError(t, err)

	failed, err := store.FailStaleTasks(ctx, now.Add(-30*time.Minute), "timed out")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	got, err := store.GetTask(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, got.Status)
	assert.Equal(t, "timed out", *got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)

	got, err = store.GetTask(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusRunning, got.Status)

	got, err = store.GetTask(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusPending, got.Status)
}

func TestGetBotByTelegramID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	old := &BotRegistration{BotID: "renamed_bot", TelegramID: 7001, BotToken: "7001:old"}
	require.NoError(t, store.CreateBot(ctx, old))
	_, err := store.DeactivateBot(ctx, "renamed_bot")
	require.NoError(t, err)
	require.NoError(t, store.CreateBot(ctx, &BotRegistration{BotID: "giveaway_bot", TelegramID: 7001, BotToken: "7001:new"}))

	got, err := store.GetBotByTelegramID(ctx, 7001)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "giveaway_bot", got.BotID, "the active row wins")
	assert.Equal(t, int64(7001), got.TelegramID)

	missing, err := store.GetBotByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
