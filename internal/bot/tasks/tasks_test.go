package tasks

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telegive/bot-service/internal/config"
	"github.com/telegive/bot-service/internal/database"
	apperrors "github.com/telegive/bot-service/internal/errors"
	"github.com/telegive/bot-service/internal/logger"
	"github.com/telegive/bot-service/internal/telegram"
)

type scriptedClient struct {
	info telegram.Result
}

func (c scriptedClient) SendMessage(context.Context, int64, string) telegram.Result {
	return telegram.Result{OK: true}
}
func (c scriptedClient) SetWebhook(context.Context, string) telegram.Result { return telegram.Result{OK: true} }
func (c scriptedClient) GetBotInfo(context.Context) telegram.Result         { return c.info }

func newTestDeps(t *testing.T, byToken map[string]telegram.Result) TaskDeps {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	log := logger.Discard()
	factory := func(token string) (telegram.Client, error) {
		return scriptedClient{info: byToken[token]}, nil
	}
	return TaskDeps{
		Logger: log,
		Store:  database.NewStore(db, log),
		Config: config.Default(),
		Pool:   telegram.NewPool(factory, log),
	}
}

func TestCleanupLogsHonoursRetention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newTestDeps(t, nil)
	now := time.Now().UTC()

	require.NoError(t, deps.Store.CreateWebhookLog(ctx, &database.WebhookLog{BotID: "b", CreatedAt: now.Add(-31 * 24 * time.Hour)}))
	require.NoError(t, deps.Store.CreateWebhookLog(ctx, &database.WebhookLog{BotID: "b", CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, deps.Store.SaveErrorLog(ctx, &database.ErrorLog{ErrorType: "x", ErrorMessage: "recent enough", CreatedAt: now.Add(-60 * 24 * time.Hour)}))
	require.NoError(t, deps.Store.SaveErrorLog(ctx, &database.ErrorLog{ErrorType: "x", ErrorMessage: "too old", CreatedAt: now.Add(-91 * 24 * time.Hour)}))

	exec := RegisterAllTasks(deps)[TypeCleanupLogs]
	result, err := exec(ctx, database.BackgroundTask{TaskType: TypeCleanupLogs})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result, "deleted 2 rows"), result)

	logs, err := deps.Store.ListWebhookLogs(ctx, "b", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	errs, err := deps.Store.ListErrorLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "recent enough", errs[0].ErrorMessage)
}

func TestCleanupAlias(t *testing.T) {
	t.Parallel()

	executors := RegisterAllTasks(newTestDeps(t, nil))
	assert.NotNil(t, executors[TypeCleanupOldLogs])
	assert.True(t, IsKnownType(TypeCleanupOldLogs))
	assert.False(t, IsKnownType("send_newsletter"))
}

func TestHealthCheckBots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	deps := newTestDeps(t, map[string]telegram.Result{
		"1:good":    {OK: true},
		"2:revoked": {OK: false, Err: apperrors.NewInvalidToken("Invalid bot token", nil)},
		"3:flaky":   {OK: false, Err: apperrors.NewTimeout("Telegram API timeout", nil)},
	})
	for id, token := range map[string]string{"good_bot": "1:good", "revoked_bot": "2:revoked", "flaky_bot": "3:flaky"} {
		require.NoError(t, deps.Store.CreateBot(ctx, &database.BotRegistration{BotID: id, BotToken: token}))
	}

	result, err := RegisterAllTasks(deps)[TypeHealthCheckBots](ctx, database.BackgroundTask{})
	require.NoError(t, err)
	assert.Equal(t, "checked 3 bots: 1 healthy, 1 deactivated, 1 failed", result)

	revoked, err := deps.Store.GetBot(ctx, "revoked_bot")
	require.NoError(t, err)
	assert.False(t, revoked.IsActive)
	_, pooled := deps.Pool.Get("revoked_bot")
	assert.False(t, pooled)

	flaky, err := deps.Store.GetBot(ctx, "flaky_bot")
	require.NoError(t, err)
	assert.True(t, flaky.IsActive, "transient failures never deactivate")
	assert.Equal(t, 1, flaky.ErrorCount)

	good, err := deps.Store.GetBot(ctx, "good_bot")
	require.NoError(t, err)
	assert.NotNil(t, good.LastActivity)
}

// relayClient answers every send with the outcome scripted for its token.
type relayClient struct {
	scriptedClient
	send telegram.Result
	log  *sentLog
}

func (c relayClient) SendMessage(_ context.Context, chatID int64, _ string) telegram.Result {
	c.log.add(chatID)
	return c.send
}

type sentLog struct {
	mu    sync.Mutex
	chats []int64
}

func (l *sentLog) add(chatID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chats = append(l.chats, chatID)
}

func (l *sentLog) all() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.chats...)
}

func loadMessage(t *testing.T, store database.Store, botID string, id int64) database.MessageLog {
	t.Helper()
	logs, err := store.ListMessageLogs(context.Background(), botID, 50)
	require.NoError(t, err)
	for _, ml := range logs {
		if ml.ID == id {
			return ml
		}
	}
	t.Fatalf("message %d of %s not found", id, botID)
	return database.MessageLog{}
}

func TestRetryFailedMessagesResends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newTestDeps(t, nil)

	sent := &sentLog{}
	sends := map[string]telegram.Result{
		"1:good": {OK: true},
		"2:down": {Error: "Telegram API timeout", Err: apperrors.NewTimeout("Telegram API timeout", nil)},
	}
	deps.Pool = telegram.NewPool(func(token string) (telegram.Client, error) {
		return relayClient{send: sends[token], log: sent}, nil
	}, deps.Logger)

	for id, token := range map[string]string{"good_bot": "1:good", "down_bot": "2:down", "gone_bot": "3:gone"} {
		require.NoError(t, deps.Store.CreateBot(ctx, &database.BotRegistration{BotID: id, BotToken: token}))
	}
	_, err := deps.Store.DeactivateBot(ctx, "gone_bot")
	require.NoError(t, err)

	now := time.Now().UTC()
	failedReply := func(botID string, chatID int64, attempts int, ago time.Duration, code string) int64 {
		ml := &database.MessageLog{BotID: botID, ChatID: chatID, MessageText: "/start"}
		require.NoError(t, deps.Store.CreateMessageLog(ctx, ml))
		ml.BotResponse = database.Ptr("welcome")
		for i := 0; i < attempts; i++ {
			ml.RecordAttempt(now.Add(-ago), code)
		}
		require.NoError(t, deps.Store.UpdateMessageLog(ctx, ml))
		return ml.ID
	}
	due := failedReply("good_bot", 1, 1, 10*time.Minute, database.MessageErrorSendFailed)
	early := failedReply("good_bot", 2, 1, time.Minute, database.MessageErrorSendFailed)
	capped := failedReply("good_bot", 3, 3, 48*time.Hour, database.MessageErrorSendFailed)
	blocked := failedReply("good_bot", 4, 1, time.Hour, database.MessageErrorUserBlocked)
	flaky := failedReply("down_bot", 5, 2, time.Hour, database.MessageErrorSendFailed)
	orphan := failedReply("gone_bot", 6, 1, time.Hour, database.MessageErrorSendFailed)

	run := RegisterAllTasks(deps)[TypeRetryFailedMessages]
	result, err := run(ctx, database.BackgroundTask{})
	require.NoError(t, err)
	assert.Equal(t, "retried 2 messages: 1 delivered, 1 failed, 1 waiting, 1 skipped", result)
	assert.Equal(t, []int64{1, 5}, sent.all())

	tests := []struct {
		name      string
		botID     string
		id        int64
		status    string
		attempts  int
		errorCode string
	}{
		{name: "due reply is delivered", botID: "good_bot", id: due, status: database.MessageStatusDelivered, attempts: 2},
		{name: "backoff not elapsed", botID: "good_bot", id: early, status: database.MessageStatusFailed, attempts: 1, errorCode: database.MessageErrorSendFailed},
		{name: "attempt cap reached", botID: "good_bot", id: capped, status: database.MessageStatusFailed, attempts: 3, errorCode: database.MessageErrorSendFailed},
		{name: "blocked user", botID: "good_bot", id: blocked, status: database.MessageStatusFailed, attempts: 1, errorCode: database.MessageErrorUserBlocked},
		{name: "failed resend counts", botID: "down_bot", id: flaky, status: database.MessageStatusFailed, attempts: 3, errorCode: apperrors.CodeTimeout},
		{name: "inactive bot", botID: "gone_bot", id: orphan, status: database.MessageStatusFailed, attempts: 1, errorCode: database.MessageErrorSendFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ml := loadMessage(t, deps.Store, tt.botID, tt.id)
			assert.Equal(t, tt.status, ml.Status)
			assert.Equal(t, tt.attempts, ml.DeliveryAttempts)
			if tt.errorCode == "" {
				assert.Nil(t, ml.ErrorCode)
				return
			}
			require.NotNil(t, ml.ErrorCode)
			assert.Equal(t, tt.errorCode, *ml.ErrorCode)
		})
	}

	result, err = run(ctx, database.BackgroundTask{})
	require.NoError(t, err)
	assert.Equal(t, "retried 0 messages: 0 delivered, 0 failed, 1 waiting, 1 skipped", result)
	assert.Equal(t, []int64{1, 5}, sent.all(), "capped replies are never sent again")
}

func TestRetryDueFollowsBackoff(t *testing.T) {
	t.Parallel()
	backoff := []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour}
	now := time.Now().UTC()

	tests := []struct {
		name     string
		attempts int
		ago      time.Duration
		never    bool
		want     bool
	}{
		{name: "never attempted", never: true, want: true},
		{name: "first wait pending", attempts: 1, ago: 4 * time.Minute},
		{name: "first wait elapsed", attempts: 1, ago: 6 * time.Minute, want: true},
		{name: "second wait pending", attempts: 2, ago: 10 * time.Minute},
		{name: "second wait elapsed", attempts: 2, ago: 20 * time.Minute, want: true},
		{name: "last wait repeats", attempts: 5, ago: 59 * time.Minute},
		{name: "last wait elapsed", attempts: 5, ago: 61 * time.Minute, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &database.MessageLog{DeliveryAttempts: tt.attempts}
			if !tt.never {
				msg.LastAttemptAt = database.Ptr(now.Add(-tt.ago))
			}
			assert.Equal(t, tt.want, retryDue(msg, backoff, now))
		})
	}
}

func TestEnqueueJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	deps := newTestDeps(t, nil)

	jobs := RegisterScheduledTasks(deps)
	require.Contains(t, jobs, TypeHealthCheckBots)
	require.NoError(t, jobs[TypeHealthCheckBots](ctx))

	pending, err := deps.Store.ListPendingTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, TypeHealthCheckBots, pending[0].TaskType)
}
