package bot

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telegive/bot-service/internal/bot/tasks"
	"github.com/telegive/bot-service/internal/config"
	"github.com/telegive/bot-service/internal/database"
	"github.com/telegive/bot-service/internal/logger"
	"github.com/telegive/bot-service/internal/telegram"
)

// manualRunner records scheduled jobs instead of running them.
type manualRunner struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]func()
	removed []uuid.UUID
}

func newManualRunner() *manualRunner {
	return &manualRunner{jobs: make(map[uuid.UUID]func())}
}

func (m *manualRunner) Every(_ string, _ time.Duration, _ bool, fn func()) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.jobs[id] = fn
	return id, nil
}

func (m *manualRunner) Remove(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	m.removed = append(m.removed, id)
	return nil
}

func (m *manualRunner) tick() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.jobs))
	for _, fn := range m.jobs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func newTestPoller(t *testing.T, executors map[string]tasks.Executor) (*Poller, database.Store, *manualRunner) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "poller.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	log := logger.Discard()
	store := database.NewStore(db, log)
	cfg := config.Default()
	if executors == nil {
		executors = tasks.RegisterAllTasks(tasks.TaskDeps{
			Logger: log,
			Store:  store,
			Config: cfg,
			Pool:   telegram.NewPool(func(string) (telegram.Client, error) { return nil, nil }, log),
		})
	}
	runner := newManualRunner()
	return NewPoller(store, executors, cfg.Poller, runner, log), store, runner
}

func TestPollerCleansOldLogs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, store, _ := newTestPoller(t, nil)

	old := time.Now().UTC().Add(-31 * 24 * time.Hour)
	require.NoError(t, store.CreateWebhookLog(ctx, &database.WebhookLog{BotID: "b", CreatedAt: old}))
	require.NoError(t, store.CreateWebhookLog(ctx, &database.WebhookLog{BotID: "b"}))
	task := &database.BackgroundTask{TaskType: tasks.TypeCleanupLogs}
	require.NoError(t, store.CreateTask(ctx, task))

	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	logs, err := store.ListWebhookLogs(ctx, "b", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	done, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, database.TaskStatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Contains(t, *done.Result, "deleted 1 rows")
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.EqualValues(t, 1, p.Status().Completed)
}

func TestPollerFailsUnknownAndPanickingTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, store, _ := newTestPoller(t, map[string]tasks.Executor{
		"explode": func(context.Context, database.BackgroundTask) (string, error) {
			panic("boom")
		},
	})

	unknown := &database.BackgroundTask{TaskType: "send_newsletter"}
	boom := &database.BackgroundTask{TaskType: "explode"}
	require.NoError(t, store.CreateTask(ctx, unknown))
	require.NoError(t, store.CreateTask(ctx, boom))

	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.GetTask(ctx, unknown.ID)
	require.NoError(t, err)
	assert.Equal(t, database.TaskStatusFailed, got.Status)
	assert.Equal(t, "unknown task type: send_newsletter", *got.ErrorMessage)

	got, err = store.GetTask(ctx, boom.ID)
	require.NoError(t, err)
	assert.Equal(t, database.TaskStatusFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, "boom")
	assert.EqualValues(t, 2, p.Status().Failed)
}

func TestPollerProcessesOldestFirstInBatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var mu sync.Mutex
	var order []int64
	p, store, _ := newTestPoller(t, map[string]tasks.Executor{
		"noop": func(_ context.Context, task database.BackgroundTask) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, task.ID)
			return "ok", nil
		},
	})
	p.cfg.BatchSize = 2

	var ids []int64
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		task := &database.BackgroundTask{TaskType: "noop", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, store.CreateTask(ctx, task))
		ids = append(ids, task.ID)
	}

	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, ids, order)
}

func TestPollerStartStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, store, runner := newTestPoller(t, nil)

	assert.Equal(t, PollerStopped, p.State())
	require.NoError(t, p.Start(ctx))
	assert.Equal(t, PollerRunning, p.State())
	assert.Error(t, p.Start(ctx))

	require.NoError(t, store.CreateTask(ctx, &database.BackgroundTask{TaskType: tasks.TypeRetryFailedMessages}))
	runner.tick()

	pending, err := store.ListPendingTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.NotNil(t, p.Status().LastRun)

	require.NoError(t, p.Stop())
	assert.Equal(t, PollerStopped, p.State())
	assert.Len(t, runner.removed, 1)
	require.NoError(t, p.Stop())
}

func TestPollerFailsStaleRunningTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, store, _ := newTestPoller(t, map[string]tasks.Executor{})
	now := time.Now().UTC()

	tests := []struct {
		name      string
		age       time.Duration
		wantState string
		purged    bool
	}{
		{name: "recently started stays running", age: time.Minute, wantState: database.TaskStatusRunning},
		{name: "past timeout is failed", age: 2 * time.Hour, wantState: database.TaskStatusFailed},
		{name: "past retention is failed then purged", age: 30 * 24 * time.Hour, purged: true},
	}

	ids := make([]int64, len(tests))
	for i, tt := range tests {
		task := &database.BackgroundTask{TaskType: "stuck", CreatedAt: now.Add(-tt.age)}
		require.NoError(t, store.CreateTask(ctx, task))
		started, err := store.StartTask(ctx, task.ID, now.Add(-tt.age))
		require.NoError(t, err)
		require.True(t, started)
		ids[i] = task.ID
	}

	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.EqualValues(t, 2, p.Status().Failed)

	for i, tt := range tests {
		got, err := store.GetTask(ctx, ids[i])
		require.NoError(t, err, tt.name)
		if tt.purged {
			assert.Nil(t, got, tt.name)
			continue
		}
		require.NotNil(t, got, tt.name)
		assert.Equal(t, tt.wantState, got.Status, tt.name)
		if tt.wantState == database.TaskStatusFailed {
			require.NotNil(t, got.ErrorMessage, tt.name)
			assert.Equal(t, StaleTaskReason, *got.ErrorMessage, tt.name)
			assert.NotNil(t, got.CompletedAt, tt.name)
		}
	}
}

func TestPollerStopWaitsForRunningIteration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	p, store, runner := newTestPoller(t, map[string]tasks.Executor{
		"slow": func(context.Context, database.BackgroundTask) (string, error) {
			close(entered)
			<-release
			return "done", nil
		},
	})
	task := &database.BackgroundTask{TaskType: "slow"}
	require.NoError(t, store.CreateTask(ctx, task))
	require.NoError(t, p.Start(ctx))

	go runner.tick()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("iteration never started")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- p.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an iteration was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the iteration finished")
	}

	assert.Equal(t, PollerStopped, p.State())
	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, database.TaskStatusCompleted, got.Status)
}
