package tasks

import (
	"context"
	"sort"
	"time"

	"github.com/telegive/bot-service/internal/database"
)

// Task types understood by the poller.
const (
	TypeCleanupLogs         = "cleanup_logs"
	TypeCleanupOldLogs      = "cleanup_old_logs"
	TypeHealthCheckBots     = "health_check_bots"
	TypeRetryFailedMessages = "retry_failed_messages"
)

// ScheduledTaskFunc defines the signature of cron-driven jobs.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// Executor runs one background task and returns its result summary.
type Executor func(ctx context.Context, task database.BackgroundTask) (string, error)

// RegisterAllTasks returns the executor for every known task type.
func RegisterAllTasks(deps TaskDeps) map[string]Executor {
	cleanup := newCleanupLogsTask(deps)

	executors := map[string]Executor{
		TypeCleanupLogs:         cleanup,
		TypeCleanupOldLogs:      cleanup,
		TypeHealthCheckBots:     newHealthCheckBotsTask(deps),
		TypeRetryFailedMessages: newRetryFailedMessagesTask(deps),
	}

	deps.Logger.Info("Initialized background task executors", "count", len(executors))
	return executors
}

// KnownTypes lists the task types RegisterAllTasks handles, sorted.
func KnownTypes() []string {
	types := []string{TypeCleanupLogs, TypeCleanupOldLogs, TypeHealthCheckBots, TypeRetryFailedMessages}
	sort.Strings(types)
	return types
}

// IsKnownType reports whether taskType has an executor.
func IsKnownType(taskType string) bool {
	for _, t := range KnownTypes() {
		if t == taskType {
			return true
		}
	}
	return false
}

// TaskCreator is the store method enqueue jobs need.
type TaskCreator interface {
	CreateTask(ctx context.Context, task *database.BackgroundTask) error
}

// RegisterScheduledTasks returns one cron job per known task type. Each job
// only enqueues a pending task; the poller executes it.
func RegisterScheduledTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	jobs := make(map[string]ScheduledTaskFunc)
	for _, taskType := range KnownTypes() {
		jobs[taskType] = NewEnqueueJob(deps.Store, taskType)
	}
	return jobs
}

// NewEnqueueJob returns a job that inserts one pending taskType task.
func NewEnqueueJob(store TaskCreator, taskType string) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		return store.CreateTask(ctx, &database.BackgroundTask{
			TaskType:  taskType,
			CreatedAt: time.Now().UTC(),
		})
	}
}
