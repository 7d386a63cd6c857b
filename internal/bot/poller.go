package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/telegive/bot-service/internal/bot/tasks"
	"github.com/telegive/bot-service/internal/config"
	"github.com/telegive/bot-service/internal/database"
	"github.com/telegive/bot-service/internal/logger"
	"github.com/telegive/bot-service/internal/metrics"
)

// Poller states.
const (
	PollerStopped = "stopped"
	PollerRunning = "running"
)

// jobRunner is the part of Scheduler the poller uses.
type jobRunner interface {
	Every(name string, interval time.Duration, immediate bool, fn func()) (uuid.UUID, error)
	Remove(id uuid.UUID) error
}

// PollerStatus is reported by the health and admin endpoints.
type PollerStatus struct {
	State     string     `json:"state"`
	Interval  string     `json:"interval"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Completed int64      `json:"tasks_completed"`
	Failed    int64      `json:"tasks_failed"`
}

// Poller drains pending background tasks in batches.
type Poller struct {
	store     database.Store
	executors map[string]tasks.Executor
	cfg       config.PollerConfig
	runner    jobRunner
	logger    *slog.Logger

	mu     sync.Mutex
	state  string
	jobID  uuid.UUID
	cancel context.CancelFunc

	// iteration serializes RunOnce; Stop acquires it to wait for a run in flight.
	iteration sync.Mutex

	statsMu   sync.Mutex
	lastRun   time.Time
	lastError string
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPoller creates a stopped poller.
func NewPoller(store database.Store, executors map[string]tasks.Executor, cfg config.PollerConfig, runner jobRunner, log *slog.Logger) *Poller {
	if log == nil {
		log = logger.Discard()
	}
	return &Poller{
		store:     store,
		executors: executors,
		cfg:       cfg,
		runner:    runner,
		logger:    log.With("component", "background_poller"),
		state:     PollerStopped,
	}
}

// Start moves the poller from stopped to running. Iterations run on the
// scheduler until Stop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == PollerRunning {
		return fmt.Errorf("poller is already running")
	}

	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	id, err := p.runner.Every("background_poller", p.cfg.Interval, false, func() {
		if _, err := p.RunOnce(baseCtx); err != nil {
			p.logger.Error("Poller iteration failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return err
	}

	p.jobID = id
	p.cancel = cancel
	p.state = PollerRunning
	p.logger.Info("Starting background poller", "interval", p.cfg.Interval, "batch_size", p.cfg.BatchSize)
	return nil
}

// Stop moves the poller to stopped and blocks until an in-flight iteration
// has finished.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PollerRunning {
		return nil
	}

	err := p.runner.Remove(p.jobID)
	p.iteration.Lock()
	p.iteration.Unlock() //nolint:staticcheck // wait for the running iteration
	p.cancel()

	p.state = PollerStopped
	p.logger.Info("Background poller stopped")
	return err
}

// State returns "running" or "stopped".
func (p *Poller) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status returns the state together with run statistics.
func (p *Poller) Status() PollerStatus {
	st := PollerStatus{
		State:     p.State(),
		Interval:  p.cfg.Interval.String(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	if !p.lastRun.IsZero() {
		st.LastRun = database.Ptr(p.lastRun)
	}
	st.LastError = p.lastError
	return st
}

// RunOnce fails tasks left running past TaskTimeout, processes up to
// BatchSize pending tasks, oldest first, then deletes terminal tasks older
// than the retention window. It returns the number of tasks it executed.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	p.iteration.Lock()
	defer p.iteration.Unlock()

	start := time.Now()
	defer func() {
		metrics.PollerIterationDuration.Observe(time.Since(start).Seconds())
	}()

	staleErr := p.failStale(ctx)
	processed, err := p.runBatch(ctx)

	cutoff := time.Now().UTC().Add(-p.cfg.TaskRetention)
	purged, purgeErr := p.store.DeleteFinishedTasksBefore(ctx, cutoff)
	if purgeErr != nil {
		p.logger.WarnContext(ctx, "Failed to purge old tasks", "error", purgeErr)
	} else if purged > 0 {
		p.logger.InfoContext(ctx, "Purged old background tasks", "deleted", purged)
	}

	err = errors.Join(staleErr, err, purgeErr)
	p.statsMu.Lock()
	p.lastRun = start.UTC()
	p.lastError = ""
	if err != nil {
		p.lastError = err.Error()
	}
	p.statsMu.Unlock()

	return processed, err
}

// StaleTaskReason is stored on tasks failed for exceeding the task timeout.
const StaleTaskReason = "task timed out while running; marked as failed"

// failStale recovers tasks whose worker died mid-run. They end up failed so
// the retention purge can remove them.
func (p *Poller) failStale(ctx context.Context) error {
	if p.cfg.TaskTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-p.cfg.TaskTimeout)
	failed, err := p.store.FailStaleTasks(ctx, cutoff, StaleTaskReason)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to recover stale tasks", "error", err)
		return err
	}
	if failed > 0 {
		p.failed.Add(failed)
		p.logger.WarnContext(ctx, "Marked stale running tasks as failed", "count", failed, "timeout", p.cfg.TaskTimeout)
	}
	return nil
}

func (p *Poller) runBatch(ctx context.Context) (int, error) {
	pending, err := p.store.ListPendingTasks(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending tasks: %w", err)
	}

	processed := 0
	for _, task := range pending {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if p.process(ctx, task) {
			processed++
		}
	}
	return processed, nil
}

// process runs one task to a terminal state. It returns false when the task
// was no longer pending.
func (p *Poller) process(ctx context.Context, task database.BackgroundTask) bool {
	log := p.logger.With("task_id", task.ID, "task_type", task.TaskType)

	started, err := p.store.StartTask(ctx, task.ID, time.Now())
	if err != nil {
		log.ErrorContext(ctx, "Failed to mark task running", "error", err)
		return false
	}
	if !started {
		log.DebugContext(ctx, "Task already taken, skipping")
		return false
	}

	log.InfoContext(ctx, "Running background task")
	startTime := time.Now()
	result, execErr := p.execute(ctx, task)

	if execErr != nil {
		task.Status = database.TaskStatusFailed
		task.ErrorMessage = database.Ptr(execErr.Error())
		p.failed.Add(1)
		log.ErrorContext(ctx, "Background task failed", "error", execErr, "duration", time.Since(startTime))
	} else {
		task.Status = database.TaskStatusCompleted
		task.Result = database.Ptr(result)
		p.completed.Add(1)
		log.InfoContext(ctx, "Background task completed", "result", result, "duration", time.Since(startTime))
	}
	metrics.TasksProcessedTotal.WithLabelValues(task.TaskType, task.Status).Inc()

	if err := p.store.FinishTask(context.WithoutCancel(ctx), &task); err != nil {
		log.ErrorContext(ctx, "Failed to store task outcome", "error", err)
	}
	return true
}

func (p *Poller) execute(ctx context.Context, task database.BackgroundTask) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "Background task panicked",
				"task_id", task.ID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	exec, ok := p.executors[task.TaskType]
	if !ok {
		return "", fmt.Errorf("unknown task type: %s", task.TaskType)
	}
	return exec(ctx, task)
}
