package database

import (
	"context"
	"fmt"
	"time"
)

const taskColumns = `id, task_type, task_data, status, result, error_message, created_at, started_at, completed_at`

func (s *sqlxStore) CreateTask(ctx context.Context, task *BackgroundTask) error {
	if task.TaskType == "" {
		return fmt.Errorf("task must have a task_type")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = utcNow()
	}
	task.Status = TaskStatusPending

	query := `
        INSERT INTO background_tasks (task_type, task_data, status, created_at)
        VALUES (:task_type, :task_data, :status, :created_at)
        RETURNING id`
	id, err := s.insertReturningID(ctx, s.db, query, task)
	if err != nil {
		logCtxErr(ctx, s.logger, "create_task", err)
		return fmt.Errorf("failed to create %s task: %w", task.TaskType, err)
	}
	task.ID = id
	s.logger.DebugContext(ctx, "Background task queued", "task_id", id, "task_type", task.TaskType)
	return nil
}

func (s *sqlxStore) GetTask(ctx context.Context, id int64) (*BackgroundTask, error) {
	var task BackgroundTask
	err := s.db.GetContext(ctx, &task, s.db.Rebind(`SELECT `+taskColumns+` FROM background_tasks WHERE id = ?`), id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return &task, nil
}

// ListPendingTasks returns pending tasks, oldest first.
func (s *sqlxStore) ListPendingTasks(ctx context.Context, limit int) ([]BackgroundTask, error) {
	tasks := []BackgroundTask{}
	query := s.db.Rebind(`SELECT ` + taskColumns + ` FROM background_tasks WHERE status = ? ORDER BY created_at, id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &tasks, query, TaskStatusPending, clampLimit(limit, maxListLimit)); err != nil {
		logCtxErr(ctx, s.logger, "list_pending_tasks", err)
		return nil, fmt.Errorf("failed to list pending tasks: %w", err)
	}
	return tasks, nil
}

func (s *sqlxStore) ListRecentTasks(ctx context.Context, limit int) ([]BackgroundTask, error) {
	tasks := []BackgroundTask{}
	query := s.db.Rebind(`SELECT ` + taskColumns + ` FROM background_tasks ORDER BY id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &tasks, query, clampLimit(limit, maxListLimit)); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (s *sqlxStore) CountTasksByStatus(ctx context.Context, status string) (int, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM background_tasks WHERE status = ?`, status)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s tasks: %w", status, err)
	}
	return n, nil
}

func (s *sqlxStore) StartTask(ctx context.Context, id int64, at time.Time) (bool, error) {
	affected, err := s.exec(ctx,
		`UPDATE background_tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		TaskStatusRunning, at.UTC(), id, TaskStatusPending)
	if err != nil {
		logCtxErr(ctx, s.logger, "start_task", err)
		return false, fmt.Errorf("failed to start task %d: %w", id, err)
	}
	return affected == 1, nil
}

func (s *sqlxStore) FinishTask(ctx context.Context, task *BackgroundTask) error {
	if !task.IsTerminal() {
		return fmt.Errorf("task %d finished with non-terminal status %q", task.ID, task.Status)
	}
	if task.CompletedAt == nil {
		task.CompletedAt = Ptr(utcNow())
	}
	query := `
        UPDATE background_tasks
        SET status = :status, result = :result, error_message = :error_message, completed_at = :completed_at
        WHERE id = :id`
	if _, err := s.db.NamedExecContext(ctx, query, task); err != nil {
		logCtxErr(ctx, s.logger, "finish_task", err)
		return fmt.Errorf("failed to finish task %d: %w", task.ID, err)
	}
	return nil
}

func (s *sqlxStore) DeleteFinishedTasksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := s.exec(ctx,
		`DELETE FROM background_tasks WHERE status IN (?, ?) AND created_at < ?`,
		TaskStatusCompleted, TaskStatusFailed, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished tasks: %w", err)
	}
	return deleted, nil
}

// FailStaleTasks marks running tasks started before startedBefore as failed.
func (s *sqlxStore) FailStaleTasks(ctx context.Context, startedBefore time.Time, reason string) (int64, error) {
	failed, err := s.exec(ctx,
		`UPDATE background_tasks SET status = ?, error_message = ?, completed_at = ? WHERE status = ? AND started_at < ?`,
		TaskStatusFailed, reason, utcNow(), TaskStatusRunning, startedBefore.UTC())
	if err != nil {
		logCtxErr(ctx, s.logger, "fail_stale_tasks", err)
		return 0, fmt.Errorf("failed to fail stale tasks: %w", err)
	}
	return failed, nil
}
