// Package bot wires the long-running parts of the service together: the HTTP
// server, the cron scheduler, the background task poller, the service status
// refresh and the audit writer.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telegive/bot-service/internal/bot/tasks"
	"github.com/telegive/bot-service/internal/config"
	"github.com/telegive/bot-service/internal/database"
	"github.com/telegive/bot-service/internal/logger"
)

// AuditWriter drains queued audit records until its context ends.
type AuditWriter interface {
	Run(ctx context.Context) error
	Done() <-chan struct{}
}

// AppDeps are the components App runs.
type AppDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Store     database.Store
	Server    *http.Server
	Scheduler *Scheduler
	Poller    *Poller
	Audit     AuditWriter
	// RefreshStatus checks the sibling services and updates the status cache.
	RefreshStatus func(ctx context.Context)
}

// App manages the lifecycle of every component.
type App struct {
	AppDeps
	logger *slog.Logger
}

// NewApp creates an App. Nothing starts until Run.
func NewApp(deps AppDeps) *App {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	return &App{AppDeps: deps, logger: deps.Logger.With("component", "app")}
}

// Run starts every component and blocks until ctx is cancelled or one of them
// fails. Shutdown stops intake first (HTTP), then background work, then
// flushes the audit queue.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting application...")

	auditCtx, stopAudit := context.WithCancel(context.WithoutCancel(ctx))
	defer stopAudit()
	if a.Audit != nil {
		go func() {
			if err := a.Audit.Run(auditCtx); err != nil {
				a.logger.Error("Audit writer failed", "error", err)
			}
		}()
	}

	a.seedTasks(ctx)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Starting HTTP server...", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), a.Config.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Error during HTTP server shutdown", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		a.logger.Info("Starting scheduler...")
		if err := a.Scheduler.Start(); err != nil {
			a.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		if a.RefreshStatus != nil {
			if _, err := a.Scheduler.Every("service_status_refresh", a.Config.Poller.StatusRefresh, true, func() {
				a.RefreshStatus(context.Background())
			}); err != nil {
				a.logger.Error("Failed to schedule status refresh", "error", err)
			}
		}
		if err := a.Poller.Start(gCtx); err != nil {
			a.logger.Error("Failed to start poller", "error", err)
			_ = a.Scheduler.Stop()
			return fmt.Errorf("failed to start poller: %w", err)
		}

		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping background work...")

		if err := a.Poller.Stop(); err != nil {
			a.logger.Error("Error stopping poller", "error", err)
		}
		if err := a.Scheduler.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	a.logger.Info("Application running. Waiting for shutdown signal or error...")
	err := g.Wait()

	stopAudit()
	if a.Audit != nil {
		select {
		case <-a.Audit.Done():
		case <-time.After(a.Config.HTTP.ShutdownTimeout):
			a.logger.Warn("Timed out waiting for audit writer to flush")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Application stopped due to error", "error", err)
		return err
	}

	a.logger.Info("Application stopped gracefully.")
	return nil
}

// seedTasks enqueues the configured startup tasks once.
func (a *App) seedTasks(ctx context.Context) {
	for _, taskType := range a.Config.Poller.SeedOnStart {
		if !tasks.IsKnownType(taskType) {
			a.logger.Warn("Skipping unknown seed task", "task_type", taskType)
			continue
		}
		task := &database.BackgroundTask{TaskType: taskType}
		if err := a.Store.CreateTask(ctx, task); err != nil {
			a.logger.Error("Failed to seed startup task", "task_type", taskType, "error", err)
			continue
		}
		a.logger.Info("Seeded startup task", "task_type", taskType, "task_id", task.ID)
	}
}
