// Package main is the entrypoint of the Telegive bot service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telegive/bot-service/internal/api"
	"github.com/telegive/bot-service/internal/auditlog"
	"github.com/telegive/bot-service/internal/bot"
	"github.com/telegive/bot-service/internal/bot/handlers"
	"github.com/telegive/bot-service/internal/bot/tasks"
	"github.com/telegive/bot-service/internal/config"
	"github.com/telegive/bot-service/internal/database"
	"github.com/telegive/bot-service/internal/logger"
	"github.com/telegive/bot-service/internal/services"
	"github.com/telegive/bot-service/internal/status"
	"github.com/telegive/bot-service/internal/telegram"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context) int {
	root := &cobra.Command{
		Use:           "telegive-bot",
		Short:         "Telegive bot service: Telegram webhook relay for the Telegive platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return exitError(run(cmd.Context()))
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "Path to configuration file")

	root.AddCommand(serveCmd(), migrateCmd(), enqueueCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			return int(code)
		}
		slog.Error("Command failed", "error", err)
		return 1
	}
	return 0
}

// exitCode lets a command fail with a specific process exit status.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func exitError(code int) error {
	if code == 0 {
		return nil
	}
	return exitCode(code)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the scheduler and the background poller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return exitError(run(cmd.Context()))
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			db, err := database.NewDB(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			database.CloseDB(db)
			log.Info("Migrations applied")
			return nil
		},
	}
}

func enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "enqueue <task_type>",
		Short:     "Insert a pending background task and exit",
		Args:      cobra.ExactArgs(1),
		ValidArgs: tasks.KnownTypes(),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskType := args[0]
			if !tasks.IsKnownType(taskType) {
				return fmt.Errorf("unknown task type %q (known: %v)", taskType, tasks.KnownTypes())
			}
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			db, err := database.NewDB(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer database.CloseDB(db)

			task := &database.BackgroundTask{TaskType: taskType}
			if err := database.NewStore(db, log).CreateTask(cmd.Context(), task); err != nil {
				return err
			}
			log.Info("Task enqueued", "task_id", task.ID, "task_type", taskType)
			return nil
		},
	}
}

// setup loads configuration and installs the default logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	return cfg, log, nil
}

// run initializes every component, runs the service until ctx is cancelled
// and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	cfg, log, err := setup()
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		return 1
	}
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	audit := auditlog.NewAsyncSink(auditlog.NewStoreSink(store, log), cfg.Audit.QueueSize, log)
	caller := services.NewClient(cfg.Services, audit, log)
	statusCache := status.NewCache(caller.Services(), cfg.Poller.StatusStaleAfter)
	factory := telegram.NewFactory(cfg.Telegram, log)
	pool := telegram.NewPool(factory, log)

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Store:    store,
		Services: caller,
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
		Pool:   pool,
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterScheduledTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	poller := bot.NewPoller(store, tasks.RegisterAllTasks(tDeps), cfg.Poller, sched, log)

	server := api.NewServer(api.Deps{
		Logger:     log,
		Config:     cfg,
		Store:      store,
		Services:   caller,
		Pool:       pool,
		NewClient:  factory,
		Dispatcher: handlers.NewDispatcher(hDeps),
		Audit:      audit,
		Status:     statusCache,
		Poller:     poller,
	})

	app := bot.NewApp(bot.AppDeps{
		Logger:    log,
		Config:    cfg,
		Store:     store,
		Server:    api.NewHTTPServer(cfg.HTTP, server.Routes()),
		Scheduler: sched,
		Poller:    poller,
		Audit:     audit,
		RefreshStatus: func(ctx context.Context) {
			status.Refresh(ctx, caller, statusCache)
		},
	})

	log.Info("Starting Telegive bot service...", "version", api.Version, "port", cfg.HTTP.Port)
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Service stopped gracefully.")
	return 0
}
