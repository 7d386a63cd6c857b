// Package api exposes the HTTP surface of the service: Telegram webhooks,
// bot management, service diagnostics and the service-to-service endpoints.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telegive/bot-service/internal/auditlog"
	"github.com/telegive/bot-service/internal/bot"
	"github.com/telegive/bot-service/internal/bot/handlers"
	"github.com/telegive/bot-service/internal/config"
	"github.com/telegive/bot-service/internal/database"
	apperrors "github.com/telegive/bot-service/internal/errors"
	"github.com/telegive/bot-service/internal/logger"
	"github.com/telegive/bot-service/internal/services"
	"github.com/telegive/bot-service/internal/status"
	"github.com/telegive/bot-service/internal/telegram"
)

// ServiceName and Version are reported by GET /.
const (
	ServiceName = "telegive-bot-service"
	Version     = "1.1.0"
)

// PollerMonitor reports the background poller's state.
type PollerMonitor interface {
	Status() bot.PollerStatus
}

// Deps are the collaborators of every handler.
type Deps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      database.Store
	Services   services.Caller
	Pool       *telegram.Pool
	NewClient  telegram.Factory
	Dispatcher *handlers.Dispatcher
	Audit      auditlog.Sink
	Status     *status.Cache
	Poller     PollerMonitor
}

// Server holds the handlers. Build it with NewServer and mount Routes.
type Server struct {
	Deps
	logger *slog.Logger
}

// NewServer returns a Server over deps.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	return &Server{Deps: deps, logger: deps.Logger.With("component", "http_api")}
}

// Routes returns the chi router with every endpoint mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhook/{bot_id}", s.handleWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Post("/bots/register", s.handleRegisterBot)
		r.Get("/bots", s.handleListBots)
		r.Delete("/bots/{bot_id}", s.handleDeleteBot)
		r.Post("/services/test", s.handleServiceTest)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireServiceToken(s.Config.Services.Secret, s.logger))
			r.Get("/errors", s.handleAdminErrors)
			r.Get("/tasks", s.handleAdminTasks)
			r.Post("/tasks/create", s.handleAdminCreateTask)
		})
	})

	r.Route("/bot", func(r chi.Router) {
		r.Use(RequireServiceToken(s.Config.Services.Secret, s.logger))
		r.Post("/token/update", s.handleTokenUpdate)
		r.Get("/status", s.handleBotStatus)
	})

	return r
}

// NewHTTPServer builds the listening server from configuration.
func NewHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
}

// recordError writes an ErrorLog row through the audit sink.
func (s *Server) recordError(ctx context.Context, err error, endpoint, botID string, stack []byte) {
	if s.Audit == nil {
		return
	}
	rec := database.ErrorLog{
		ErrorType:    apperrors.Code(err),
		ErrorMessage: err.Error(),
		Endpoint:     database.Ptr(endpoint),
		CreatedAt:    time.Now().UTC(),
	}
	if botID != "" {
		rec.BotID = database.Ptr(botID)
	}
	if len(stack) > 0 {
		rec.StackTrace = database.Ptr(string(stack))
	}
	s.Audit.RecordError(ctx, rec)
}
