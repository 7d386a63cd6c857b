package api

import (
	"context"
	"net/http"
	"time"

	"github.com/telegive/bot-service/internal/database"
	"github.com/telegive/bot-service/internal/services"
	"github.com/telegive/bot-service/internal/status"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"service":   ServiceName,
		"version":   Version,
		"status":    "running",
		"timestamp": time.Now().UTC(),
	}
	if s.Status != nil {
		body["services"] = s.Status.Snapshot()
		if at := s.Status.UpdatedAt(); !at.IsZero() {
			body["status_updated_at"] = at
		}
	}
	writeJSON(w, http.StatusOK, body)
}

type serviceHealth struct {
	Status       string  `json:"status"`
	ResponseTime float64 `json:"response_time"`
	Error        string  `json:"error,omitempty"`
}

// handleHealth reports 503 only when the store is unreachable. Service
// outages degrade the status but keep 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body := map[string]any{
		"service":   ServiceName,
		"version":   Version,
		"timestamp": time.Now().UTC(),
	}

	dbOK := true
	if err := s.Store.Ping(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Health check database ping failed", "error", err)
		dbOK = false
		body["database"] = "disconnected"
	} else {
		body["database"] = "connected"
	}

	svc := s.checkServices(ctx)
	body["services"] = svc

	if dbOK {
		if n, err := s.Store.CountActiveBots(ctx); err == nil {
			body["active_bots"] = n
		}
		if n, err := s.Store.CountErrorLogsSince(ctx, time.Now().UTC().Add(-24*time.Hour)); err == nil {
			body["errors_24h"] = n
		}
		if n, err := s.Store.CountTasksByStatus(ctx, database.TaskStatusPending); err == nil {
			body["pending_tasks"] = n
		}
	}
	if s.Poller != nil {
		body["poller"] = s.Poller.Status()
	}

	code := http.StatusOK
	switch {
	case !dbOK:
		body["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	case anyDown(svc):
		body["status"] = "degraded"
	default:
		body["status"] = "healthy"
	}
	writeJSON(w, code, body)
}

func (s *Server) checkServices(ctx context.Context) map[string]serviceHealth {
	out := make(map[string]serviceHealth)
	if s.Services == nil {
		return out
	}

	checks := services.CheckAll(ctx, s.Services)
	if s.Status != nil {
		s.Status.Store(checks)
	}
	for name, p := range checks {
		h := serviceHealth{Status: status.Disconnected}
		switch {
		case p.Err != nil:
			h.Error = p.Err.Error()
		case p.Result != nil:
			h.ResponseTime = p.Result.ResponseTime
			h.Error = p.Result.Error
		}
		if p.Healthy() {
			h.Status = status.Connected
		}
		out[name] = h
	}
	return out
}

func anyDown(svc map[string]serviceHealth) bool {
	for _, h := range svc {
		if h.Status != status.Connected {
			return true
		}
	}
	return false
}
