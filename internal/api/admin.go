package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/telegive/bot-service/internal/bot/tasks"
	"github.com/telegive/bot-service/internal/database"
	apperrors "github.com/telegive/bot-service/internal/errors"
)

const (
	defaultAdminLimit = 50
	maxAdminLimit     = 500
)

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultAdminLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperrors.NewValidationError("limit must be a positive integer", err)
	}
	return min(n, maxAdminLimit), nil
}

func (s *Server) handleAdminErrors(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	errs, err := s.Store.ListErrorLogs(r.Context(), limit)
	if err != nil {
		s.failInternal(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"errors":    errs,
		"count":     len(errs),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleAdminTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	recent, err := s.Store.ListRecentTasks(r.Context(), limit)
	if err != nil {
		s.failInternal(w, r, err, "")
		return
	}
	body := map[string]any{
		"tasks":      recent,
		"count":      len(recent),
		"task_types": tasks.KnownTypes(),
		"timestamp":  time.Now().UTC(),
	}
	if s.Poller != nil {
		body["poller"] = s.Poller.Status()
	}
	writeJSON(w, http.StatusOK, body)
}

type createTaskRequest struct {
	TaskType string `json:"task_type" validate:"required"`
	TaskData any    `json:"task_data"`
}

func (s *Server) handleAdminCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(w, r, s.Config.HTTP.MaxBodyBytes, &req); err != nil {
		writeError(w, err)
		return
	}
	if !tasks.IsKnownType(req.TaskType) {
		writeError(w, apperrors.NewValidationError(
			fmt.Sprintf("unknown task_type %q, expected one of: %s", req.TaskType, strings.Join(tasks.KnownTypes(), ", ")), nil))
		return
	}

	data, err := encodeTaskData(req.TaskData)
	if err != nil {
		writeError(w, err)
		return
	}
	task := &database.BackgroundTask{TaskType: req.TaskType}
	if data != "" {
		task.TaskData = database.Ptr(data)
	}

	if err := s.Store.CreateTask(r.Context(), task); err != nil {
		s.failInternal(w, r, err, "")
		return
	}
	s.logger.InfoContext(r.Context(), "Background task created", "task_id", task.ID, "task_type", task.TaskType)
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "success",
		"task":   task,
	})
}

// encodeTaskData stores strings as-is and anything else as JSON.
func encodeTaskData(v any) (string, error) {
	switch d := v.(type) {
	case nil:
		return "", nil
	case string:
		return d, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.NewValidationError("task_data is not JSON-encodable", err)
	}
	return string(raw), nil
}
