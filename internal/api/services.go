package api

import (
	"net/http"

	"github.com/telegive/bot-service/internal/services"
)

type serviceTestRequest struct {
	Service  string `json:"service"  validate:"required"`
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"   validate:"omitempty,oneof=GET POST PUT DELETE get post put delete"`
	Data     any    `json:"data"`
}

// handleServiceTest performs one call to a sibling service and echoes the
// Result. Transport failures are part of the Result and still answer 200.
func (s *Server) handleServiceTest(w http.ResponseWriter, r *http.Request) {
	var req serviceTestRequest
	if err := decodeJSON(w, r, s.Config.HTTP.MaxBodyBytes, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Endpoint == "" {
		req.Endpoint = "/health"
	}

	res, err := s.Services.Call(r.Context(), services.Request{
		Service: req.Service,
		Path:    req.Endpoint,
		Method:  req.Method,
		Body:    req.Data,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
