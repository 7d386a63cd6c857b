// Package services calls the sibling Telegive services (auth, channel,
// participant) over HTTP and records every attempt as a ServiceInteraction.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/telegive/bot-service/internal/auditlog"
	"github.com/telegive/bot-service/internal/config"
	"github.com/telegive/bot-service/internal/database"
	apperrors "github.com/telegive/bot-service/internal/errors"
	"github.com/telegive/bot-service/internal/logger"
	"github.com/telegive/bot-service/internal/metrics"
)

// AuthService is the only service that receives the service token header.
const AuthService = "auth"

// Header names used on outbound calls.
const (
	HeaderServiceToken = "X-Service-Token"
	HeaderRequestID    = "X-Request-ID"
)

const maxErrorBody = 200

// Request describes one outbound call.
type Request struct {
	Service string
	Path    string
	Method  string
	// Body is JSON-encoded when non-nil.
	Body any
	// Timeout overrides the configured default when positive.
	Timeout time.Duration
}

// Result is the outcome of a call. Transport failures are reported here,
// not as a returned error.
type Result struct {
	Success       bool    `json:"success"`
	ServiceName   string  `json:"service_name"`
	Endpoint      string  `json:"endpoint"`
	Method        string  `json:"method"`
	StatusCode    int     `json:"status_code,omitempty"`
	Data          any     `json:"data,omitempty"`
	Error         string  `json:"error,omitempty"`
	ErrorType     string  `json:"error_type,omitempty"`
	ResponseTime  float64 `json:"response_time"`
	Authenticated bool    `json:"authenticated"`
	// Err carries the typed failure (TIMEOUT, CONNECTION_ERROR, INTERNAL).
	Err error `json:"-"`
}

// Caller is implemented by Client. Consumers depend on this.
type Caller interface {
	Call(ctx context.Context, req Request) (*Result, error)
	Services() []string
	HealthTimeout() time.Duration
}

// Client is the HTTP client for sibling services.
type Client struct {
	urls          map[string]string
	authToken     string
	userAgent     string
	timeout       time.Duration
	healthTimeout time.Duration
	httpClient    *http.Client
	sink          auditlog.Sink
	logger        *slog.Logger
}

// NewClient builds a client from configuration. sink receives one record per
// call attempt.
func NewClient(cfg config.ServicesConfig, sink auditlog.Sink, log *slog.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	urls := make(map[string]string, len(cfg.URLs))
	for name, u := range cfg.URLs {
		urls[name] = strings.TrimRight(u, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultServiceTimeout
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = config.DefaultServiceHealthTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	return &Client{
		urls:          urls,
		authToken:     cfg.AuthToken,
		userAgent:     userAgent,
		timeout:       timeout,
		healthTimeout: healthTimeout,
		httpClient:    &http.Client{},
		sink:          sink,
		logger:        log.With("component", "service_client"),
	}
}

// Services returns the configured service names, sorted.
func (c *Client) Services() []string {
	names := make([]string, 0, len(c.urls))
	for name := range c.urls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthTimeout is the timeout used for /health checks.
func (c *Client) HealthTimeout() time.Duration {
	return c.healthTimeout
}

// Call performs one HTTP request against a configured service. It returns an
// error only for unknown services and unsupported methods, in which case no
// request is made and nothing is recorded.
func (c *Client) Call(ctx context.Context, req Request) (*Result, error) {
	base, ok := c.urls[req.Service]
	if !ok {
		return nil, apperrors.NewUnknownService(req.Service)
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported method %q", req.Method), nil)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	res := &Result{
		ServiceName:   req.Service,
		Endpoint:      req.Path,
		Method:        method,
		Authenticated: req.Service == AuthService && c.authToken != "",
	}

	start := time.Now()
	c.do(ctx, base, method, req, timeout, res)
	res.ResponseTime = time.Since(start).Seconds()

	c.observe(ctx, res)
	return res, nil
}

func (c *Client) do(ctx context.Context, base, method string, req Request, timeout time.Duration, res *Result) {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			res.Err = apperrors.NewValidationError("request body is not JSON-encodable", err)
			res.Error = res.Err.Error()
			return
		}
		body = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, joinURL(base, req.Path), body)
	if err != nil {
		res.Err = apperrors.NewInternal("failed to build request", err)
		res.Error = res.Err.Error()
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(HeaderRequestID, requestID(ctx))
	if res.Authenticated {
		httpReq.Header.Set(HeaderServiceToken, c.authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		res.Err = classifyTransportError(err)
		res.Error = apperrors.PublicMessage(res.Err)
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	res.StatusCode = resp.StatusCode
	if err != nil {
		res.Err = classifyTransportError(err)
		res.Error = apperrors.PublicMessage(res.Err)
		return
	}

	res.Data = decodeBody(raw)
	res.Success = resp.StatusCode < http.StatusBadRequest
	if !res.Success {
		res.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		if len(raw) > 0 {
			res.Error += ": " + logger.Truncate(strings.TrimSpace(string(raw)), maxErrorBody)
		}
	}
}

// observe emits the interaction record, metrics and a log line.
func (c *Client) observe(ctx context.Context, res *Result) {
	outcome := "success"
	switch {
	case res.Success:
	case res.Err != nil:
		res.ErrorType = apperrors.Code(res.Err)
		outcome = strings.ToLower(res.ErrorType)
	default:
		outcome = "http_error"
	}
	metrics.ServiceCallsTotal.WithLabelValues(res.ServiceName, outcome).Inc()
	metrics.ServiceCallDuration.WithLabelValues(res.ServiceName).Observe(res.ResponseTime)

	rec := database.ServiceInteraction{
		ServiceName:  res.ServiceName,
		Endpoint:     res.Endpoint,
		Method:       res.Method,
		ResponseTime: res.ResponseTime,
		Success:      res.Success,
	}
	if res.StatusCode != 0 {
		rec.StatusCode = database.Ptr(res.StatusCode)
	}
	if res.Error != "" {
		rec.ErrorMessage = database.Ptr(res.Error)
	}
	if c.sink != nil {
		c.sink.RecordInteraction(ctx, rec)
	}

	log := c.logger.With(
		"service", res.ServiceName,
		"endpoint", res.Endpoint,
		"method", res.Method,
		"status_code", res.StatusCode,
		"response_time", res.ResponseTime,
	)
	if res.Success {
		log.DebugContext(ctx, "Service call succeeded")
	} else {
		log.WarnContext(ctx, "Service call failed", "error", res.Error)
	}
}

// joinURL appends path to base, keeping any query string in path.
func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// decodeBody returns the parsed JSON body, or the raw text when it is not
// JSON. An empty body yields nil.
func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return string(raw)
	}
	return data
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeout("Service timeout", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTimeout("Service timeout", err)
	}
	var opErr *net.OpError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &urlErr) {
		return apperrors.NewConnectionError("Service unavailable", err)
	}
	return apperrors.NewInternal("Service call failed", err)
}

// requestID reuses the inbound request id when there is one.
func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
