package services

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// HealthPath is requested from every sibling service.
const HealthPath = "/health"

// HealthCheck is the outcome of one health call. Err is set only when the call
// could not be attempted (unknown service); transport failures land in Result.
type HealthCheck struct {
	Result *Result
	Err    error
}

// Healthy reports whether the service answered below 400.
func (h HealthCheck) Healthy() bool {
	return h.Err == nil && h.Result != nil && h.Result.Success
}

// CheckAll calls GET /health on every configured service concurrently with
// the health timeout, and returns the outcomes keyed by service name.
func CheckAll(ctx context.Context, caller Caller) map[string]HealthCheck {
	names := caller.Services()
	checks := make([]HealthCheck, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			res, err := caller.Call(ctx, Request{
				Service: name,
				Path:    HealthPath,
				Timeout: caller.HealthTimeout(),
			})
			checks[i] = HealthCheck{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]HealthCheck, len(names))
	for i, name := range names {
		out[name] = checks[i]
	}
	return out
}
