package status

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telegive/bot-service/internal/services"
)

type fakeCaller struct {
	mu    sync.Mutex
	calls []services.Request
	down  map[string]bool
}

func (f *fakeCaller) Call(_ context.Context, req services.Request) (*services.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.down[req.Service] {
		return &services.Result{ServiceName: req.Service, Error: "Service unavailable"}, nil
	}
	return &services.Result{ServiceName: req.Service, Success: true, StatusCode: 200, ResponseTime: 0.01}, nil
}

func (f *fakeCaller) Services() []string           { return []string{"auth", "channel"} }
func (f *fakeCaller) HealthTimeout() time.Duration { return 2 * time.Second }

func TestSnapshotBeforeFirstRefresh(t *testing.T) {
	t.Parallel()

	cache := NewCache([]string{"auth", "channel"}, 5*time.Minute)
	snap := cache.Snapshot()

	require.Len(t, snap, 2)
	for _, entry := range snap {
		assert.Equal(t, Unknown, entry.Status)
		assert.Equal(t, "Cache not initialized", entry.Error)
	}
	assert.True(t, cache.UpdatedAt().IsZero())
}

func TestRefreshAndStaleness(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{down: map[string]bool{"channel": true}}
	cache := NewCache(caller.Services(), 5*time.Minute)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	Refresh(context.Background(), caller, cache)

	require.Len(t, caller.calls, 2)
	for _, call := range caller.calls {
		assert.Equal(t, "/health", call.Path)
		assert.Equal(t, 2*time.Second, call.Timeout)
	}

	snap := cache.Snapshot()
	assert.Equal(t, Connected, snap["auth"].Status)
	assert.Equal(t, Disconnected, snap["channel"].Status)
	assert.Equal(t, "Service unavailable", snap["channel"].Error)
	assert.Equal(t, now, cache.UpdatedAt())

	now = now.Add(6 * time.Minute)
	snap = cache.Snapshot()
	assert.Equal(t, Stale, snap["auth"].Status)
	assert.Equal(t, Stale, snap["channel"].Status)
}
