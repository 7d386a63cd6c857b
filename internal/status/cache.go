// Package status keeps the last known health of each sibling service.
// The background poller writes it, HTTP handlers read it.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/telegive/bot-service/internal/services"
)

// Service status values.
const (
	Connected    = "connected"
	Disconnected = "disconnected"
	Unknown      = "unknown"
	Stale        = "stale"
)

// Entry is the last health check result for one service.
type Entry struct {
	Status        string    `json:"status"`
	ResponseTime  float64   `json:"response_time"`
	Error         string    `json:"error,omitempty"`
	LastChecked   time.Time `json:"last_checked"`
	Authenticated bool      `json:"authenticated"`
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	updatedAt  time.Time
	services   []string
	staleAfter time.Duration
	now        func() time.Time
}

// NewCache returns an empty cache for the given service names.
func NewCache(serviceNames []string, staleAfter time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]Entry),
		services:   append([]string(nil), serviceNames...),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Set stores the result of one health check.
func (c *Cache) Set(service string, res *services.Result) {
	entry := Entry{
		Status:        Disconnected,
		ResponseTime:  res.ResponseTime,
		Error:         res.Error,
		LastChecked:   c.now().UTC(),
		Authenticated: res.Authenticated,
	}
	if res.Success {
		entry.Status = Connected
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[service] = entry
	c.updatedAt = entry.LastChecked
}

// Snapshot returns a copy of every configured service's entry. Services never
// checked are reported as unknown; entries older than staleAfter as stale.
func (c *Cache) Snapshot() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	out := make(map[string]Entry, len(c.services))
	for _, name := range c.services {
		entry, ok := c.entries[name]
		if !ok {
			out[name] = Entry{Status: Unknown, Error: "Cache not initialized"}
			continue
		}
		if c.staleAfter > 0 && now.Sub(entry.LastChecked) > c.staleAfter {
			entry.Status = Stale
		}
		out[name] = entry
	}
	return out
}

// UpdatedAt is the time of the last Set, zero if never written.
func (c *Cache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Refresh checks every service's /health concurrently and stores the results.
func Refresh(ctx context.Context, caller services.Caller, cache *Cache) {
	cache.Store(services.CheckAll(ctx, caller))
}

// Store saves every check that reached the service.
func (c *Cache) Store(checks map[string]services.HealthCheck) {
	for name, p := range checks {
		if p.Err == nil && p.Result != nil {
			c.Set(name, p.Result)
		}
	}
}
