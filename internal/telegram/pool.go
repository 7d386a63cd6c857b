package telegram

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/telegive/bot-service/internal/logger"
)

// PooledBot describes one cached client.
type PooledBot struct {
	BotID    string    `json:"bot_id"`
	Username string    `json:"bot_username,omitempty"`
	Token    string    `json:"token"`
	AddedAt  time.Time `json:"added_at"`
}

type poolEntry struct {
	client   Client
	token    string
	username string
	addedAt  time.Time
}

// Pool caches one Client per bot_id.
type Pool struct {
	mu      sync.Mutex
	entries map[string]poolEntry
	factory Factory
	logger  *slog.Logger
}

// NewPool returns an empty pool that builds missing clients with factory.
func NewPool(factory Factory, log *slog.Logger) *Pool {
	if log == nil {
		log = logger.Discard()
	}
	return &Pool{
		entries: make(map[string]poolEntry),
		factory: factory,
		logger:  log.With("component", "telegram_pool"),
	}
}

// Get returns the cached client for botID.
func (p *Pool) Get(botID string) (Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[botID]
	return e.client, ok
}

// Put caches client for botID, replacing any previous one.
func (p *Pool) Put(botID, token, username string, client Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[botID] = poolEntry{client: client, token: token, username: username, addedAt: time.Now().UTC()}
	p.logger.Info("Bot client pooled", "bot_id", botID, "token", logger.MaskToken(token))
}

// Acquire returns the cached client for botID when it was built for token,
// otherwise builds and caches a new one.
func (p *Pool) Acquire(botID, token string) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[botID]; ok && e.token == token {
		return e.client, nil
	}
	client, err := p.factory(token)
	if err != nil {
		return nil, err
	}
	p.entries[botID] = poolEntry{client: client, token: token, addedAt: time.Now().UTC()}
	p.logger.Debug("Bot client created", "bot_id", botID, "token", logger.MaskToken(token))
	return client, nil
}

// Remove evicts botID. It reports whether a client was cached.
func (p *Pool) Remove(botID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[botID]; !ok {
		return false
	}
	delete(p.entries, botID)
	p.logger.Info("Bot client evicted", "bot_id", botID)
	return true
}

// Snapshot lists the pooled bots sorted by bot_id, tokens masked.
func (p *Pool) Snapshot() []PooledBot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PooledBot, 0, len(p.entries))
	for id, e := range p.entries {
		out = append(out, PooledBot{
			BotID:    id,
			Username: e.username,
			Token:    logger.MaskToken(e.token),
			AddedAt:  e.addedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BotID < out[j].BotID })
	return out
}

// Len is the number of pooled clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
