// Package connpool caps and tracks the set of live Connections for this
// gateway instance, grounded exactly on the original gateway's
// ConnectionManager (services/gateway/connection_manager.py): a hard cap
// on concurrent connections, periodic idle cleanup, and created/destroyed
// counters surfaced through the observability endpoint.
package connpool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-games/arcade-gateway/internal/conn"
	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

const (
	DefaultMaxConcurrent  = 8000
	DefaultCleanupInterval = 60 * time.Second
	DefaultMaxIdleTime     = 300 * time.Second
	DefaultStatsInterval   = 10 * time.Second
)

var ErrPoolExhausted = errors.New("connpool: max concurrent connections reached")

type Config struct {
	MaxConcurrent   int
	CleanupInterval time.Duration
	MaxIdleTime     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = DefaultMaxIdleTime
	}
	return c
}

type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.RWMutex
	connections map[uuid.UUID]*conn.Connection
	bySession   map[uuid.UUID]uuid.UUID // session id -> connection id

	totalCreated     atomic.Int64
	totalDestroyed   atomic.Int64
	peakConcurrent   atomic.Int64
	connectionErrors atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:         cfg.withDefaults(),
		logger:      logger,
		connections: make(map[uuid.UUID]*conn.Connection),
		bySession:   make(map[uuid.UUID]uuid.UUID),
		stopCh:      make(chan struct{}),
	}
}

// Acquire registers a newly-created Connection, rejecting it if the
// gateway is already at its concurrent connection cap.
func (p *Pool) Acquire(c *conn.Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.connections) >= p.cfg.MaxConcurrent {
		p.connectionErrors.Add(1)
		return ErrPoolExhausted
	}

	p.connections[c.ID()] = c
	p.totalCreated.Add(1)

	if n := int64(len(p.connections)); n > p.peakConcurrent.Load() {
		p.peakConcurrent.Store(n)
	}
	return nil
}

// Release removes a connection from the pool and closes it.
func (p *Pool) Release(id uuid.UUID) {
	p.mu.Lock()
	c, ok := p.connections[id]
	if ok {
		delete(p.connections, id)
		if sessionID, hasSession := c.SessionID(); hasSession {
			delete(p.bySession, sessionID)
		}
	}
	p.mu.Unlock()

	if ok {
		c.Close()
		p.totalDestroyed.Add(1)
	}
}

func (p *Pool) Get(id uuid.UUID) (*conn.Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.connections[id]
	return c, ok
}

// BindSession associates a connection with an authenticated session so
// GetBySession can address it by session instead of socket ID.
func (p *Pool) BindSession(connID, sessionID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.connections[connID]; ok {
		c.BindSession(sessionID)
		p.bySession[sessionID] = connID
	}
}

func (p *Pool) GetBySession(sessionID uuid.UUID) (*conn.Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	connID, ok := p.bySession[sessionID]
	if !ok {
		return nil, false
	}
	c, ok := p.connections[connID]
	return c, ok
}

// notifyDisconnect best-effort pushes a disconnected system envelope ahead
// of a server-initiated close, so the client can tell it apart from a
// network drop. Never blocks Release on a slow or dead client.
func (p *Pool) notifyDisconnect(c *conn.Connection, reason, code string) {
	payload, _ := json.Marshal(model.DisconnectedPayload{Reason: reason, Code: code})
	c.Send(&model.Envelope{Kind: model.KindSystem, Type: "disconnected", Priority: model.PriorityHigh, Data: payload}, 50*time.Millisecond)
}

// CleanupExpired closes connections idle past MaxIdleTime.
func (p *Pool) CleanupExpired() int {
	p.mu.RLock()
	var expired []uuid.UUID
	for id, c := range p.connections {
		if c.IsIdle(p.cfg.MaxIdleTime) {
			expired = append(expired, id)
		}
	}
	p.mu.RUnlock()

	for _, id := range expired {
		if c, ok := p.Get(id); ok {
			p.notifyDisconnect(c, "idle timeout", "TIMEOUT")
		}
		p.Release(id)
	}
	return len(expired)
}

// StartCleanupLoop runs CleanupExpired on CleanupInterval until ctx is
// cancelled or Stop is called.
func (p *Pool) StartCleanupLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				if n := p.CleanupExpired(); n > 0 {
					p.logger.Info("CONNPOOL_CLEANUP", slog.Int("expired", n))
				}
			}
		}
	}()
}

func (p *Pool) Stop() { p.stopOnce.Do(func() { close(p.stopCh) }) }

type Stats struct {
	Active           int
	TotalCreated      int64
	TotalDestroyed    int64
	PeakConcurrent    int64
	ConnectionErrors  int64
}

func (p *Pool) Stats() Stats {
	p.mu.RLock()
	active := len(p.connections)
	p.mu.RUnlock()
	return Stats{
		Active:           active,
		TotalCreated:     p.totalCreated.Load(),
		TotalDestroyed:   p.totalDestroyed.Load(),
		PeakConcurrent:   p.peakConcurrent.Load(),
		ConnectionErrors: p.connectionErrors.Load(),
	}
}

// CloseAll closes every live connection, used during graceful shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	ids := make([]uuid.UUID, 0, len(p.connections))
	for id := range p.connections {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if c, ok := p.Get(id); ok {
			p.notifyDisconnect(c, "server shutting down", "SHUTDOWN")
		}
		p.Release(id)
	}
}
