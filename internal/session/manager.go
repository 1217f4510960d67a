// Package session implements session authentication, renewal, and
// cross-instance lookup, grounded exactly on the original gateway's
// SessionManager (services/gateway/session_manager.py): local hot-session
// cache backed by a shared KV store, periodic auto-renewal of hot sessions
// (every SyncInterval), and an expiry sweep of the local cache
// (CleanupExpired). Nothing in this package runs CleanupExpired on a timer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
	"github.com/kestrel-games/arcade-gateway/internal/kv"
)

const (
	DefaultSessionTTL      = 30 * time.Minute
	DefaultRenewalThreshold = 5 * time.Minute
	DefaultSyncInterval     = 30 * time.Second
	DefaultCleanupInterval  = 60 * time.Second
	DefaultMaxInactiveTime  = time.Hour
)

var ErrSessionExpired = errors.New("session: expired")
var ErrSessionNotFound = errors.New("session: not found")

type Config struct {
	SessionTTL       time.Duration
	RenewalThreshold time.Duration
	SyncInterval     time.Duration
	CleanupInterval  time.Duration
	MaxInactiveTime  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.RenewalThreshold <= 0 {
		c.RenewalThreshold = DefaultRenewalThreshold
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.MaxInactiveTime <= 0 {
		c.MaxInactiveTime = DefaultMaxInactiveTime
	}
	return c
}

// Manager owns session lifecycle: creation, lookup-with-promote, renewal,
// and logout, backed by a local Cache and a shared kv.Store.
type Manager struct {
	cfg    Config
	cache  *Cache
	store  kv.Store
	logger *slog.Logger

	mu          sync.RWMutex
	userIndex   map[string]map[string]struct{} // playerID -> set of sessionID

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewManager(cfg Config, cache *Cache, store kv.Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:       cfg.withDefaults(),
		cache:     cache,
		store:     store,
		logger:    logger,
		userIndex: make(map[string]map[string]struct{}),
		stopCh:    make(chan struct{}),
	}
}

func sessionKey(sessionID string) string { return "session:" + sessionID }

// CreateSession allocates a new session for playerID and persists it to
// both the local cache and the shared store.
func (m *Manager) CreateSession(ctx context.Context, playerID string) (*model.Session, error) {
	s := model.NewSession(playerID, m.cfg.SessionTTL)
	if err := m.saveToStore(ctx, s); err != nil {
		return nil, err
	}
	m.cache.Put(s.ID.String(), s)
	m.indexSession(playerID, s.ID.String())
	return s, nil
}

// GetSession checks the local cache first, falling back to the shared
// store (and re-populating the cache) on a miss.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if s, ok := m.cache.Get(sessionID); ok {
		if s.IsExpired(time.Now()) {
			return nil, ErrSessionExpired
		}
		return s, nil
	}

	s, err := m.loadFromStore(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.IsExpired(time.Now()) {
		return nil, ErrSessionExpired
	}
	m.cache.Put(sessionID, s)
	return s, nil
}

// AuthenticateSession validates that a session exists, is unexpired, and
// belongs to the claimed player.
func (m *Manager) AuthenticateSession(ctx context.Context, sessionID, playerID string) (*model.Session, error) {
	s, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.PlayerID != playerID {
		return nil, fmt.Errorf("session: player mismatch for session %s", sessionID)
	}
	return s, nil
}

// RenewSession extends a session's TTL if it's within RenewalThreshold of
// expiring, persisting the change to the shared store.
func (m *Manager) RenewSession(ctx context.Context, sessionID string) (*model.Session, error) {
	s, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Renew(time.Now(), m.cfg.SessionTTL, m.cfg.RenewalThreshold) {
		if err := m.saveToStore(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// GetUserSessions returns every known session ID for playerID.
func (m *Manager) GetUserSessions(playerID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.userIndex[playerID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// LogoutUser removes every session belonging to playerID from both the
// cache and the shared store.
func (m *Manager) LogoutUser(ctx context.Context, playerID string) error {
	for _, sessionID := range m.GetUserSessions(playerID) {
		if err := m.RemoveSession(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// RemoveSession deletes one session from the cache, the store, and the
// per-player index.
func (m *Manager) RemoveSession(ctx context.Context, sessionID string) error {
	s, err := m.GetSession(ctx, sessionID)
	if err == nil {
		m.unindexSession(s.PlayerID, sessionID)
	}
	m.cache.Remove(sessionID)
	return m.store.Delete(ctx, sessionKey(sessionID))
}

func (m *Manager) indexSession(playerID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.userIndex[playerID]
	if !ok {
		set = make(map[string]struct{})
		m.userIndex[playerID] = set
	}
	set[sessionID] = struct{}{}
}

func (m *Manager) unindexSession(playerID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.userIndex[playerID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(m.userIndex, playerID)
		}
	}
}

func (m *Manager) saveToStore(ctx context.Context, s *model.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	return m.store.Set(ctx, sessionKey(s.ID.String()), b, time.Until(s.ExpiresAt))
}

func (m *Manager) loadFromStore(ctx context.Context, sessionID string) (*model.Session, error) {
	b, err := m.store.Get(ctx, sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &s, nil
}

// CleanupExpired evicts from the local cache every session that has
// expired or has gone MaxInactiveTime without renewal; the shared store
// relies on its own TTL for expiry.
func (m *Manager) CleanupExpired() int {
	now := time.Now()
	removed := 0
	for _, key := range m.cache.lru.Keys() {
		s, ok := m.cache.lru.Peek(key)
		if !ok {
			continue
		}
		if s.IsExpired(now) || now.Sub(s.LastRenewedAt) > m.cfg.MaxInactiveTime {
			m.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// StartAutoRenewLoop periodically renews every hot (frequently-accessed)
// cached session so a busy player is never logged out mid-session purely
// due to renewal-request jitter.
func (m *Manager) StartAutoRenewLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				for _, s := range m.cache.HotSessions() {
					if _, err := m.RenewSession(ctx, s.ID.String()); err != nil {
						m.logger.Warn("SESSION_AUTO_RENEW_FAILED", slog.String("session_id", s.ID.String()), slog.Any("err", err))
					}
				}
			}
		}
	}()
}

func (m *Manager) Stop() { m.stopOnce.Do(func() { close(m.stopCh) }) }
