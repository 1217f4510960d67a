package session_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-games/arcade-gateway/internal/kv"
	"github.com/kestrel-games/arcade-gateway/internal/session"
)

func newManager(t *testing.T, cfg session.Config) *session.Manager {
	t.Helper()
	cache, err := session.NewCache(100, 2)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return session.NewManager(cfg, cache, kv.NewMemoryStore(), logger)
}

func TestManager_CreateAndAuthenticateSession(t *testing.T) {
	m := newManager(t, session.Config{})
	ctx := context.Background()

	s, err := m.CreateSession(ctx, "player-1")
	require.NoError(t, err)

	got, err := m.AuthenticateSession(ctx, s.ID.String(), "player-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = m.AuthenticateSession(ctx, s.ID.String(), "someone-else")
	assert.Error(t, err)
}

func TestManager_GetSessionFallsBackToStoreOnCacheMiss(t *testing.T) {
	cache, err := session.NewCache(0, 2) // size<=0 still valid, just exercise defaults
	_ = err
	store := kv.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := session.NewManager(session.Config{}, cache, store, logger)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, "player-2")
	require.NoError(t, err)

	// Evict from the hot cache directly; GetSession must still find it in
	// the shared store and repopulate the cache.
	cache.Remove(s.ID.String())

	got, err := m.GetSession(ctx, s.ID.String())
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestManager_GetSessionNotFound(t *testing.T) {
	m := newManager(t, session.Config{})
	_, err := m.GetSession(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestManager_RenewSessionExtendsExpiryWithinThreshold(t *testing.T) {
	m := newManager(t, session.Config{SessionTTL: 50 * time.Millisecond, RenewalThreshold: time.Hour})
	ctx := context.Background()

	s, err := m.CreateSession(ctx, "player-3")
	require.NoError(t, err)
	before := s.ExpiresAt

	renewed, err := m.RenewSession(ctx, s.ID.String())
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(before))
}

func TestManager_LogoutUserRemovesAllSessions(t *testing.T) {
	m := newManager(t, session.Config{})
	ctx := context.Background()

	s1, err := m.CreateSession(ctx, "player-4")
	require.NoError(t, err)
	s2, err := m.CreateSession(ctx, "player-4")
	require.NoError(t, err)

	require.NoError(t, m.LogoutUser(ctx, "player-4"))

	_, err = m.GetSession(ctx, s1.ID.String())
	assert.Error(t, err)
	_, err = m.GetSession(ctx, s2.ID.String())
	assert.Error(t, err)
	assert.Empty(t, m.GetUserSessions("player-4"))
}
