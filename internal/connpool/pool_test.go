package connpool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-games/arcade-gateway/internal/conn"
)

type fakeTransport struct{}

func (fakeTransport) ReadFrame() ([]byte, error) { return nil, errors.New("eof") }
func (fakeTransport) WriteFrame([]byte) error    { return nil }
func (fakeTransport) Close() error               { return nil }

func noopLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPool_AcquireRejectsOverCap(t *testing.T) {
	p := New(Config{MaxConcurrent: 1}, noopLogger())

	c1 := conn.New(context.Background(), fakeTransport{}, 4)
	require.NoError(t, p.Acquire(c1))

	c2 := conn.New(context.Background(), fakeTransport{}, 4)
	err := p.Acquire(c2)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestPool_ReleaseRemovesAndClosesConnection(t *testing.T) {
	p := New(Config{MaxConcurrent: 10}, noopLogger())
	c := conn.New(context.Background(), fakeTransport{}, 4)
	require.NoError(t, p.Acquire(c))

	p.Release(c.ID())

	_, ok := p.Get(c.ID())
	assert.False(t, ok)
	assert.Equal(t, int64(1), p.Stats().TotalDestroyed)
}

func TestPool_BindSessionAllowsLookupBySession(t *testing.T) {
	p := New(Config{MaxConcurrent: 10}, noopLogger())
	c := conn.New(context.Background(), fakeTransport{}, 4)
	require.NoError(t, p.Acquire(c))

	sessionID := uuid.New()
	p.BindSession(c.ID(), sessionID)

	got, ok := p.GetBySession(sessionID)
	require.True(t, ok)
	assert.Equal(t, c.ID(), got.ID())
}

func TestPool_CleanupExpiredReleasesIdleConnections(t *testing.T) {
	p := New(Config{MaxConcurrent: 10, MaxIdleTime: time.Millisecond}, noopLogger())
	c := conn.New(context.Background(), fakeTransport{}, 4)
	require.NoError(t, p.Acquire(c))

	time.Sleep(5 * time.Millisecond)
	n := p.CleanupExpired()

	assert.Equal(t, 1, n)
	_, ok := p.Get(c.ID())
	assert.False(t, ok)
}
