package routecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

func TestCache_PutThenGetHits(t *testing.T) {
	c, err := New(10, time.Minute)
	require.NoError(t, err)

	inst := model.NewServiceInstance("chat", "i1", "127.0.0.1", 9000, 1)
	c.Put("player:1", inst)

	got, ok := c.Get("player:1")
	require.True(t, ok)
	assert.Equal(t, inst, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
}

func TestCache_MissIsCounted(t *testing.T) {
	c, err := New(10, time.Minute)
	require.NoError(t, err)

	_, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCache_ExpiredEntryIsEvictedOnGet(t *testing.T) {
	c, err := New(10, time.Millisecond)
	require.NoError(t, err)

	c.Put("player:1", model.NewServiceInstance("chat", "i1", "127.0.0.1", 9000, 1))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("player:1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestCache_ClearExpiredSweepsStaleEntries(t *testing.T) {
	c, err := New(10, time.Millisecond)
	require.NoError(t, err)

	c.Put("a", model.NewServiceInstance("chat", "a", "h", 1, 1))
	c.Put("b", model.NewServiceInstance("chat", "b", "h", 1, 1))
	time.Sleep(5 * time.Millisecond)

	removed := c.ClearExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestCache_InvalidateRemovesEntry(t *testing.T) {
	c, err := New(10, time.Minute)
	require.NoError(t, err)

	c.Put("a", model.NewServiceInstance("chat", "a", "h", 1, 1))
	c.Invalidate("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
}
