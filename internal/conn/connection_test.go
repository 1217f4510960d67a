package conn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

type fakeTransport struct {
	frames [][]byte
	closed bool
}

func (t *fakeTransport) ReadFrame() ([]byte, error) {
	if len(t.frames) == 0 {
		return nil, errors.New("no more frames")
	}
	f := t.frames[0]
	t.frames = t.frames[1:]
	return f, nil
}

func (t *fakeTransport) WriteFrame([]byte) error { return nil }
func (t *fakeTransport) Close() error            { t.closed = true; return nil }

func TestConnection_SendSucceedsWhenMailboxHasRoom(t *testing.T) {
	c := New(context.Background(), &fakeTransport{}, 2)
	defer c.Close()

	ok := c.Send(&model.Envelope{Kind: model.KindSystem, Priority: model.PriorityNormal}, time.Second)
	assert.True(t, ok)
	assert.Equal(t, 1, len(c.Outbound()))
}

func TestConnection_SendEvictsLowerPriorityWhenFull(t *testing.T) {
	c := New(context.Background(), &fakeTransport{}, 1)
	defer c.Close()

	require.True(t, c.Send(&model.Envelope{Priority: model.PriorityNormal}, time.Second))

	ok := c.Send(&model.Envelope{Priority: model.PriorityCritical}, 10*time.Millisecond)
	assert.True(t, ok)

	got := <-c.Outbound()
	assert.Equal(t, model.PriorityCritical, got.Priority)
	assert.Equal(t, uint64(1), c.DroppedCount())
}

func TestConnection_SendDropsLowPriorityImmediatelyWhenFull(t *testing.T) {
	c := New(context.Background(), &fakeTransport{}, 1)
	defer c.Close()

	require.True(t, c.Send(&model.Envelope{Priority: model.PriorityNormal}, time.Second))

	ok := c.Send(&model.Envelope{Priority: model.PriorityLow}, 10*time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.DroppedCount())
}

func TestConnection_CloseIsIdempotentAndReturnsToPool(t *testing.T) {
	transport := &fakeTransport{}
	c := New(context.Background(), transport, 4)
	c.Close()
	c.Close()
	assert.True(t, transport.closed)
}

func TestConnection_BindSessionRoundTrips(t *testing.T) {
	c := New(context.Background(), &fakeTransport{}, 4)
	defer c.Close()

	_, has := c.SessionID()
	assert.False(t, has)

	id := c.ID()
	c.BindSession(id)
	got, has := c.SessionID()
	assert.True(t, has)
	assert.Equal(t, id, got)
}
