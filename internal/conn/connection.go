// Package conn implements the gateway's per-socket Connection object:
// pooled for reuse via sync.Pool, rate-limited on inbound frames, and
// backed by a bounded outbound mailbox with backpressure-and-evict
// semantics for a per-session Send. Connection pumps raw client frames in
// for classification and routing, and pumps routed responses back out
// through the same mailbox/pool/backpressure mechanism.
package conn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

// Transport is the minimal read/write surface a physical socket exposes;
// concrete implementations wrap *websocket.Conn (component K's primary
// transport) or a long-poll buffer.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	Close() error
}

// Connection is one physical client socket: a connection ID, an optional
// bound session, an inbound rate limiter, and an outbound mailbox with
// backpressure-aware Send.
type Connection struct {
	id        uuid.UUID
	sessionID uuid.UUID
	hasSession atomic.Bool

	transport Transport
	limiter   *rate.Limiter

	ctx      context.Context
	cancelFn context.CancelFunc

	outbound  chan *model.Envelope
	closeOnce sync.Once

	lastActivityUnix atomic.Int64
	lastPingUnix     atomic.Int64
	droppedCount     atomic.Uint64
}

const (
	DefaultMailboxSize  = 256
	DefaultRateLimit    = 50 // frames/sec
	DefaultRateBurst    = 100
)

var connPool = sync.Pool{
	New: func() any { return &Connection{} },
}

// New acquires a pooled Connection bound to transport, resetting all
// fields to a clean slate.
func New(ctx context.Context, transport Transport, mailboxSize int) *Connection {
	c := connPool.Get().(*Connection)
	c.reset(ctx, transport, mailboxSize)
	return c
}

func (c *Connection) reset(ctx context.Context, transport Transport, mailboxSize int) {
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}
	childCtx, cancel := context.WithCancel(ctx)
	*c = Connection{
		id:        uuid.New(),
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateBurst),
		ctx:       childCtx,
		cancelFn:  cancel,
		outbound:  make(chan *model.Envelope, mailboxSize),
	}
	c.lastActivityUnix.Store(time.Now().UnixNano())
	c.lastPingUnix.Store(time.Now().UnixNano())
}

func (c *Connection) ID() uuid.UUID { return c.id }

func (c *Connection) BindSession(sessionID uuid.UUID) {
	c.sessionID = sessionID
	c.hasSession.Store(true)
}

func (c *Connection) SessionID() (uuid.UUID, bool) {
	return c.sessionID, c.hasSession.Load()
}

func (c *Connection) Touch() { c.lastActivityUnix.Store(time.Now().UnixNano()) }

// TouchPing records a heartbeat from the client, distinct from Touch's
// general read-activity tracking.
func (c *Connection) TouchPing() { c.lastPingUnix.Store(time.Now().UnixNano()) }

func (c *Connection) LastPingTS() time.Time { return time.Unix(0, c.lastPingUnix.Load()) }

func (c *Connection) IsIdle(idleTimeout time.Duration) bool {
	last := time.Unix(0, c.lastActivityUnix.Load())
	return time.Since(last) > idleTimeout
}

// ReadFrame waits for a token from the per-connection token bucket and
// then blocks for the next inbound frame, so a single client flooding
// frames is slowed to the bucket's rate. It returns ctx's error if ctx
// ends while waiting for a token.
func (c *Connection) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	frame, err := c.transport.ReadFrame()
	if err != nil {
		return nil, err
	}
	c.Touch()
	return frame, nil
}

// Send enqueues an outbound envelope with timeout-then-backpressure
// semantics: wait up to timeout for mailbox space, then attempt to evict
// a lower-priority pending envelope before giving up and dropping.
func (c *Connection) Send(env *model.Envelope, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-c.ctx.Done():
		return false
	case c.outbound <- env:
		return true
	case <-ctx.Done():
		return c.handleBackpressure(env, timeout)
	}
}

func (c *Connection) handleBackpressure(env *model.Envelope, timeout time.Duration) bool {
	if env.Priority >= model.PriorityLow {
		c.droppedCount.Add(1)
		return false
	}

	select {
	case old := <-c.outbound:
		if old.Priority > env.Priority {
			c.droppedCount.Add(1)
			c.outbound <- env
			return true
		}
		select {
		case c.outbound <- old:
		default:
		}
	case <-time.After(timeout):
	}

	c.droppedCount.Add(1)
	return false
}

func (c *Connection) Outbound() <-chan *model.Envelope { return c.outbound }

func (c *Connection) WriteFrame(b []byte) error { return c.transport.WriteFrame(b) }

// Close tears the connection down exactly once: cancels its context,
// closes the mailbox, closes the transport, and recycles the struct back
// to the pool.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
		close(c.outbound)
		_ = c.transport.Close()
		c.transport = nil
		c.outbound = nil
		connPool.Put(c)
	})
}

func (c *Connection) DroppedCount() uint64 { return c.droppedCount.Load() }
