// Package dispatcher pulls queued envelopes off the priority queue (4.D),
// routes each through the message router (4.I), and batches them per
// backend target for amortized delivery: the batch is only a timing
// boundary, since every message inside it is still delivered to the
// backend worker with its own RPC call and its own retry/drop outcome.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
	"github.com/kestrel-games/arcade-gateway/internal/queue"
	"github.com/kestrel-games/arcade-gateway/internal/router"
	"github.com/kestrel-games/arcade-gateway/internal/rpcclient"
)

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 10 * time.Millisecond
)

// HandleMessageMethod is the RPC method every backend worker exposes for a
// single delivered envelope.
const HandleMessageMethod = "HandleMessage"

// queuedEnvelope pairs a dequeued Item with the Envelope it wraps, so a
// per-message delivery failure can retry the original Item through 4.D
// rather than just the bare Envelope.
type queuedEnvelope struct {
	item *queue.Item
	env  *model.Envelope
}

// dispatchPayload is the RPC-level payload handed to HandleMessageMethod,
// distinct from the client-facing wire envelope.
type dispatchPayload struct {
	MsgID    int32           `json:"msg_id"`
	Sequence string          `json:"sequence,omitempty"`
	PlayerID string          `json:"player_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type batchKey struct {
	target      string
	serviceName string
}

// processor accumulates envelopes for one (target, serviceName) pair and
// flushes them once BatchSize is reached or FlushInterval elapses since
// the first buffered item.
type processor struct {
	mu      sync.Mutex
	buf     []queuedEnvelope
	timer   *time.Timer
	flushFn func([]queuedEnvelope)
}

// Dispatcher owns the run-loop that drains 4.D, the router used to pick a
// backend instance per message, and one processor per backend target for
// size/time-bounded batching isolated per target.
type Dispatcher struct {
	client     *rpcclient.Client
	queue      *queue.Queue
	router     *router.Router
	logger     *slog.Logger
	batchSize  int
	flushEvery time.Duration

	mu         sync.Mutex
	processors map[batchKey]*processor
}

func New(client *rpcclient.Client, q *queue.Queue, r *router.Router, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client:     client,
		queue:      q,
		router:     r,
		logger:     logger,
		batchSize:  DefaultBatchSize,
		flushEvery: DefaultFlushInterval,
		processors: make(map[batchKey]*processor),
	}
}

// Run drains the priority queue until it closes or ctx is cancelled,
// routing each envelope and handing it to the appropriate per-target
// processor. It is meant to run for the lifetime of the process in its
// own goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		item, err := d.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrQueueClosed) {
				d.logger.Warn("DISPATCHER_DEQUEUE_FAILED", slog.Any("err", err))
			}
			return
		}

		env, ok := item.Payload.(*model.Envelope)
		if !ok {
			d.logger.Error("DISPATCHER_BAD_ITEM_PAYLOAD")
			continue
		}

		inst, err := d.router.Route(env.MsgID, env.PlayerID)
		if err != nil {
			d.logger.Warn("DISPATCHER_ROUTE_FAILED", slog.Int("msg_id", int(env.MsgID)), slog.Any("err", err))
			d.retryOrDrop(item)
			continue
		}

		serviceName, err := d.router.ServiceNameFor(env.MsgID)
		if err != nil {
			d.logger.Warn("DISPATCHER_ROUTE_FAILED", slog.Int("msg_id", int(env.MsgID)), slog.Any("err", err))
			d.retryOrDrop(item)
			continue
		}

		d.submit(inst.Endpoint(), serviceName, item, env)
	}
}

// submit queues (item, env) for delivery to target/serviceName, triggering
// an immediate flush if the batch is now full.
func (d *Dispatcher) submit(target, serviceName string, item *queue.Item, env *model.Envelope) {
	key := batchKey{target: target, serviceName: serviceName}

	d.mu.Lock()
	p, ok := d.processors[key]
	if !ok {
		p = &processor{}
		p.flushFn = func(batch []queuedEnvelope) { d.flush(target, serviceName, batch) }
		d.processors[key] = p
	}
	d.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, queuedEnvelope{item: item, env: env})
	if len(p.buf) == 1 {
		p.timer = time.AfterFunc(d.flushEvery, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.flushLocked()
		})
	}
	if len(p.buf) >= d.batchSize {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.flushLocked()
	}
}

// flushLocked assumes p.mu is held; called directly from submit (already
// locked) and from the AfterFunc timer (locks for itself first).
func (p *processor) flushLocked() {
	batch := p.buf
	p.buf = nil
	if len(batch) == 0 {
		return
	}
	p.flushFn(batch)
}

// flush delivers every envelope in batch to target sequentially, one
// HandleMessage RPC per message -- the batch only bounds how many
// messages accumulate before this loop runs, not how they're delivered.
// A failed message re-enters 4.D via queue.Retry rather than being
// retried in place.
func (d *Dispatcher) flush(target, serviceName string, batch []queuedEnvelope) {
	for _, qe := range batch {
		payload, err := json.Marshal(dispatchPayload{
			MsgID:    qe.env.MsgID,
			Sequence: qe.env.Sequence,
			PlayerID: qe.env.PlayerID,
			Data:     qe.env.Data,
		})
		if err != nil {
			d.logger.Error("DISPATCH_MARSHAL_FAILED", slog.Any("err", err))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err = d.client.Call(ctx, target, serviceName, HandleMessageMethod, payload, qe.env.Metadata)
		cancel()
		if err == nil {
			continue
		}

		d.logger.Warn("DISPATCH_MESSAGE_FAILED",
			slog.String("target", target), slog.String("service", serviceName),
			slog.Int("msg_id", int(qe.env.MsgID)), slog.Any("err", err))
		d.retryOrDrop(qe.item)
	}
}

// retryOrDrop re-enters item into 4.D via queue.Retry, logging and
// dropping it once its retry budget is exhausted.
func (d *Dispatcher) retryOrDrop(item *queue.Item) {
	if d.queue.Retry(item) {
		return
	}
	d.logger.Error("DISPATCH_MESSAGE_DROPPED", slog.String("hash", item.Hash))
}

// FlushAll forces every pending processor to flush immediately, used
// during graceful shutdown so in-flight batches aren't silently dropped.
func (d *Dispatcher) FlushAll() {
	d.mu.Lock()
	procs := make([]*processor, 0, len(d.processors))
	for _, p := range d.processors {
		procs = append(procs, p)
	}
	d.mu.Unlock()

	for _, p := range procs {
		p.mu.Lock()
		if p.timer != nil {
			p.timer.Stop()
		}
		p.flushLocked()
		p.mu.Unlock()
	}
}
