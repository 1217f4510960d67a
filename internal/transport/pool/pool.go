// Package pool manages per-target pools of gRPC client connections with
// round-robin selection and background health probing, directly grounded
// on the original gateway's GrpcConnectionPool
// (common/grpc/grpc_pool.py): min/max connections per target, periodic
// health checks, and reconnect-on-repeated-failure.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	DefaultMinConnections     = 10
	DefaultMaxConnections     = 20
	DefaultHealthCheckInterval = 10 * time.Second
	DefaultMaxFailures        = 3
	DefaultConnectTimeout     = 5 * time.Second
)

type channelInfo struct {
	conn         *grpc.ClientConn
	failureCount int
}

// targetPool is the set of connections dialed to a single backend address.
type targetPool struct {
	mu      sync.Mutex
	address string
	conns   []*channelInfo
	rrIndex int
}

// Config controls pool sizing and health-check cadence; zero values fall
// back to the original gateway's own defaults.
type Config struct {
	MinConnections      int
	MaxConnections      int
	HealthCheckInterval time.Duration
	MaxFailures         int
	ConnectTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinConnections <= 0 {
		c.MinConnections = DefaultMinConnections
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}

// Pool owns one targetPool per backend address and runs a background
// health-check loop over all of them.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	targets map[string]*targetPool

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		targets: make(map[string]*targetPool),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Get returns a connection to address, dialing a fresh pool of
// MinConnections on first use and round-robining across existing ones
// thereafter.
func (p *Pool) Get(ctx context.Context, address string) (*grpc.ClientConn, error) {
	tp, err := p.ensurePool(ctx, address)
	if err != nil {
		return nil, err
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()
	if len(tp.conns) == 0 {
		return nil, fmt.Errorf("pool: no connections available for %s", address)
	}
	ci := tp.conns[tp.rrIndex%len(tp.conns)]
	tp.rrIndex++
	return ci.conn, nil
}

func (p *Pool) ensurePool(ctx context.Context, address string) (*targetPool, error) {
	p.mu.RLock()
	tp, ok := p.targets[address]
	p.mu.RUnlock()
	if ok {
		return tp, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tp, ok := p.targets[address]; ok {
		return tp, nil
	}

	tp = &targetPool{address: address}
	for i := 0; i < p.cfg.MinConnections; i++ {
		conn, err := p.dial(ctx, address)
		if err != nil {
			p.logger.Warn("POOL_DIAL_FAILED", slog.String("address", address), slog.Any("err", err))
			continue
		}
		tp.conns = append(tp.conns, &channelInfo{conn: conn})
	}
	if len(tp.conns) == 0 {
		return nil, fmt.Errorf("pool: unable to establish any connection to %s", address)
	}
	p.targets[address] = tp
	return tp, nil
}

func (p *Pool) dial(ctx context.Context, address string) (*grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	return grpc.DialContext(dialCtx, address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithBlock(),
	)
}

// StartHealthChecks launches the background probe loop; call once after
// construction. Close() must be called to release the goroutine.
func (p *Pool) StartHealthChecks() {
	go func() {
		defer close(p.doneCh)
		ticker := time.NewTicker(p.cfg.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.probeAll()
			}
		}
	}()
}

func (p *Pool) probeAll() {
	p.mu.RLock()
	targets := make([]*targetPool, 0, len(p.targets))
	for _, tp := range p.targets {
		targets = append(targets, tp)
	}
	p.mu.RUnlock()

	for _, tp := range targets {
		p.probeTarget(tp)
	}
}

func (p *Pool) probeTarget(tp *targetPool) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for _, ci := range tp.conns {
		state := ci.conn.GetState()
		if state == connectivity.Ready || state == connectivity.Idle {
			ci.failureCount = 0
			continue
		}
		ci.failureCount++
		if ci.failureCount >= p.cfg.MaxFailures {
			p.logger.Warn("POOL_CHANNEL_UNHEALTHY_RECONNECTING",
				slog.String("address", tp.address), slog.Int("failures", ci.failureCount))
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectTimeout)
			newConn, err := p.dial(ctx, tp.address)
			cancel()
			if err != nil {
				p.logger.Error("POOL_RECONNECT_FAILED", slog.String("address", tp.address), slog.Any("err", err))
				continue
			}
			_ = ci.conn.Close()
			ci.conn = newConn
			ci.failureCount = 0
		}
	}
}

type Stats struct {
	Targets     int
	Connections int
}

func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conns := 0
	for _, tp := range p.targets {
		tp.mu.Lock()
		conns += len(tp.conns)
		tp.mu.Unlock()
	}
	return Stats{Targets: len(p.targets), Connections: conns}
}

// Close stops health checks and closes every pooled connection.
func (p *Pool) Close() error {
	close(p.stopCh)
	<-p.doneCh

	p.mu.Lock()
	defer p.mu.Unlock()
	var lastErr error
	for _, tp := range p.targets {
		tp.mu.Lock()
		for _, ci := range tp.conns {
			if err := ci.conn.Close(); err != nil {
				lastErr = err
			}
		}
		tp.mu.Unlock()
	}
	p.targets = make(map[string]*targetPool)
	return lastErr
}
