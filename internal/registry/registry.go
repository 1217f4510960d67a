// Package registry owns the live set of backend ServiceInstances per
// service name: manual register/unregister for control-plane calls, a
// periodic discovery-backed refresh, and parallel health probing.
// Grounded on the original gateway's MessageRouter
// register_service_instance/unregister_service_instance plus its
// periodic _perform_health_check.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-games/arcade-gateway/internal/discovery"
	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
	"github.com/kestrel-games/arcade-gateway/internal/ring"
)

const (
	DefaultRefreshInterval     = 15 * time.Second
	DefaultHealthCheckInterval = 10 * time.Second
	DefaultHealthCheckTimeout  = 2 * time.Second
)

// HealthChecker probes a single instance and reports whether it is
// reachable. Production wiring dials a lightweight RPC health endpoint;
// tests can supply a stub.
type HealthChecker func(ctx context.Context, inst *model.ServiceInstance) bool

type serviceState struct {
	mu        sync.RWMutex
	instances map[string]*model.ServiceInstance
	ring      *ring.Ring[*model.ServiceInstance]
	failed    map[string]struct{} // instance key -> excluded from ring, still probed
}

func newServiceState() *serviceState {
	return &serviceState{
		instances: make(map[string]*model.ServiceInstance),
		ring:      ring.New[*model.ServiceInstance](),
		failed:    make(map[string]struct{}),
	}
}

// Registry is the gateway's view of which backend instances exist and
// whether they're currently healthy, keyed by service name.
type Registry struct {
	provider      discovery.Provider
	healthCheck   HealthChecker
	logger        *slog.Logger
	refreshEvery  time.Duration
	healthEvery   time.Duration
	healthTimeout time.Duration

	mu       sync.RWMutex
	services map[string]*serviceState

	stopOnce sync.Once
	stopCh   chan struct{}
}

type Option func(*Registry)

func WithRefreshInterval(d time.Duration) Option { return func(r *Registry) { r.refreshEvery = d } }
func WithHealthCheckInterval(d time.Duration) Option {
	return func(r *Registry) { r.healthEvery = d }
}

func New(provider discovery.Provider, healthCheck HealthChecker, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		provider:      provider,
		healthCheck:   healthCheck,
		logger:        logger,
		refreshEvery:  DefaultRefreshInterval,
		healthEvery:   DefaultHealthCheckInterval,
		healthTimeout: DefaultHealthCheckTimeout,
		services:      make(map[string]*serviceState),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) stateFor(serviceName string) *serviceState {
	r.mu.RLock()
	s, ok := r.services[serviceName]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.services[serviceName]; ok {
		return s
	}
	s = newServiceState()
	r.services[serviceName] = s
	return s
}

// Register manually adds an instance, e.g. from a control-plane API call.
// Re-registering a previously failed instance clears its exclusion, the
// manual-register path back into rotation.
func (r *Registry) Register(inst *model.ServiceInstance) {
	s := r.stateFor(inst.ServiceName)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[inst.Key()] = inst
	delete(s.failed, inst.Key())
	s.ring.Add(inst)
}

// Unregister manually removes an instance entirely: it drops out of both
// the ring and the known instance set, so probeAll stops considering it.
// Use MarkFailed instead for failover, which keeps the instance probeable.
func (r *Registry) Unregister(serviceName, instanceID string) {
	s := r.stateFor(serviceName)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := serviceName + "/" + instanceID
	delete(s.instances, key)
	delete(s.failed, key)
	s.ring.Remove(key)
}

// MarkFailed excludes an unhealthy instance from ring selection without
// forgetting about it: it stays in the known instance set so probeAll
// keeps probing it, and StartHealthLoop re-admits it to the ring the next
// time a probe reports it healthy again.
func (r *Registry) MarkFailed(serviceName, instanceID string) {
	s := r.stateFor(serviceName)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := serviceName + "/" + instanceID
	if _, ok := s.instances[key]; !ok {
		return
	}
	s.failed[key] = struct{}{}
	s.ring.Remove(key)
}

// Select returns the ring-selected instance for selectKey (typically the
// player ID) among the instances of serviceName currently on the ring.
// Instances excluded by MarkFailed are skipped; the instance's health flag
// is not checked here.
func (r *Registry) Select(serviceName, selectKey string) (*model.ServiceInstance, bool) {
	s := r.stateFor(serviceName)
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, err := s.ring.Get(selectKey)
	if err != nil {
		return nil, false
	}
	return inst, true
}

// Instances returns a snapshot of every known instance for serviceName.
func (r *Registry) Instances(serviceName string) []*model.ServiceInstance {
	s := r.stateFor(serviceName)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ServiceInstance, 0, len(s.instances))
	for _, i := range s.instances {
		out = append(out, i)
	}
	return out
}

// StartRefreshLoop polls provider.List for each watched service on
// refreshEvery and reconciles the ring.
func (r *Registry) StartRefreshLoop(ctx context.Context, serviceNames []string) {
	go r.runLoop(ctx, r.refreshEvery, func(ctx context.Context) {
		for _, name := range serviceNames {
			r.refreshOne(ctx, name)
		}
	})
}

func (r *Registry) refreshOne(ctx context.Context, serviceName string) {
	instances, err := r.provider.List(ctx, serviceName)
	if err != nil {
		r.logger.Warn("REGISTRY_REFRESH_FAILED", slog.String("service", serviceName), slog.Any("err", err))
		return
	}
	s := r.stateFor(serviceName)
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := make(map[string]*model.ServiceInstance, len(instances))
	for _, inst := range instances {
		fresh[inst.Key()] = inst
		s.instances[inst.Key()] = inst
	}
	for key := range s.instances {
		if _, ok := fresh[key]; !ok {
			delete(s.instances, key)
		}
	}
	members := make([]*model.ServiceInstance, 0, len(s.instances))
	for key, i := range s.instances {
		if _, failed := s.failed[key]; failed {
			continue
		}
		members = append(members, i)
	}
	s.ring.Set(members)
}

// StartHealthLoop probes every known instance in parallel on healthEvery,
// using golang.org/x/sync/errgroup to bound per-round latency to the
// slowest single probe rather than the sum of all probes.
func (r *Registry) StartHealthLoop(ctx context.Context) {
	go r.runLoop(ctx, r.healthEvery, r.probeAll)
}

func (r *Registry) probeAll(ctx context.Context) {
	r.mu.RLock()
	states := make([]*serviceState, 0, len(r.services))
	for _, s := range r.services {
		states = append(states, s)
	}
	r.mu.RUnlock()

	g, gCtx := errgroup.WithContext(ctx)
	for _, s := range states {
		s := s
		s.mu.RLock()
		instances := make([]*model.ServiceInstance, 0, len(s.instances))
		for _, i := range s.instances {
			instances = append(instances, i)
		}
		s.mu.RUnlock()

		for _, inst := range instances {
			inst := inst
			g.Go(func() error {
				probeCtx, cancel := context.WithTimeout(gCtx, r.healthTimeout)
				defer cancel()
				healthy := r.healthCheck != nil && r.healthCheck(probeCtx, inst)
				wasHealthy := inst.IsHealthy()
				inst.SetHealthy(healthy)
				if wasHealthy && !healthy {
					r.logger.Warn("INSTANCE_UNHEALTHY", slog.String("instance", inst.Key()))
				} else if !wasHealthy && healthy {
					r.logger.Info("INSTANCE_RECOVERED", slog.String("instance", inst.Key()))
					s.mu.Lock()
					if _, wasFailed := s.failed[inst.Key()]; wasFailed {
						delete(s.failed, inst.Key())
						s.ring.Add(inst)
					}
					s.mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (r *Registry) runLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Stop halts the background loops and closes the discovery provider if it
// holds its own resources (e.g. an AMQP subscription).
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if closer, ok := r.provider.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				r.logger.Warn("REGISTRY_PROVIDER_CLOSE_FAILED", slog.Any("err", err))
			}
		}
	})
}
