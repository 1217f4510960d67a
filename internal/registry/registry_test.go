package registry_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
	"github.com/kestrel-games/arcade-gateway/internal/registry"
)

type stubProvider struct {
	instances []*model.ServiceInstance
}

func (p *stubProvider) List(context.Context, string) ([]*model.ServiceInstance, error) {
	return p.instances, nil
}

func (p *stubProvider) Watch(context.Context, string) (<-chan []*model.ServiceInstance, error) {
	ch := make(chan []*model.ServiceInstance, 1)
	ch <- p.instances
	close(ch)
	return ch, nil
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_RegisterAndSelect(t *testing.T) {
	r := registry.New(&stubProvider{}, nil, noopLogger())
	inst := model.NewServiceInstance("chat", "i1", "10.0.0.1", 9000, 1)
	r.Register(inst)

	got, ok := r.Select("chat", "player-1")
	require.True(t, ok)
	assert.Equal(t, inst.Key(), got.Key())
}

func TestRegistry_SelectOnEmptyServiceFails(t *testing.T) {
	r := registry.New(&stubProvider{}, nil, noopLogger())
	_, ok := r.Select("chat", "player-1")
	assert.False(t, ok)
}

func TestRegistry_UnregisterRemovesFromSelection(t *testing.T) {
	r := registry.New(&stubProvider{}, nil, noopLogger())
	inst := model.NewServiceInstance("chat", "i1", "10.0.0.1", 9000, 1)
	r.Register(inst)
	r.Unregister("chat", "i1")

	_, ok := r.Select("chat", "player-1")
	assert.False(t, ok)
}

func TestRegistry_RefreshLoopPicksUpProviderInstances(t *testing.T) {
	inst := model.NewServiceInstance("chat", "i1", "10.0.0.1", 9000, 1)
	provider := &stubProvider{instances: []*model.ServiceInstance{inst}}
	r := registry.New(provider, nil, noopLogger(), registry.WithRefreshInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartRefreshLoop(ctx, []string{"chat"})

	require.Eventually(t, func() bool {
		_, ok := r.Select("chat", "player-1")
		return ok
	}, time.Second, 5*time.Millisecond)

	r.Stop()
}

func TestRegistry_HealthLoopMarksInstancesDown(t *testing.T) {
	inst := model.NewServiceInstance("chat", "i1", "10.0.0.1", 9000, 1)
	r := registry.New(&stubProvider{}, func(context.Context, *model.ServiceInstance) bool {
		return false
	}, noopLogger(), registry.WithHealthCheckInterval(5*time.Millisecond))
	r.Register(inst)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartHealthLoop(ctx)

	require.Eventually(t, func() bool {
		return !inst.IsHealthy()
	}, time.Second, 5*time.Millisecond)

	r.Stop()
}
