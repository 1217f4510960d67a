package router_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
	"github.com/kestrel-games/arcade-gateway/internal/registry"
	"github.com/kestrel-games/arcade-gateway/internal/router"
)

type stubProvider struct{}

func (stubProvider) List(context.Context, string) ([]*model.ServiceInstance, error) {
	return nil, nil
}
func (stubProvider) Watch(context.Context, string) (<-chan []*model.ServiceInstance, error) {
	return nil, nil
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouter_ServiceNameFor(t *testing.T) {
	r := router.New(nil, nil, registry.New(stubProvider{}, nil, noopLogger()), noopLogger())

	name, err := r.ServiceNameFor(1500)
	require.NoError(t, err)
	assert.Equal(t, "logic", name)

	name, err = r.ServiceNameFor(2500)
	require.NoError(t, err)
	assert.Equal(t, "chat", name)

	name, err = r.ServiceNameFor(9500)
	require.NoError(t, err)
	assert.Equal(t, "gateway", name)

	_, err = r.ServiceNameFor(500)
	assert.ErrorIs(t, err, router.ErrUnroutableMsgID)
}

func TestRouter_RouteSelectsRegisteredInstance(t *testing.T) {
	reg := registry.New(stubProvider{}, nil, noopLogger())
	inst := model.NewServiceInstance("chat", "i1", "10.0.0.1", 9000, 1)
	reg.Register(inst)

	r := router.New(nil, nil, reg, noopLogger())

	got, err := r.Route(2001, "player-1")
	require.NoError(t, err)
	assert.Equal(t, inst.Key(), got.Key())
}

func TestRouter_RouteFailsWithNoHealthyInstance(t *testing.T) {
	reg := registry.New(stubProvider{}, nil, noopLogger())
	r := router.New(nil, nil, reg, noopLogger())

	_, err := r.Route(2001, "player-1")
	assert.ErrorIs(t, err, router.ErrNoHealthyInstance)
}

func TestRouter_RouteFailsOverFromUnhealthyInstance(t *testing.T) {
	reg := registry.New(stubProvider{}, nil, noopLogger())
	bad := model.NewServiceInstance("chat", "bad", "10.0.0.1", 9000, 1)
	bad.SetHealthy(false)
	good := model.NewServiceInstance("chat", "good", "10.0.0.2", 9000, 1)
	reg.Register(bad)
	reg.Register(good)

	r := router.New(nil, nil, reg, noopLogger())

	// Try enough distinct player keys that at least one hashes to "bad"
	// first and exercises the failover path.
	sawGood := false
	for i := 0; i < 50; i++ {
		got, err := r.Route(2001, string(rune('a'+i)))
		require.NoError(t, err)
		if got.Key() == good.Key() {
			sawGood = true
		}
		assert.NotEqual(t, bad.Key(), got.Key())
	}
	assert.True(t, sawGood)
}
