// Package router implements the gateway's message routing table: a
// static msg-id-range -> service-name mapping, a route cache, and a
// consistent-hash instance selection with failover, grounded exactly on
// the original gateway's MessageRouter (services/gateway/router.py).
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
	"github.com/kestrel-games/arcade-gateway/internal/registry"
	"github.com/kestrel-games/arcade-gateway/internal/routecache"
)

var ErrUnroutableMsgID = errors.New("router: no service configured for message id")
var ErrNoHealthyInstance = errors.New("router: no healthy instance available")

// Route is a single [start,end] inclusive msg-id range mapped to a
// backend service name, matching ROUTE_CONFIG in the original source.
type Route struct {
	Start       int32
	End         int32
	ServiceName string
}

// DefaultRoutes mirrors the original gateway's ROUTE_CONFIG table exactly.
var DefaultRoutes = []Route{
	{Start: 1000, End: 1999, ServiceName: "logic"},
	{Start: 2000, End: 2999, ServiceName: "chat"},
	{Start: 3000, End: 3999, ServiceName: "fight"},
	{Start: 9000, End: 9999, ServiceName: "gateway"},
}

// Router resolves an inbound business Envelope to a ServiceInstance.
type Router struct {
	routes   []Route
	cache    *routecache.Cache
	registry *registry.Registry
	logger   *slog.Logger
}

func New(routes []Route, cache *routecache.Cache, reg *registry.Registry, logger *slog.Logger) *Router {
	if routes == nil {
		routes = DefaultRoutes
	}
	return &Router{routes: routes, cache: cache, registry: reg, logger: logger}
}

// ServiceNameFor looks up the static route table for msgID, matching the
// original's _compile_routes/route_table expansion.
func (r *Router) ServiceNameFor(msgID int32) (string, error) {
	for _, route := range r.routes {
		if msgID >= route.Start && msgID <= route.End {
			return route.ServiceName, nil
		}
	}
	return "", fmt.Errorf("%w: %d", ErrUnroutableMsgID, msgID)
}

// Route resolves the backend instance responsible for delivering a
// message. It checks the route cache first, falls back to a consistent-
// hash selection keyed on playerID (or the current time if playerID is
// empty, matching the original's str(time.time()) fallback), and performs
// failover if the selected instance is unhealthy.
func (r *Router) Route(msgID int32, playerID string) (*model.ServiceInstance, error) {
	serviceName, err := r.ServiceNameFor(msgID)
	if err != nil {
		return nil, err
	}

	cacheKey := serviceName + ":" + playerID
	if r.cache != nil {
		if inst, ok := r.cache.Get(cacheKey); ok && inst.IsHealthy() {
			return inst, nil
		}
	}

	selectKey := playerID
	if selectKey == "" {
		selectKey = fmt.Sprintf("%d", time.Now().UnixNano())
	}

	inst, ok := r.registry.Select(serviceName, selectKey)
	if !ok {
		return nil, fmt.Errorf("%w: service=%s", ErrNoHealthyInstance, serviceName)
	}

	if !inst.IsHealthy() {
		inst, ok = r.failover(serviceName, selectKey, inst)
		if !ok {
			return nil, fmt.Errorf("%w: service=%s", ErrNoHealthyInstance, serviceName)
		}
	}

	if r.cache != nil {
		r.cache.Put(cacheKey, inst)
	}
	return inst, nil
}

// failover excludes the unhealthy instance from the ring's working copy
// and reselects. It never unregisters the instance outright: the registry
// keeps probing it in the background, and its own health loop re-admits
// it to the ring the moment a probe succeeds again.
func (r *Router) failover(serviceName, selectKey string, unhealthy *model.ServiceInstance) (*model.ServiceInstance, bool) {
	r.logger.Warn("ROUTER_FAILOVER",
		slog.String("service", serviceName),
		slog.String("instance", unhealthy.Key()))

	r.registry.MarkFailed(serviceName, unhealthy.InstanceID)

	inst, ok := r.registry.Select(serviceName, selectKey)
	if !ok || !inst.IsHealthy() {
		return nil, false
	}
	return inst, true
}
