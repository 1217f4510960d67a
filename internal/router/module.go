package router

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/kestrel-games/arcade-gateway/internal/registry"
	"github.com/kestrel-games/arcade-gateway/internal/routecache"
)

var Module = fx.Module("router",
	fx.Provide(func(cache *routecache.Cache, reg *registry.Registry, logger *slog.Logger) *Router {
		return New(nil, cache, reg, logger)
	}),
)
