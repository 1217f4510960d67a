package registry

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/kestrel-games/arcade-gateway/internal/discovery"
)

var Module = fx.Module("registry",
	fx.Provide(func(provider discovery.Provider, logger *slog.Logger) *Registry {
		return New(provider, nil, logger)
	}),
)
