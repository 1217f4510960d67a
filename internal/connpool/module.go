package connpool

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/kestrel-games/arcade-gateway/config"
)

var Module = fx.Module("connpool",
	fx.Provide(func(cfg *config.Config, logger *slog.Logger) *Pool {
		return New(Config{
			MaxConcurrent: cfg.MaxConcurrentConnections,
			MaxIdleTime:   cfg.ConnectionIdleTimeout,
		}, logger)
	}),
)
