package rpcclient

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/kestrel-games/arcade-gateway/config"
	"github.com/kestrel-games/arcade-gateway/internal/transport/pool"
)

var Module = fx.Module("rpcclient",
	fx.Provide(func(cfg *config.Config, p *pool.Pool, logger *slog.Logger) *Client {
		return New(Config{
			Timeout:    cfg.RPCTimeout,
			MaxRetries: cfg.RPCMaxRetries,
			RetryDelay: cfg.RPCRetryDelay,
		}, p, logger)
	}),
)
