package discovery

import (
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/kestrel-games/arcade-gateway/config"
)

var Module = fx.Module("discovery",
	fx.Provide(func(cfg *config.Config, logger *slog.Logger) (Provider, error) {
		switch cfg.DiscoveryBackend {
		case "", "env":
			return NewEnvProvider(0), nil
		case "consul":
			return NewConsulProvider(cfg.ConsulAddr)
		case "amqp":
			base, err := NewConsulProvider(cfg.ConsulAddr)
			if err != nil {
				return nil, fmt.Errorf("discovery: amqp backend base provider: %w", err)
			}
			return NewAMQPWatchProvider(base, cfg.AMQPURI, logger)
		default:
			return nil, fmt.Errorf("discovery: unknown backend %q", cfg.DiscoveryBackend)
		}
	}),
)
