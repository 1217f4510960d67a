package cmd

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/kestrel-games/arcade-gateway/config"
	"github.com/kestrel-games/arcade-gateway/internal/connpool"
	"github.com/kestrel-games/arcade-gateway/internal/discovery"
	"github.com/kestrel-games/arcade-gateway/internal/dispatcher"
	"github.com/kestrel-games/arcade-gateway/internal/gateway"
	"github.com/kestrel-games/arcade-gateway/internal/platform/logging"
	"github.com/kestrel-games/arcade-gateway/internal/queue"
	"github.com/kestrel-games/arcade-gateway/internal/registry"
	"github.com/kestrel-games/arcade-gateway/internal/router"
	"github.com/kestrel-games/arcade-gateway/internal/routecache"
	"github.com/kestrel-games/arcade-gateway/internal/rpcclient"
	"github.com/kestrel-games/arcade-gateway/internal/session"
	"github.com/kestrel-games/arcade-gateway/internal/transport/pool"
)

// NewApp wires every component module into a single fx.App.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			func() *slog.Logger { return logging.New(cfg.ServiceName) },
		),
		discovery.Module,
		registry.Module,
		routecache.Module,
		router.Module,
		pool.Module,
		rpcclient.Module,
		queue.Module,
		dispatcher.Module,
		session.Module,
		connpool.Module,
		gateway.Module,
	)
}
