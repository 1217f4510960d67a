package dispatcher

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/kestrel-games/arcade-gateway/internal/queue"
	"github.com/kestrel-games/arcade-gateway/internal/router"
	"github.com/kestrel-games/arcade-gateway/internal/rpcclient"
)

var Module = fx.Module("dispatcher",
	fx.Provide(func(client *rpcclient.Client, q *queue.Queue, r *router.Router, logger *slog.Logger) *Dispatcher {
		return New(client, q, r, logger)
	}),
	fx.Invoke(registerLifecycle),
)

// registerLifecycle starts the dispatcher's queue-draining run-loop on
// OnStart; it exits on its own once Gateway.Shutdown closes the queue.
func registerLifecycle(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go d.Run(ctx)
			return nil
		},
	})
}
