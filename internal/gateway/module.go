package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"github.com/kestrel-games/arcade-gateway/config"
)

var Module = fx.Module("gateway",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

// registerLifecycle wires the HTTP surface and the registry/session
// background loops into fx's start/stop hooks via fx.Lifecycle.
func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, gw *Gateway, logger *slog.Logger) {
	lp := NewLPHandler(gw)
	lpRouter := chi.NewRouter()
	lpRouter.Post("/open", lp.Open)
	lpRouter.Post("/submit/{connID}", lp.Submit)
	lpRouter.Get("/poll/{connID}", lp.Poll)

	mux := http.NewServeMux()
	mux.Handle("/ws", NewWSHandler(logger, gw))
	mux.Handle("/lp/", http.StripPrefix("/lp", lpRouter))
	mux.Handle("/", gw.HTTPRouter(func() {}))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			gw.registry.StartRefreshLoop(ctx, []string{"logic", "chat", "fight"})
			gw.registry.StartHealthLoop(ctx)
			gw.sessions.StartAutoRenewLoop(ctx)
			gw.connections.StartCleanupLoop(ctx)

			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP_SERVER_FAILED", slog.Any("err", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			return gw.Shutdown(ctx)
		},
	})
}
