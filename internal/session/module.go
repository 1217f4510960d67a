package session

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/kestrel-games/arcade-gateway/config"
	"github.com/kestrel-games/arcade-gateway/internal/kv"
)

var Module = fx.Module("session",
	fx.Provide(
		func() kv.Store { return kv.NewMemoryStore() },
		func() (*Cache, error) { return NewCache(DefaultLocalCacheSize, DefaultHotSessionThreshold) },
		func(cfg *config.Config, cache *Cache, store kv.Store, logger *slog.Logger) *Manager {
			return NewManager(Config{
				SessionTTL:       cfg.SessionTTL,
				RenewalThreshold: cfg.SessionRenewThreshold,
			}, cache, store, logger)
		},
	),
)
