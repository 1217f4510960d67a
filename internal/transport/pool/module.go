package pool

import (
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module("transportpool",
	fx.Provide(func(logger *slog.Logger) *Pool {
		p := New(Config{}, logger)
		p.StartHealthChecks()
		return p
	}),
)
