package routecache

import "go.uber.org/fx"

var Module = fx.Module("routecache",
	fx.Provide(func() (*Cache, error) { return New(DefaultMaxSize, DefaultTTL) }),
)
