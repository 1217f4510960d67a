package queue

import (
	"go.uber.org/fx"

	"github.com/kestrel-games/arcade-gateway/config"
)

var Module = fx.Module("queue",
	fx.Provide(func(cfg *config.Config) *Queue {
		bp := NewBackpressureController(cfg.QueueMaxSize, cfg.QueueHighWatermark, cfg.QueueLowWatermark, cfg.QueueDropThreshold)
		dedup := NewDeduplicator(DefaultDedupWindow, DefaultDedupTTL)
		return New(bp, dedup)
	}),
)
