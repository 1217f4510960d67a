package queue

import "sync/atomic"

// BackpressureController tracks queue occupancy against three watermarks
// and decides whether an incoming message should be accepted, throttled,
// or dropped outright. Thresholds and behavior are taken directly from the
// original gateway's BackpressureController.
type BackpressureController struct {
	maxSize       int64
	highWatermark float64
	lowWatermark  float64
	dropThreshold float64

	currentSize    atomic.Int64
	totalAdded     atomic.Int64
	totalRemoved   atomic.Int64
	totalDropped   atomic.Int64
	totalThrottled atomic.Int64

	// isThrottling latches on at the high watermark and only releases at
	// the low watermark, so occupancy oscillating between the two doesn't
	// flap acceptance on and off every message.
	isThrottling atomic.Bool
}

const (
	DefaultMaxSize       = 10000
	DefaultHighWatermark = 0.8
	DefaultLowWatermark  = 0.6
	DefaultDropThreshold = 0.95
)

func NewBackpressureController(maxSize int64, high, low, drop float64) *BackpressureController {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if high <= 0 {
		high = DefaultHighWatermark
	}
	if low <= 0 {
		low = DefaultLowWatermark
	}
	if drop <= 0 {
		drop = DefaultDropThreshold
	}
	return &BackpressureController{maxSize: maxSize, highWatermark: high, lowWatermark: low, dropThreshold: drop}
}

func (b *BackpressureController) UsageRatio() float64 {
	return float64(b.currentSize.Load()) / float64(b.maxSize)
}

// ShouldAccept decides whether a message of the given priority may enter
// the queue given current occupancy. Nothing is accepted once the queue
// holds maxSize messages; past the drop threshold only Critical messages
// are accepted. Below it, Normal and Low priority messages are
// throttled once occupancy crosses the high watermark, and stay throttled
// until occupancy falls back to the low watermark -- the same
// high/low hysteresis band the original controller's _is_throttling flag
// implemented, so occupancy bouncing around the high watermark doesn't
// flap acceptance message to message.
func (b *BackpressureController) ShouldAccept(priority Priority) bool {
	if b.currentSize.Load() >= b.maxSize {
		b.totalDropped.Add(1)
		return false
	}
	ratio := b.UsageRatio()
	if ratio >= b.dropThreshold {
		if priority == PriorityCritical {
			return true
		}
		b.totalDropped.Add(1)
		return false
	}

	switch {
	case ratio >= b.highWatermark:
		b.isThrottling.Store(true)
	case ratio <= b.lowWatermark:
		b.isThrottling.Store(false)
	}

	if b.isThrottling.Load() && priority > PriorityHigh {
		b.totalThrottled.Add(1)
		return false
	}
	return true
}

// IsThrottling reports whether the high/low hysteresis band currently has
// Normal and Low priority enqueues suppressed.
func (b *BackpressureController) IsThrottling() bool { return b.isThrottling.Load() }

func (b *BackpressureController) OnMessageAdded() {
	b.currentSize.Add(1)
	b.totalAdded.Add(1)
	b.updateThrottling()
}

func (b *BackpressureController) OnMessageRemoved() {
	b.currentSize.Add(-1)
	b.totalRemoved.Add(1)
	b.updateThrottling()
}

// updateThrottling moves the hysteresis latch as occupancy changes.
func (b *BackpressureController) updateThrottling() {
	switch ratio := b.UsageRatio(); {
	case ratio >= b.highWatermark:
		b.isThrottling.Store(true)
	case ratio <= b.lowWatermark:
		b.isThrottling.Store(false)
	}
}

func (b *BackpressureController) OnMessageDropped() { b.totalDropped.Add(1) }
func (b *BackpressureController) OnMessageThrottled() { b.totalThrottled.Add(1) }

type BackpressureStats struct {
	CurrentSize    int64
	MaxSize        int64
	UsageRatio     float64
	TotalAdded     int64
	TotalRemoved   int64
	TotalDropped   int64
	TotalThrottled int64
	IsThrottling   bool
}

func (b *BackpressureController) Stats() BackpressureStats {
	return BackpressureStats{
		CurrentSize:    b.currentSize.Load(),
		MaxSize:        b.maxSize,
		UsageRatio:     b.UsageRatio(),
		TotalAdded:     b.totalAdded.Load(),
		TotalRemoved:   b.totalRemoved.Load(),
		TotalDropped:   b.totalDropped.Load(),
		TotalThrottled: b.totalThrottled.Load(),
		IsThrottling:   b.isThrottling.Load(),
	}
}
