// Package idgen generates cluster-unique, roughly time-sortable 64-bit
// identifiers without a central coordinator. No other package calls it:
// Connection and Session IDs are random google/uuid values.
package idgen

import (
	"errors"
	"sync"
	"time"
)

const (
	epoch         int64 = 1704067200000 // 2024-01-01T00:00:00Z in ms
	nodeBits      uint  = 10
	sequenceBits  uint  = 12
	maxNodeID     int64 = -1 ^ (-1 << nodeBits)
	maxSequence   int64 = -1 ^ (-1 << sequenceBits)
	nodeShift           = sequenceBits
	timestampShift      = sequenceBits + nodeBits
)

// ErrClockMovedBackwards is returned when the local clock regresses past the
// last generated timestamp, which would otherwise risk issuing a duplicate
// ID. This can legitimately happen after an NTP step correction.
var ErrClockMovedBackwards = errors.New("idgen: clock moved backwards")

// ErrInvalidNodeID is returned when constructing a Generator with a node ID
// outside the range representable in nodeBits.
var ErrInvalidNodeID = errors.New("idgen: node id out of range")

// Generator produces snowflake-style IDs: 41 bits of millisecond timestamp,
// 10 bits of node ID, 12 bits of per-millisecond sequence.
type Generator struct {
	mu       sync.Mutex
	nodeID   int64
	lastTime int64
	sequence int64

	nowFn func() int64
}

func NewGenerator(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, ErrInvalidNodeID
	}
	return &Generator{
		nodeID: nodeID,
		nowFn:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Next returns the next unique ID, blocking briefly if the per-millisecond
// sequence space within the current millisecond is exhausted.
func (g *Generator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFn()
	if now < g.lastTime {
		return 0, ErrClockMovedBackwards
	}

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.lastTime {
				now = g.nowFn()
			}
		}
	} else {
		g.sequence = 0
	}

	g.lastTime = now

	id := ((now - epoch) << timestampShift) | (g.nodeID << nodeShift) | g.sequence
	return id, nil
}
