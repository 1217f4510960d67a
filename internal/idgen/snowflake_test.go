package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_NextIsUniqueAndIncreasing(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	var prev int64
	for i := 0; i < 1000; i++ {
		id, err := g.Next()
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id generated")
		seen[id] = true
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestNewGenerator_RejectsOutOfRangeNodeID(t *testing.T) {
	_, err := NewGenerator(-1)
	assert.ErrorIs(t, err, ErrInvalidNodeID)

	_, err = NewGenerator(maxNodeID + 1)
	assert.ErrorIs(t, err, ErrInvalidNodeID)
}

func TestGenerator_Next_ClockMovedBackwards(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	var tick int64 = 2000
	g.nowFn = func() int64 { return tick }

	_, err = g.Next()
	require.NoError(t, err)

	tick = 1000
	_, err = g.Next()
	assert.ErrorIs(t, err, ErrClockMovedBackwards)
}

func TestGenerator_Next_SameMillisecondIncrementsSequence(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	tick := int64(5000)
	g.nowFn = func() int64 { return tick }

	first, err := g.Next()
	require.NoError(t, err)
	second, err := g.Next()
	require.NoError(t, err)

	assert.Equal(t, first+1, second)
}
