package ring_test

import (
	"fmt"
	"testing"

	"github.com/kestrel-games/arcade-gateway/internal/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member string

func (m member) Key() string { return string(m) }

func TestRing_GetIsStableAcrossLookups(t *testing.T) {
	r := ring.New[member]()
	r.Set([]member{"a", "b", "c"})

	first, err := r.Get("player-42")
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		got, err := r.Get("player-42")
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestRing_RemovingOneMemberOnlyRemapsItsKeys(t *testing.T) {
	r := ring.New[member]()
	members := []member{"a", "b", "c", "d", "e"}
	r.Set(members)

	before := make(map[string]member, 1000)
	for i := 0; i < 1000; i++ {
		k := fmt.Sprintf("player-%d", i)
		m, err := r.Get(k)
		require.NoError(t, err)
		before[k] = m
	}

	r.Remove("c")

	moved := 0
	for k, prev := range before {
		m, err := r.Get(k)
		require.NoError(t, err)
		if m != prev {
			assert.Equal(t, member("c"), prev, "only keys owned by the removed member may move")
			moved++
		}
	}
	// only keys that were owned by "c" should have moved
	assert.Less(t, moved, len(before))
}

func TestRing_EmptyRingReturnsError(t *testing.T) {
	r := ring.New[member]()
	_, err := r.Get("anything")
	assert.ErrorIs(t, err, ring.ErrEmptyRing)
}

func TestRing_GetNReturnsDistinctMembers(t *testing.T) {
	r := ring.New[member]()
	r.Set([]member{"a", "b", "c", "d"})

	got, err := r.GetN("player-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	seen := map[member]bool{}
	for _, m := range got {
		assert.False(t, seen[m], "GetN must not repeat a member")
		seen[m] = true
	}
}
