// Package ring implements a consistent-hash ring with virtual replicas,
// the same distribution strategy the original gateway's router.py used
// (MD5-keyed ring, 160 replicas per real member, wraparound lookup to the
// first key past the hash point), shaped like a NumberOfReplicas/Set/GetN
// consistent-hash helper.
package ring

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"sort"
	"strconv"
	"sync"
)

// ErrEmptyRing is returned when a lookup is attempted against a ring with
// no members.
var ErrEmptyRing = errors.New("ring: empty")

// Member is anything that can be placed on the ring; Key must be stable
// and unique per member (e.g. "service/instance-id").
type Member interface {
	Key() string
}

const defaultReplicas = 160

// Ring is a thread-safe consistent hash ring over Member values.
type Ring[M Member] struct {
	mu       sync.RWMutex
	replicas int
	keys     []uint32          // sorted hash points
	points   map[uint32]M      // hash point -> member
	members  map[string]M      // member key -> member, for removal
}

func New[M Member]() *Ring[M] {
	return &Ring[M]{
		replicas: defaultReplicas,
		points:   make(map[uint32]M),
		members:  make(map[string]M),
	}
}

// WithReplicas overrides the default virtual-node count; must be called
// before any members are added.
func (r *Ring[M]) WithReplicas(n int) *Ring[M] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replicas = n
	return r
}

func hashKey(s string) uint32 {
	sum := md5.Sum([]byte(s))
	return binary.BigEndian.Uint32(sum[:4])
}

// Add inserts a member (and its virtual replicas) into the ring.
func (r *Ring[M]) Add(m M) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(m)
}

func (r *Ring[M]) addLocked(m M) {
	key := m.Key()
	if _, exists := r.members[key]; exists {
		r.removeLocked(key)
	}
	r.members[key] = m
	for i := 0; i < r.replicas; i++ {
		h := hashKey(virtualKey(key, i))
		r.points[h] = m
	}
	r.rebuildKeysLocked()
}

// Remove deletes a member and all of its virtual replicas from the ring.
func (r *Ring[M]) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(key)
	r.rebuildKeysLocked()
}

func (r *Ring[M]) removeLocked(key string) {
	if _, ok := r.members[key]; !ok {
		return
	}
	delete(r.members, key)
	for i := 0; i < r.replicas; i++ {
		delete(r.points, hashKey(virtualKey(key, i)))
	}
}

func (r *Ring[M]) rebuildKeysLocked() {
	keys := make([]uint32, 0, len(r.points))
	for k := range r.points {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	r.keys = keys
}

// Set replaces the entire member set atomically.
func (r *Ring[M]) Set(members []M) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = make(map[uint32]M)
	r.members = make(map[string]M)
	for _, m := range members {
		r.addLocked(m)
	}
	r.rebuildKeysLocked()
}

// Get returns the member owning selectKey, walking clockwise from the hash
// point and wrapping to the first key on the ring if none is greater.
func (r *Ring[M]) Get(selectKey string) (M, error) {
	var zero M
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.keys) == 0 {
		return zero, ErrEmptyRing
	}
	h := hashKey(selectKey)
	idx := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= h })
	if idx == len(r.keys) {
		idx = 0
	}
	return r.points[r.keys[idx]], nil
}

// GetN returns up to num distinct members starting from selectKey's hash
// point and walking clockwise.
func (r *Ring[M]) GetN(selectKey string, num int) ([]M, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.keys) == 0 {
		return nil, ErrEmptyRing
	}
	if num >= len(r.members) {
		out := make([]M, 0, len(r.members))
		for _, m := range r.members {
			out = append(out, m)
		}
		return out, nil
	}

	h := hashKey(selectKey)
	start := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= h })

	seen := make(map[string]struct{}, num)
	out := make([]M, 0, num)
	for i := 0; len(out) < num && i < len(r.keys); i++ {
		idx := (start + i) % len(r.keys)
		m := r.points[r.keys[idx]]
		if _, ok := seen[m.Key()]; ok {
			continue
		}
		seen[m.Key()] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

func virtualKey(key string, replica int) string {
	return key + "#" + strconv.Itoa(replica)
}
