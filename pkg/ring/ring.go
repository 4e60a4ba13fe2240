// Package ring places partitions on the ALIVE members of the cluster with
// a consistent hash ring. It follows membership through Observe, so only
// the partitions of a peer that leaves the ring move.
package ring

import (
	"encoding/binary"
	"hash/fnv"
	"slices"
	"sort"
	"strconv"
	"sync"
)

type Hasher func([]byte) uint32

type HashRing struct {
	mu       sync.RWMutex
	replicas int
	hash     Hasher
	points   []uint32            // sorted
	owners   map[uint32]string   // point -> endpoint
	members  map[string]struct{} // endpoints on the ring
}

func New(replicas int, h Hasher) *HashRing {
	if replicas <= 0 { replicas = 128 }
	if h == nil { h = FNV32a }
	return &HashRing{
		replicas: replicas,
		hash:     h,
		owners:   make(map[uint32]string),
		members:  make(map[string]struct{}),
	}
}

// Add places endpoint on the ring. Adding a member twice is a no-op.
func (r *HashRing) Add(endpoint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[endpoint]; ok { return false }
	r.members[endpoint] = struct{}{}
	for i := 0; i < r.replicas; i++ {
		pt := r.hash(pointKey(endpoint, i))
		r.owners[pt] = endpoint
		r.points = append(r.points, pt)
	}
	slices.Sort(r.points)
	return true
}

// Remove takes endpoint off the ring and reports whether it was there.
func (r *HashRing) Remove(endpoint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[endpoint]; !ok { return false }
	delete(r.members, endpoint)
	r.rebuild()
	return true
}

// Sync replaces the membership with endpoints.
func (r *HashRing) Sync(endpoints []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.members)
	for _, ep := range endpoints {
		r.members[ep] = struct{}{}
	}
	r.rebuild()
}

// rebuild recomputes points and owners from members; callers hold mu.
func (r *HashRing) rebuild() {
	r.points = r.points[:0]
	clear(r.owners)
	for ep := range r.members {
		for i := 0; i < r.replicas; i++ {
			pt := r.hash(pointKey(ep, i))
			r.owners[pt] = ep
			r.points = append(r.points, pt)
		}
	}
	slices.Sort(r.points)
}

// Lookup returns the endpoint owning key, or "" on an empty ring.
func (r *HashRing) Lookup(key []byte) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.points) == 0 { return "" }
	idx := r.index(key)
	return r.owners[r.points[idx]]
}

// LookupN returns up to n distinct endpoints for key, owner first.
func (r *HashRing) LookupN(key []byte, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.points) == 0 || n <= 0 { return nil }
	idx := r.index(key)

	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for i := 0; i < len(r.points) && len(out) < n; i++ {
		p := r.points[(idx+i)%len(r.points)]
		ep := r.owners[p]
		if _, ok := seen[ep]; !ok {
			seen[ep] = struct{}{}
			out = append(out, ep)
		}
	}
	return out
}

// PartitionOwners returns the replica set of a partition, leader first.
func (r *HashRing) PartitionOwners(partition uint32, replicas int) []string {
	return r.LookupN(PartitionKey(partition), replicas)
}

func (r *HashRing) Contains(endpoint string) bool {
	r.mu.RLock(); defer r.mu.RUnlock()
	_, ok := r.members[endpoint]
	return ok
}

// Members returns the endpoints on the ring in sorted order.
func (r *HashRing) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.members))
	for ep := range r.members {
		out = append(out, ep)
	}
	sort.Strings(out)
	return out
}

// index finds the first point >= hash(key), wrapping; callers hold mu.
func (r *HashRing) index(key []byte) int {
	h := r.hash(key)
	idx := sort.Search(len(r.points), func(i int) bool { return r.points[i] >= h })
	if idx == len(r.points) { idx = 0 }
	return idx
}

func FNV32a(b []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(b)
	return h.Sum32()
}

func PartitionKey(partition uint32) []byte {
	return []byte("partition-" + strconv.FormatUint(uint64(partition), 10))
}

func pointKey(endpoint string, i int) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(i))
	return append([]byte(endpoint), buf[:]...)
}
