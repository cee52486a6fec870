// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BufferPoolManager is the NUMA-segmented, size-classed api.BufferPool
// backing the reactor core's buffer.Buf allocations. Each (NUMA node, size
// class) pair owns its own lock-free slab pool; Get selects the smallest
// class that satisfies the request and Put/Release recycles it.

package pool

import (
	"sync"

	"github.com/momentics/nioreactor/api"
)

// sizeClasses buckets pooled allocations: powers of two from 2K up to 1M,
// beyond which callers get an exact-fit allocation.
var sizeClasses = []int{
	2 * 1024, 4 * 1024, 8 * 1024, 16 * 1024, 32 * 1024, 64 * 1024,
	128 * 1024, 256 * 1024, 512 * 1024, 1024 * 1024,
}

func sizeClassUpperBound(n int) int {
	for _, c := range sizeClasses {
		if n <= c {
			return c
		}
	}
	return n
}

// BufferPoolManager implements api.BufferPool across every NUMA node
// observed by the process, lazily creating one slabPool per (node, class).
type BufferPoolManager struct {
	mu    sync.RWMutex
	node  map[int]map[int]*slabPool // node -> class size -> pool
	alloc NUMAAllocator
}

// NewBufferPoolManager creates a manager backed by the platform's NUMA
// allocator (libnuma on Linux, VirtualAllocExNuma on Windows, a portable
// make([]byte,n) fallback elsewhere).
func NewBufferPoolManager() *BufferPoolManager {
	return &BufferPoolManager{
		node:  make(map[int]map[int]*slabPool),
		alloc: createNUMAAllocator(),
	}
}

func (m *BufferPoolManager) poolFor(numaNode, class int) *slabPool {
	m.mu.RLock()
	if byClass, ok := m.node[numaNode]; ok {
		if p, ok := byClass[class]; ok {
			m.mu.RUnlock()
			return p
		}
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	byClass, ok := m.node[numaNode]
	if !ok {
		byClass = make(map[int]*slabPool)
		m.node[numaNode] = byClass
	}
	if p, ok := byClass[class]; ok {
		return p
	}
	p := newSlabPool(class, numaNode, m.alloc)
	byClass[class] = p
	return p
}

// Get returns a buffer of at least size bytes, preferring numaPreferred.
// numaPreferred of -1 means "no preference" and is tracked under its own
// bucket rather than fanned out across real nodes.
func (m *BufferPoolManager) Get(size int, numaPreferred int) api.Buffer {
	class := sizeClassUpperBound(size)
	p := m.poolFor(numaPreferred, class)
	return p.get()
}

// Put is a convenience mirror of Buffer.Release for callers that prefer the
// pool-centric API; pool-allocated buffers also release correctly via their
// own Release method, since the release callback is captured at allocation.
func (m *BufferPoolManager) Put(b api.Buffer) {
	b.Release()
}

// Stats aggregates allocation counters across every (node, class) pool.
func (m *BufferPoolManager) Stats() api.BufferPoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var agg api.BufferPoolStats
	agg.NUMAStats = make(map[int]int64)
	for _, byClass := range m.node {
		for _, p := range byClass {
			s := p.stats()
			agg.TotalAlloc += s.TotalAlloc
			agg.TotalFree += s.TotalFree
			agg.InUse += s.InUse
			for node, cnt := range s.NUMAStats {
				agg.NUMAStats[node] += cnt
			}
		}
	}
	return agg
}

var _ api.BufferPool = (*BufferPoolManager)(nil)

var (
	defaultOnce sync.Once
	defaultMgr  *BufferPoolManager
)

// DefaultManager returns a process-wide BufferPoolManager so all components
// reuse the same NUMA-aware pools instead of fragmenting allocations.
func DefaultManager() *BufferPoolManager {
	defaultOnce.Do(func() { defaultMgr = NewBufferPoolManager() })
	return defaultMgr
}

// DefaultPool is a shortcut to fetch a buffer from the default manager.
func DefaultPool(size, numaPreferred int) api.Buffer {
	return DefaultManager().Get(size, numaPreferred)
}
