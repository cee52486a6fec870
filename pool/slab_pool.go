// File: pool/slab_pool.go
// Package pool implements lock-free slab allocation with size class support.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/nioreactor/api"
	"github.com/momentics/nioreactor/buffer"
	"github.com/momentics/nioreactor/concurrency"
)

// slabPool recycles fixed-size buffer.Buf instances for one size class on
// one NUMA node, backed by a bounded lock-free queue.
type slabPool struct {
	size     int
	numaNode int
	alloc    NUMAAllocator
	queue    *concurrency.LockFreeQueue[*buffer.Buf]

	totalAlloc atomic.Uint64
	totalFree  atomic.Uint64
	numaStats  atomic.Pointer[numaMap]
}

const defaultPoolCapacity = 4096

func newSlabPool(size, numaNode int, alloc NUMAAllocator) *slabPool {
	return &slabPool{
		size:     size,
		numaNode: numaNode,
		alloc:    alloc,
		queue:    concurrency.NewLockFreeQueue[*buffer.Buf](defaultPoolCapacity),
	}
}

// numaMap: allocation counters by NUMA node.
type numaMap struct {
	mu     sync.Mutex
	counts map[int]uint64
}

func newNumamap() *numaMap { return &numaMap{counts: make(map[int]uint64)} }
func (m *numaMap) record(n int) {
	m.mu.Lock()
	m.counts[n]++
	m.mu.Unlock()
}
func (m *numaMap) Get() map[int]uint64 {
	m.mu.Lock()
	out := make(map[int]uint64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	m.mu.Unlock()
	return out
}

func (sp *slabPool) recordNode(node int) {
	mPtr := sp.numaStats.Load()
	if mPtr == nil {
		newMap := newNumamap()
		if sp.numaStats.CompareAndSwap(nil, newMap) {
			mPtr = newMap
		} else {
			mPtr = sp.numaStats.Load()
		}
	}
	mPtr.record(node)
}

func (sp *slabPool) get() *buffer.Buf {
	if buf, ok := sp.queue.Dequeue(); ok {
		buf.Reset()
		sp.totalAlloc.Add(1)
		sp.recordNode(sp.numaNode)
		return buf
	}

	data, err := sp.alloc.Alloc(sp.size, sp.numaNode)
	if err != nil || data == nil {
		data = make([]byte, sp.size)
	}
	var buf *buffer.Buf
	buf = buffer.New(data, sp.numaNode, func(raw []byte) { sp.put(buf, raw) })
	sp.totalAlloc.Add(1)
	sp.recordNode(sp.numaNode)
	return buf
}

// put is the release callback threaded through buffer.New; it is invoked by
// buffer.region when the last reference to a slab-pool buffer is dropped.
func (sp *slabPool) put(buf *buffer.Buf, raw []byte) {
	if sp.queue.Enqueue(buf) {
		sp.totalFree.Add(1)
		return
	}
	sp.alloc.Free(raw)
	sp.totalFree.Add(1)
}

func (sp *slabPool) stats() api.BufferPoolStats {
	totalAlloc := int64(sp.totalAlloc.Load())
	totalFree := int64(sp.totalFree.Load())
	inUse := totalAlloc - totalFree

	numaStats := make(map[int]int64)
	if nm := sp.numaStats.Load(); nm != nil {
		for node, cnt := range nm.Get() {
			numaStats[node] = int64(cnt)
		}
	}
	return api.BufferPoolStats{
		TotalAlloc: totalAlloc,
		TotalFree:  totalFree,
		InUse:      inUse,
		NUMAStats:  numaStats,
	}
}
