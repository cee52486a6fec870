// File: concurrency/queue.go
// Package concurrency provides lock-free primitives for the reactor core.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// LockFreeQueue is a bounded multi-producer/single-consumer ring buffer.
// Any goroutine may Enqueue; only the owning consumer goroutine may Dequeue.

package concurrency

import (
	"sync/atomic"

	"github.com/momentics/nioreactor/api"
)

type cell[T any] struct {
	sequence atomic.Uint64
	value    T
}

// LockFreeQueue is a bounded Vyukov-style MPSC ring buffer: any goroutine may
// Enqueue, but Dequeue must only be called from the single consumer goroutine
// (the reactor loop). Capacity is rounded up to the next power of two.
type LockFreeQueue[T any] struct {
	mask  uint64
	cells []cell[T]
	_     [64]byte
	head  uint64
	_     [64]byte
	tail  atomic.Uint64
}

// NewLockFreeQueue creates a queue with capacity rounded up to the next power of two.
func NewLockFreeQueue[T any](capacity int) *LockFreeQueue[T] {
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &LockFreeQueue[T]{mask: uint64(size - 1), cells: make([]cell[T], size)}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Enqueue adds val from any producer goroutine; returns false if the queue is full.
func (q *LockFreeQueue[T]) Enqueue(val T) bool {
	var c *cell[T]
	pos := q.tail.Load()
	for {
		c = &q.cells[pos&q.mask]
		seq := c.sequence.Load()
		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				goto commit
			}
			pos = q.tail.Load()
		case diff < 0:
			return false
		default:
			pos = q.tail.Load()
		}
	}
commit:
	c.value = val
	c.sequence.Store(pos + 1)
	return true
}

// Dequeue removes and returns the oldest item. Must only be called from the
// single consumer goroutine.
func (q *LockFreeQueue[T]) Dequeue() (item T, ok bool) {
	pos := q.head
	c := &q.cells[pos&q.mask]
	seq := c.sequence.Load()
	if int64(seq)-int64(pos+1) != 0 {
		return item, false
	}
	item = c.value
	q.head = pos + 1
	c.sequence.Store(pos + q.mask + 1)
	return item, true
}

// Len returns the approximate number of queued items.
func (q *LockFreeQueue[T]) Len() int {
	return int(q.tail.Load() - q.head)
}

// Cap returns the queue's fixed capacity (the next power of two at or above
// the capacity requested at construction).
func (q *LockFreeQueue[T]) Cap() int {
	return int(q.mask + 1)
}

var _ api.Ring[int] = (*LockFreeQueue[int])(nil)
