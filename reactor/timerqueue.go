// File: reactor/timerqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// scheduledTask min-heap, grounded on ecryth-asyncigo's callbackQueue
// (container/heap over a Less comparing a deadline field), generalized from
// a single callback type to a reusable ordered-key heap.

package reactor

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

// orderedHeapItem is any value an orderedHeap can order by key K.
type orderedHeapItem[K constraints.Ordered] interface {
	heapKey() K
	setHeapIndex(i int)
}

// orderedHeap is a container/heap.Interface over items ordered by heapKey().
type orderedHeap[K constraints.Ordered, T orderedHeapItem[K]] []T

func (h orderedHeap[K, T]) Len() int            { return len(h) }
func (h orderedHeap[K, T]) Less(i, j int) bool   { return h[i].heapKey() < h[j].heapKey() }
func (h orderedHeap[K, T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].setHeapIndex(i)
	h[j].setHeapIndex(j)
}
func (h *orderedHeap[K, T]) Push(x any) {
	item := x.(T)
	item.setHeapIndex(len(*h))
	*h = append(*h, item)
}
func (h *orderedHeap[K, T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	item.setHeapIndex(-1)
	*h = old[:n-1]
	return item
}

// scheduledTask is a one-shot task due at deadline (monotonic nanoseconds).
type scheduledTask struct {
	deadline  int64
	fn        func()
	index     int
	cancelled bool
	done      chan struct{}
	err       error
}

func (s *scheduledTask) heapKey() int64       { return s.deadline }
func (s *scheduledTask) setHeapIndex(i int)   { s.index = i }

// Cancel marks the task cancelled; if it has not fired yet, the loop skips
// it when popped. Satisfies api.Cancelable.
func (s *scheduledTask) Cancel() error {
	if s.cancelled {
		return nil
	}
	s.cancelled = true
	close(s.done)
	return nil
}

// Done is closed by Cancel; it is not closed when the task fires.
func (s *scheduledTask) Done() <-chan struct{} { return s.done }
func (s *scheduledTask) Err() error            { return s.err }

// timerQueue is the reactor's scheduled-task min-heap, keyed by absolute
// deadline. Only the loop goroutine touches it.
type timerQueue struct {
	h orderedHeap[int64, *scheduledTask]
}

func newTimerQueue() *timerQueue {
	q := &timerQueue{}
	heap.Init(&q.h)
	return q
}

func (q *timerQueue) add(t *scheduledTask) {
	heap.Push(&q.h, t)
}

func (q *timerQueue) empty() bool { return q.h.Len() == 0 }

// peekDeadline returns the next due deadline, ok=false if the heap is empty.
func (q *timerQueue) peekDeadline() (int64, bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	return q.h[0].deadline, true
}

// popDue moves every task whose deadline has passed nowNs into run, skipping
// (and dropping) cancelled ones.
func (q *timerQueue) popDue(nowNs int64, run *[]func()) {
	for q.h.Len() > 0 && q.h[0].deadline <= nowNs {
		t := heap.Pop(&q.h).(*scheduledTask)
		if t.cancelled {
			continue
		}
		*run = append(*run, t.fn)
	}
}
