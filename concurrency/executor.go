// File: concurrency/executor.go
// Package concurrency implements a CPU-pinnable task executor with per-worker queues.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines, using lock-free local queues
// and a global queue fallback. Reactor handlers must not block the loop goroutine;
// they offload blocking work here.

package concurrency

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/nioreactor/affinity"
	"github.com/momentics/nioreactor/api"
)

// ErrExecutorClosed is returned by Submit once Close has been called.
var ErrExecutorClosed = errors.New("concurrency: executor is closed")

// TaskFunc is a unit of work to execute. Declared as an alias (not a
// defined type) so Executor.Submit's signature matches api.Executor's
// Submit(func()) exactly.
type TaskFunc = func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	globalQueue chan TaskFunc
	localQueues []*LockFreeQueue[TaskFunc]
	workers     []*worker
	closeCh     chan struct{}
	closed      int32
	numWorkers  int32
	mu          sync.Mutex

	totalTasks     int64
	completedTasks int64
}

// NewExecutor creates a new Executor with the given number of workers.
// If numWorkers <= 0, it defaults to runtime.NumCPU(). If cpuBase >= 0,
// worker i is pinned to logical CPU cpuBase+i via the affinity package.
func NewExecutor(numWorkers, cpuBase int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		globalQueue: make(chan TaskFunc, numWorkers*4),
		closeCh:     make(chan struct{}),
		numWorkers:  int32(numWorkers),
	}
	e.localQueues = make([]*LockFreeQueue[TaskFunc], numWorkers)
	e.workers = make([]*worker, numWorkers)
	for i := 0; i < numWorkers; i++ {
		e.localQueues[i] = NewLockFreeQueue[TaskFunc](1024)
	}
	for i := 0; i < numWorkers; i++ {
		w := &worker{
			id:         i,
			executor:   e,
			localQueue: e.localQueues[i],
			stopCh:     make(chan struct{}),
		}
		e.workers[i] = w
		cpu := -1
		if cpuBase >= 0 {
			cpu = cpuBase + i
		}
		go w.run(cpu)
	}
	return e
}

// Submit enqueues a task for execution, returning ErrExecutorClosed if the
// executor has been closed. ErrExecutorClosed is also returned when the
// chosen worker's local queue and the global queue are both full.
func (e *Executor) Submit(task TaskFunc) error {
	if atomic.LoadInt32(&e.closed) == 1 {
		return ErrExecutorClosed
	}
	n := atomic.AddInt64(&e.totalTasks, 1)
	idx := int(n % int64(e.NumWorkers()))
	if e.localQueues[idx].Enqueue(task) {
		return nil
	}
	select {
	case e.globalQueue <- task:
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	default:
		return ErrExecutorClosed
	}
}

// NumWorkers returns the current number of active workers.
func (e *Executor) NumWorkers() int {
	return int(atomic.LoadInt32(&e.numWorkers))
}

// Resize shrinks the active worker count to newCount by stopping workers
// from the high end of the pool; it is a no-op for newCount <= 0 or
// newCount above the pool size fixed at NewExecutor time. Growing back
// requires a fresh Executor: the local queue slice is sized once at
// construction so Submit's index arithmetic stays race-free without a lock.
func (e *Executor) Resize(newCount int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if newCount <= 0 || newCount > len(e.workers) {
		return
	}
	cur := int(atomic.LoadInt32(&e.numWorkers))
	for i := newCount; i < cur; i++ {
		w := e.workers[i]
		if atomic.CompareAndSwapInt32(&w.stopped, 0, 1) {
			close(w.stopCh)
		}
	}
	atomic.StoreInt32(&e.numWorkers, int32(newCount))
}

// Close gracefully shuts down the executor and signals all workers to exit.
func (e *Executor) Close() {
	if atomic.CompareAndSwapInt32(&e.closed, 0, 1) {
		close(e.closeCh)
		e.mu.Lock()
		defer e.mu.Unlock()
		for _, w := range e.workers {
			if atomic.CompareAndSwapInt32(&w.stopped, 0, 1) {
				close(w.stopCh)
			}
		}
	}
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	return map[string]int64{
		"total_tasks":     atomic.LoadInt64(&e.totalTasks),
		"completed_tasks": atomic.LoadInt64(&e.completedTasks),
		"pending_tasks":   atomic.LoadInt64(&e.totalTasks) - atomic.LoadInt64(&e.completedTasks),
		"num_workers":     int64(e.NumWorkers()),
	}
}

// worker represents a single executor goroutine.
type worker struct {
	id         int
	executor   *Executor
	localQueue *LockFreeQueue[TaskFunc]
	stopCh     chan struct{}
	stopped    int32
}

// run is the main loop for a worker, optionally pinned to a logical CPU.
func (w *worker) run(cpuID int) {
	defer atomic.StoreInt32(&w.stopped, 1)
	if cpuID >= 0 {
		runtime.LockOSThread()
		affinity.SetAffinity(cpuID)
	}
	for {
		select {
		case <-w.stopCh:
			return
		default:
			if task, ok := w.localQueue.Dequeue(); ok {
				w.executeTask(task)
				continue
			}
			select {
			case task := <-w.executor.globalQueue:
				w.executeTask(task)
			case <-w.stopCh:
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// executeTask runs the task, recovering from panics to keep the worker alive.
func (w *worker) executeTask(task TaskFunc) {
	defer func() {
		recover()
		atomic.AddInt64(&w.executor.completedTasks, 1)
	}()
	task()
}

var _ api.Executor = (*Executor)(nil)
