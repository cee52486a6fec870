// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reactor is the single-threaded selector loop: one goroutine owns a poll
// backend, a task queue, and a scheduled-task timer heap, interleaving I/O
// dispatch with task draining under a tunable fairness ratio, with wake-up
// race repair, busy-spin recovery, and I/O-ratio scheduling.

package reactor

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/nioreactor/api"
	"github.com/momentics/nioreactor/concurrency"
)

// Reactor drives one OS poller plus its loop-affine task and timer queues.
// Register/Modify/Unregister must be called either before Run starts or
// from within a task/ready callback executing on the loop goroutine itself
// -- the loop thread is the single writer for all registration state.
// Foreign goroutines that need to register an fd must do so via a Submit
// task and synchronize themselves if they need the result.
type Reactor struct {
	cfg Config

	p         poller
	regs      map[uintptr]*registration
	callbacks map[uintptr]readyCallback
	ready     *queue.Queue

	taskQueue *concurrency.LockFreeQueue[api.Task]
	timers    *timerQueue

	wakeupPending atomic.Bool
	closed        atomic.Bool

	selectCount   int
	cancelledKeys int
	needsReselect bool

	eventBuf []api.Event
}

// New constructs a Reactor with the platform-appropriate poller backend.
// Returns ErrUnsupportedPlatform where no native backend exists.
func New(cfg Config) (*Reactor, error) {
	p, err := newPlatformPoller()
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		cfg:       cfg,
		p:         p,
		regs:      make(map[uintptr]*registration),
		callbacks: make(map[uintptr]readyCallback),
		ready:     queue.New(),
		taskQueue: concurrency.NewLockFreeQueue[api.Task](cfg.TaskQueueCapacity),
		timers:    newTimerQueue(),
		eventBuf:  make([]api.Event, cfg.MaxReadyEvents),
	}
	return r, nil
}

// readyCallback is invoked from the loop goroutine whenever its fd becomes
// ready; kept separate from registration so rebuild() only needs to copy
// the plain (fd, flags) pairs the poller cares about.
type readyCallback = func(api.Event)

// Register adds fd to the poll set with the given interest flags, invoking
// onReady from the loop goroutine on every subsequent readiness event.
func (r *Reactor) Register(fd uintptr, flags api.IOFlags, userData uintptr, onReady func(api.Event)) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if _, exists := r.regs[fd]; exists {
		return ErrAlreadyRegistered
	}
	if err := r.p.register(fd, flags); err != nil {
		return err
	}
	r.regs[fd] = &registration{fd: fd, flags: flags, userData: userData}
	r.callbacks[fd] = onReady
	return nil
}

// Modify changes the interest flags for an already-registered fd.
func (r *Reactor) Modify(fd uintptr, flags api.IOFlags) error {
	reg, ok := r.regs[fd]
	if !ok {
		return ErrNotRegistered
	}
	if err := r.p.modify(fd, flags); err != nil {
		return err
	}
	reg.flags = flags
	return nil
}

// Unregister removes fd from the poll set and its callback.
func (r *Reactor) Unregister(fd uintptr) error {
	if _, ok := r.regs[fd]; !ok {
		return ErrNotRegistered
	}
	err := r.p.unregister(fd)
	delete(r.regs, fd)
	delete(r.callbacks, fd)
	r.cancelledKeys++
	if r.cfg.CancelledKeyRebuildThreshold > 0 && r.cancelledKeys >= r.cfg.CancelledKeyRebuildThreshold {
		r.needsReselect = true
	}
	return err
}

// Submit queues t for execution on the loop goroutine, waking it if it is
// currently blocked in a poll call. Safe from any goroutine.
func (r *Reactor) Submit(t api.Task) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if !r.taskQueue.Enqueue(t) {
		return ErrQueueFull
	}
	r.wakeup()
	return nil
}

// Schedule queues fn to run once delayNs nanoseconds have elapsed.
func (r *Reactor) Schedule(delayNs int64, fn func()) (api.Cancelable, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	t := &scheduledTask{deadline: monotonicNow() + delayNs, fn: fn, done: make(chan struct{})}
	if err := r.Submit(func() { r.timers.add(t) }); err != nil {
		return nil, err
	}
	return t, nil
}

// Cancel cancels a Cancelable previously returned by Schedule. Satisfies
// api.Scheduler; equivalent to calling c.Cancel() directly.
func (r *Reactor) Cancel(c api.Cancelable) error {
	return c.Cancel()
}

// Now returns the same monotonic clock Schedule computes deadlines against.
func (r *Reactor) Now() int64 {
	return monotonicNow()
}

// wakeup implements the CAS false->true + poller.wake() discipline: only
// the goroutine that wins the CAS actually pokes the poller, so concurrent
// wakeups collapse into a single underlying wake.
func (r *Reactor) wakeup() {
	if r.wakeupPending.CompareAndSwap(false, true) {
		_ = r.p.wake()
	}
}

// clockStart anchors monotonicNow; time.Since reads the monotonic clock.
var clockStart = time.Now()

func monotonicNow() int64 { return int64(time.Since(clockStart)) }

// nextTimeoutMs computes the blocking poll timeout from the nearest timer
// deadline, or -1 (block indefinitely) if none is scheduled and no task is
// already pending.
func (r *Reactor) nextTimeoutMs() int {
	if r.taskQueue.Len() > 0 {
		return 0
	}
	deadline, ok := r.timers.peekDeadline()
	if !ok {
		return -1
	}
	remaining := deadline - monotonicNow()
	if remaining <= 0 {
		return 0
	}
	ms := remaining / int64(time.Millisecond)
	if ms > int64(^uint32(0)>>1) {
		ms = int64(^uint32(0) >> 1)
	}
	return int(ms)
}

// Run blocks, driving the loop until Close is called. It returns nil when
// Close has been called and no registration remains; if registrations remain,
// the next wait on the poller Close released fails and Run returns that error.
func (r *Reactor) Run() error {
	for {
		if r.closed.Load() && len(r.regs) == 0 {
			return nil
		}

		timeoutMs := r.nextTimeoutMs()
		r.wakeupPending.Store(false)

		waitStart := time.Now()
		events, err := r.p.wait(timeoutMs, r.eventBuf[:0])
		if err := r.noteSelectResult(events, err, timeoutMs, time.Since(waitStart)); err != nil {
			return err
		}

		// Race repair: a wakeup() call that lands between the reset above
		// and the poller actually blocking would otherwise be silently
		// absorbed; re-poke so it is observed on the next iteration too.
		if r.wakeupPending.Load() {
			_ = r.p.wake()
		}

		ioStart := time.Now()
		for _, ev := range events {
			r.ready.Add(ev)
		}
		r.processReady()
		r.runDueTimers()
		r.runTasks(time.Since(ioStart))
	}
}

// noteSelectResult updates the busy-spin counter for one poll wait and
// triggers a poller rebuild once it crosses cfg.RebuildThreshold. Only a
// select that returned zero readies strictly before its computed timeout
// elapsed counts as a spin: an indefinite block (timeoutMs == -1) woken by
// the eventfd waker, and a select that legitimately waited out its full
// timer, are not spins and reset the counter instead. An OS interrupt
// (errInterrupted) resets the counter to 1 rather than incrementing it.
func (r *Reactor) noteSelectResult(events []api.Event, err error, timeoutMs int, elapsed time.Duration) error {
	switch {
	case err != nil && errors.Is(err, errInterrupted):
		r.selectCount = 1
		return nil
	case err != nil:
		return fmt.Errorf("reactor: poll wait: %w", err)
	case len(events) == 0 && timeoutMs > 0 && elapsed < time.Duration(timeoutMs)*time.Millisecond:
		r.selectCount++
		if r.cfg.RebuildThreshold > 0 && r.selectCount >= r.cfg.RebuildThreshold {
			if err := r.rebuildPoller(); err != nil {
				fmt.Fprintf(os.Stderr, "reactor: poller rebuild failed: %v\n", api.WrapError(api.ErrCodeRebuildSelector, err))
				// Back off before the next spin retries the rebuild, so a
				// persistently failing rebuild cannot run the CPU hot.
				time.Sleep(time.Second)
			} else {
				r.selectCount = 0
			}
		}
		return nil
	default:
		r.selectCount = 0
		return nil
	}
}

func (r *Reactor) rebuildPoller() error {
	np, err := r.p.rebuild(r.regs)
	if err != nil {
		return err
	}
	r.p = np
	return nil
}

// processReady drains the per-iteration ready container; order within an
// iteration is FIFO, matching the order the poll backend reported events.
func (r *Reactor) processReady() {
	for r.ready.Length() > 0 {
		ev := r.ready.Peek().(api.Event)
		r.ready.Remove()

		reg, ok := r.regs[ev.Fd]
		if !ok {
			continue // unregistered since this event was queued
		}
		ev.UserData = reg.userData
		if cb, ok := r.callbacks[ev.Fd]; ok && cb != nil {
			func() {
				defer func() { _ = recover() }()
				cb(ev)
			}()
		}

		if r.needsReselect {
			r.needsReselect = false
			r.cancelledKeys = 0
			more, err := r.p.waitNow(r.eventBuf[:0])
			if err == nil {
				for _, ev := range more {
					r.ready.Add(ev)
				}
			}
		}
	}
}

func (r *Reactor) runDueTimers() {
	var due []func()
	r.timers.popDue(monotonicNow(), &due)
	for _, fn := range due {
		func() {
			defer func() { _ = recover() }()
			fn()
		}()
	}
}

// runTasks drains the task queue under the configured I/O ratio: when
// io_ratio is 100, every task runs uncapped; otherwise the task budget is
// ioTime * (100 - ratio) / ratio, where ioTime is how long ready-key and
// timer processing just took this iteration.
func (r *Reactor) runTasks(ioTime time.Duration) {
	ratio := r.cfg.IORatio
	if ratio <= 0 {
		ratio = 1
	}
	if ratio > 100 {
		ratio = 100
	}

	deadline := time.Time{}
	if ratio < 100 {
		budget := ioTime * time.Duration(100-ratio) / time.Duration(ratio)
		deadline = time.Now().Add(budget)
	}

	for {
		t, ok := r.taskQueue.Dequeue()
		if !ok {
			return
		}
		func() {
			defer func() { _ = recover() }()
			t()
		}()
		if ratio < 100 && !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
	}
}

// Close wakes any in-flight wait call and releases the poller backend
// immediately, without waiting for registrations to drain; see Run for how
// the loop then exits.
func (r *Reactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.wakeup()
	return r.p.close()
}

var _ api.Reactor = (*Reactor)(nil)
var _ api.Scheduler = (*Reactor)(nil)
