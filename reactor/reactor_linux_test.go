// File: reactor/reactor_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/nioreactor/api"
	"github.com/momentics/nioreactor/concurrency"
)

// fakePoller is a deterministic, in-memory poller stand-in so the busy-spin
// and wake-up-race tests do not depend on real epoll timing.
type fakePoller struct {
	mu          sync.Mutex
	regs        map[uintptr]api.IOFlags
	rebuilds    int
	waitCalls   int
	forceEmpty  bool
	wakeEvents  chan struct{}
	closeCalled bool
}

func newFakePoller() *fakePoller {
	return &fakePoller{regs: make(map[uintptr]api.IOFlags), wakeEvents: make(chan struct{}, 64)}
}

func (f *fakePoller) register(fd uintptr, flags api.IOFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[fd] = flags
	return nil
}

func (f *fakePoller) modify(fd uintptr, flags api.IOFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[fd] = flags
	return nil
}

func (f *fakePoller) unregister(fd uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.regs, fd)
	return nil
}

func (f *fakePoller) wait(timeoutMs int, events []api.Event) ([]api.Event, error) {
	f.mu.Lock()
	f.waitCalls++
	f.mu.Unlock()
	select {
	case <-f.wakeEvents:
	default:
	}
	return events[:0], nil
}

func (f *fakePoller) waitNow(events []api.Event) ([]api.Event, error) {
	return events[:0], nil
}

func (f *fakePoller) wake() error {
	select {
	case f.wakeEvents <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakePoller) rebuild(regs map[uintptr]*registration) (poller, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds++
	nf := newFakePoller()
	for fd, reg := range regs {
		nf.regs[fd] = reg.flags
	}
	return nf, nil
}

func (f *fakePoller) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalled = true
	return nil
}

func newTestReactor(t *testing.T, cfg Config) (*Reactor, *fakePoller) {
	t.Helper()
	fp := newFakePoller()
	r := &Reactor{
		cfg:       cfg,
		p:         fp,
		regs:      make(map[uintptr]*registration),
		callbacks: make(map[uintptr]readyCallback),
	}
	r.ready = queue.New()
	r.taskQueue = concurrency.NewLockFreeQueue[api.Task](cfg.TaskQueueCapacity)
	r.timers = newTimerQueue()
	r.eventBuf = make([]api.Event, cfg.MaxReadyEvents)
	return r, fp
}

// TestBusySpinRebuild injects 512 consecutive empty blocking waits and
// expects the poller to be rebuilt exactly once, with every previously
// registered fd preserved.
func TestBusySpinRebuild(t *testing.T) {
	cfg := Default()
	cfg.RebuildThreshold = 512
	r, fp := newTestReactor(t, cfg)

	if err := r.Register(7, api.IORead, 0, func(api.Event) {}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(9, api.IOWrite, 0, func(api.Event) {}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// timeoutMs=5 with elapsed=0 simulates a select that returned zero
	// readies well before its computed timeout -- a genuine busy-spin.
	for i := 0; i < 512; i++ {
		events, err := r.p.wait(5, r.eventBuf[:0])
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
		if err := r.noteSelectResult(events, nil, 5, 0); err != nil {
			t.Fatalf("noteSelectResult: %v", err)
		}
	}

	if fp.rebuilds != 1 {
		t.Fatalf("expected exactly one rebuild, got %d", fp.rebuilds)
	}
	newFP, ok := r.p.(*fakePoller)
	if !ok {
		t.Fatalf("expected *fakePoller after rebuild")
	}
	if len(newFP.regs) != 2 {
		t.Fatalf("expected 2 preserved registrations, got %d", len(newFP.regs))
	}
	if _, ok := newFP.regs[7]; !ok {
		t.Fatalf("fd 7 missing after rebuild")
	}
	if _, ok := newFP.regs[9]; !ok {
		t.Fatalf("fd 9 missing after rebuild")
	}
}

// TestNoteSelectResultIgnoresIndefiniteBlock checks that a zero-ready return
// from an indefinite block (timeoutMs == -1, woken by the eventfd waker)
// never counts as a busy-spin.
func TestNoteSelectResultIgnoresIndefiniteBlock(t *testing.T) {
	cfg := Default()
	cfg.RebuildThreshold = 2
	r, _ := newTestReactor(t, cfg)

	for i := 0; i < 10; i++ {
		if err := r.noteSelectResult(nil, nil, -1, 0); err != nil {
			t.Fatalf("noteSelectResult: %v", err)
		}
	}
	if r.selectCount != 0 {
		t.Fatalf("expected selectCount to stay 0 for indefinite blocks, got %d", r.selectCount)
	}
}

// TestNoteSelectResultIgnoresFullTimeout checks that a zero-ready return
// which waited out its full computed timeout is a legitimate timeout, not a
// busy-spin.
func TestNoteSelectResultIgnoresFullTimeout(t *testing.T) {
	cfg := Default()
	cfg.RebuildThreshold = 2
	r, _ := newTestReactor(t, cfg)

	for i := 0; i < 10; i++ {
		if err := r.noteSelectResult(nil, nil, 5, 5*time.Millisecond); err != nil {
			t.Fatalf("noteSelectResult: %v", err)
		}
	}
	if r.selectCount != 0 {
		t.Fatalf("expected selectCount to stay 0 once the full timeout elapsed, got %d", r.selectCount)
	}
}

// TestNoteSelectResultEINTRResetsToOne checks that an OS interrupt resets
// the spin counter to 1 instead of incrementing it like a genuine spin.
func TestNoteSelectResultEINTRResetsToOne(t *testing.T) {
	r, _ := newTestReactor(t, Default())
	r.selectCount = 7

	if err := r.noteSelectResult(nil, errInterrupted, 5, 0); err != nil {
		t.Fatalf("noteSelectResult: %v", err)
	}
	if r.selectCount != 1 {
		t.Fatalf("expected selectCount reset to 1 after EINTR, got %d", r.selectCount)
	}
}

// TestWakeupRaceRepair checks the wake-up discipline the race repair relies
// on: concurrent wakeup() calls collapse into one poller.wake(), and once the
// loop resets wakeupPending a fresh wakeup() wins the CAS and pokes the
// poller again. It drives wakeup() directly, not Run's post-wait re-wake.
func TestWakeupRaceRepair(t *testing.T) {
	cfg := Default()
	r, fp := newTestReactor(t, cfg)

	r.wakeupPending.Store(false)
	r.wakeup()
	if !r.wakeupPending.Load() {
		t.Fatalf("expected wakeupPending to be set")
	}
	if len(fp.wakeEvents) != 1 {
		t.Fatalf("expected exactly one poller.wake() call, got %d", len(fp.wakeEvents))
	}

	// A second wakeup() call while wakeupPending is already true must not
	// poke the poller again -- the CAS only lets the winning caller wake it.
	r.wakeup()
	if len(fp.wakeEvents) != 1 {
		t.Fatalf("expected no additional wake while wakeupPending was already true, got %d", len(fp.wakeEvents))
	}

	// Drain the pending wake with wait(), then simulate the loop's own
	// reset of wakeupPending followed by a fresh wakeup() call: that call
	// must win the CAS again and deliver a new poller.wake().
	events, err := r.p.wait(-1, r.eventBuf[:0])
	if err != nil || len(events) != 0 {
		t.Fatalf("wait: %v", err)
	}
	r.wakeupPending.Store(false)
	r.wakeup()
	if r.wakeupPending.Load() != true {
		t.Fatalf("expected wakeupPending true after post-reset wakeup")
	}
	if len(fp.wakeEvents) != 1 {
		t.Fatalf("expected the post-reset wake to have been delivered, got %d pending", len(fp.wakeEvents))
	}
}
