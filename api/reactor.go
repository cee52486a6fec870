// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for event-driven IO Reactors
// used to multiplex connections across poll-mode backends (epoll, IOCP, io_uring, etc.)

package api

// IOFlags describes the readiness condition a registration is interested in
// or that a poll iteration reported.
type IOFlags uint8

const (
	IORead IOFlags = 1 << iota
	IOWrite
	IOError
)

// Event encapsulates the result of an OS-level readiness notification.
type Event struct {
	Fd       uintptr // file descriptor or system handle
	UserData uintptr // opaque application value, usually a pointer-to-connection/context
	Flags    IOFlags
}

// Task is a unit of work submitted to a Reactor's loop-local task queue.
// Tasks run on the reactor's own goroutine, interleaved with I/O dispatch,
// so they must never block.
type Task func()

// Reactor defines the common interface for a single-threaded event-loop
// that multiplexes socket readiness, loop-affine tasks, and timers,
// regardless of the specific polling mechanism backing it.
type Reactor interface {
	// Register associates a socket/file handle with the event loop for the
	// given interest flags. userData is echoed back on every Event for fd.
	// onReady is invoked on the reactor's own goroutine whenever fd becomes
	// ready; it must not block.
	Register(fd uintptr, flags IOFlags, userData uintptr, onReady func(Event)) error

	// Modify changes the interest flags for an already-registered fd.
	Modify(fd uintptr, flags IOFlags) error

	// Unregister removes fd from the event loop.
	Unregister(fd uintptr) error

	// Submit queues a task for execution on the reactor's own goroutine.
	// Safe to call from any goroutine; wakes the loop if it is blocked
	// waiting for I/O.
	Submit(t Task) error

	// Schedule queues fn to run once the loop's monotonic clock reaches
	// delay from now. Returns a Cancelable to abort before it fires.
	Schedule(delay int64, fn func()) (Cancelable, error)

	// Run blocks, driving the loop until Close is called.
	Run() error

	// Close stops the loop and releases the underlying poller backend.
	Close() error
}
