// File: outbound/token.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CompletionToken is the Go-native replacement for Netty's ChannelPromise:
// a caller-suppliable completion contract for a queued write.

package outbound

import "sync/atomic"

// CompletionToken lets a caller observe and control the lifecycle of a
// single queued write. Implementations must be safe for concurrent use,
// since Succeed/Fail/Progress fire from the reactor loop goroutine while
// Cancel may be called from any goroutine.
type CompletionToken interface {
	// TrySetUncancellable marks the write as no longer cancellable and
	// reports whether it succeeded (it fails if Cancel already won the race).
	TrySetUncancellable() bool
	// Cancel attempts to cancel the write before it reaches the wire.
	Cancel() bool
	// Cancelled reports whether Cancel has already won.
	Cancelled() bool
	// Succeed marks the write as completed successfully.
	Succeed()
	// Fail marks the write as failed with the given cause.
	Fail(err error)
	// Progress reports partial completion for a write still in flight.
	Progress(written, total int64)
}

// Token is the default channel-based CompletionToken, suitable for tests
// and the TCP transport.
type Token struct {
	done          chan struct{}
	err           error
	cancelled     atomic.Bool
	uncancellable atomic.Bool
	finished      atomic.Bool
	written       atomic.Int64
	total         atomic.Int64
}

// NewToken creates an unresolved Token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

func (t *Token) TrySetUncancellable() bool {
	if t.cancelled.Load() {
		return false
	}
	t.uncancellable.Store(true)
	return true
}

func (t *Token) Cancel() bool {
	if t.uncancellable.Load() || t.finished.Load() {
		return false
	}
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}
	t.Fail(ErrCancelled)
	return true
}

func (t *Token) Cancelled() bool { return t.cancelled.Load() }

func (t *Token) Succeed() {
	if t.finished.CompareAndSwap(false, true) {
		close(t.done)
	}
}

func (t *Token) Fail(err error) {
	if t.finished.CompareAndSwap(false, true) {
		t.err = err
		close(t.done)
	}
}

func (t *Token) Progress(written, total int64) {
	t.written.Store(written)
	t.total.Store(total)
}

// Done reports completion (success, failure, or cancellation).
func (t *Token) Done() <-chan struct{} { return t.done }

// Err returns the failure reason, or nil if the write succeeded.
func (t *Token) Err() error { return t.err }
