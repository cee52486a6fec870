// File: reactor/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "errors"

var (
	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("reactor: closed")
	// ErrNotRegistered is returned by Modify/Unregister for an unknown fd.
	ErrNotRegistered = errors.New("reactor: fd not registered")
	// ErrAlreadyRegistered is returned by Register for a known fd.
	ErrAlreadyRegistered = errors.New("reactor: fd already registered")
	// ErrUnsupportedPlatform is returned by the poller factory on platforms
	// without a native poll backend.
	ErrUnsupportedPlatform = errors.New("reactor: platform not supported")
	// ErrQueueFull is returned by Submit when the task queue is saturated.
	ErrQueueFull = errors.New("reactor: task queue full")
	// errInterrupted signals that a poll wait returned early because of an
	// OS interrupt (EINTR) rather than a timeout or genuine readiness, so
	// the caller should not count it toward busy-spin detection.
	errInterrupted = errors.New("reactor: poll wait interrupted")
)
