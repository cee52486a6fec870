// File: reactor/registration.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// registration tracks enough state about each registered fd for the
// reactor to rebuild its poller from scratch after busy-spin recovery,
// since epoll (unlike NIO's Selector.keys()) has no enumeration API.

package reactor

import "github.com/momentics/nioreactor/api"

type registration struct {
	fd       uintptr
	flags    api.IOFlags
	userData uintptr
}

// poller is the platform hook the shared Reactor loop drives. Implemented
// by reactor_linux.go (epoll); on other platforms reactor_stub.go's
// newPlatformPoller returns ErrUnsupportedPlatform instead of a poller.
type poller interface {
	register(fd uintptr, flags api.IOFlags) error
	modify(fd uintptr, flags api.IOFlags) error
	unregister(fd uintptr) error
	// wait blocks up to timeoutMs (negative means forever), appending ready
	// events to events[:0] reused storage and returning the populated slice.
	wait(timeoutMs int, events []api.Event) ([]api.Event, error)
	// waitNow performs a non-blocking poll, used for needs_reselect repair.
	waitNow(events []api.Event) ([]api.Event, error)
	// wake unblocks a concurrent wait call from any goroutine.
	wake() error
	// rebuild replaces the underlying poll handle, re-registering every
	// entry in regs (preserving interest flags), and returns the new
	// poller. The old handle is closed.
	rebuild(regs map[uintptr]*registration) (poller, error)
	close() error
}
