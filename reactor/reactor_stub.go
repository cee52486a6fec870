//go:build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub poller backend for platforms without a wired epoll equivalent.

package reactor

func newPlatformPoller() (poller, error) {
	return nil, ErrUnsupportedPlatform
}
