// File: transport/tcp/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"errors"

	"github.com/momentics/nioreactor/api"
)

var (
	// ErrUnsupportedPlatform is returned by NewListener on platforms without
	// a reactor poller backend.
	ErrUnsupportedPlatform = errors.New("tcp: unsupported platform")
	// ErrListenerClosed is returned by operations on a closed Listener,
	// spec.md §7's CLOSED_CHANNEL kind.
	ErrListenerClosed = api.NewError(api.ErrCodeClosedChannel, "tcp: listener closed")
	// ErrConnClosed is returned by Write once the connection has closed,
	// spec.md §7's CLOSED_CHANNEL kind; surfaced to the completion tokens of
	// writes issued after close and of writes still queued when a clean close
	// tears the connection down. cfg.OnClose receives nil for a clean close.
	ErrConnClosed = api.NewError(api.ErrCodeClosedChannel, "tcp: connection closed")
	// ErrNoHandlerFactory is returned by NewListener when cfg.NewHandler is nil.
	ErrNoHandlerFactory = errors.New("tcp: ListenerConfig.NewHandler is required")
)

// wrapIOError attaches spec.md §7's IO_ERROR kind to an OS-level failure
// from read/write/select, for callers that branch on api.Error.Code.
func wrapIOError(err error) error {
	if err == nil {
		return nil
	}
	return api.WrapError(api.ErrCodeIO, err)
}
