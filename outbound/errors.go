// File: outbound/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package outbound

import "errors"

var (
	// ErrCancelled is the failure cause recorded when a CompletionToken is cancelled.
	ErrCancelled = errors.New("outbound: write cancelled")
	// ErrClosed is returned by AddMessage once the queue has been closed.
	ErrClosed = errors.New("outbound: queue closed")
	// ErrNoFlushedEntries is returned by operations that require at least
	// one flushed entry (Current, RemoveBytes) when none is present.
	ErrNoFlushedEntries = errors.New("outbound: no flushed entries")
)
