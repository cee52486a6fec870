// File: buffer/ioview.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// IOView exposes a Buf's readable region as a zero-copy vector descriptor
// for scatter-gather syscalls (writev, SendmsgBuffers, RecvmsgBuffers).

package buffer

// IOView is a syscall.Iovec-shaped view over live buffer memory. It is only
// valid for as long as the originating Buf is retained; callers that queue
// an IOView for later use must Retain the Buf first.
type IOView struct {
	Base []byte
}

// IOView returns the zero-copy vector descriptor for the readable region.
func (b *Buf) IOView() IOView {
	return IOView{Base: b.ReadableBytes()}
}

// WritableIOView returns the vector descriptor for unused capacity beyond
// writeIdx, for readers that fill a Buf directly from a socket.
func (b *Buf) WritableIOView() IOView {
	return IOView{Base: b.WritableBytes()}
}
