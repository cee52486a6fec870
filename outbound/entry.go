// File: outbound/entry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// entry is a singly linked write-queue node, mirroring Netty's
// ChannelOutboundBuffer.Entry: a message plus its completion contract,
// chained into the queue's flushed/unflushed lists.

package outbound

import "github.com/momentics/nioreactor/buffer"

type entry struct {
	next *entry

	buf     *buffer.Buf
	token   CompletionToken
	pending int64 // accounted size, including entry overhead
	written int64 // bytes already written to the wire
	view    buffer.IOView
	cancelled bool
}

func (e *entry) remaining() int64 {
	if e.cancelled {
		return 0
	}
	total := int64(e.buf.NumReadable())
	if e.written >= total {
		return 0
	}
	return total - e.written
}
