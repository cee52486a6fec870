// File: outbound/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Queue is the outbound write queue: a singly linked list of pending writes
// split into an unflushed tail (still accepting AddMessage) and a flushed
// head (ready for the transport to drain), with water-mark backpressure.
// Grounded on Netty's ChannelOutboundBuffer; simplified by dropping the
// thread-local nioBuffers cache since a Queue is only ever touched from its
// owning reactor loop goroutine.

package outbound

import (
	"sync/atomic"

	"github.com/momentics/nioreactor/buffer"
)

const unwritableBit = uint32(1)

// Queue is the per-connection outbound write queue.
type Queue struct {
	cfg Config

	unflushedHead, tail *entry
	flushedHead          *entry
	flushedCount         int

	totalPendingBytes atomic.Int64
	userBits          atomic.Uint32
	unwritableBits    atomic.Uint32

	inFail bool
	closed bool

	scratch []buffer.IOView // reused across GatherViews calls
}

// NewQueue creates an empty Queue governed by cfg.
func NewQueue(cfg Config) *Queue {
	return &Queue{cfg: cfg}
}

// IsWritable reports whether neither the water-mark bit nor any user-set
// backpressure bit is raised. The water-mark bit is raised once pending bytes
// exceed the high water mark and lowered once they drop to or below the low
// water mark.
func (q *Queue) IsWritable() bool { return q.unwritableBits.Load() == 0 }

// SetUserBit raises user backpressure bit i (1..31), unrelated to the water mark.
func (q *Queue) SetUserBit(i uint) {
	for {
		old := q.userBits.Load()
		next := old | (1 << i)
		if q.userBits.CompareAndSwap(old, next) {
			q.recomputeUnwritable()
			return
		}
	}
}

// ClearUserBit lowers user backpressure bit i.
func (q *Queue) ClearUserBit(i uint) {
	for {
		old := q.userBits.Load()
		next := old &^ (1 << i)
		if q.userBits.CompareAndSwap(old, next) {
			q.recomputeUnwritable()
			return
		}
	}
}

func (q *Queue) recomputeUnwritable() {
	waterMark := uint32(0)
	if q.totalPendingBytes.Load() > q.cfg.HighWaterMark {
		waterMark = unwritableBit
	}
	q.unwritableBits.Store(q.userBits.Load() | waterMark)
}

func (q *Queue) adjustWaterMark(delta int64) {
	pending := q.totalPendingBytes.Add(delta)
	for {
		old := q.unwritableBits.Load()
		wasUnwritable := old&unwritableBit != 0
		var next uint32
		switch {
		case !wasUnwritable && pending > q.cfg.HighWaterMark:
			next = old | unwritableBit
		case wasUnwritable && pending <= q.cfg.LowWaterMark:
			next = old &^ unwritableBit
		default:
			return
		}
		if q.unwritableBits.CompareAndSwap(old, next) {
			return
		}
	}
}

// AddMessage appends buf to the unflushed tail with the given completion
// token. The queue takes over the caller's reference to buf (it does not
// Retain it) and releases it once the entry completes, fails or is cancelled.
func (q *Queue) AddMessage(buf *buffer.Buf, token CompletionToken) error {
	if q.closed {
		return ErrClosed
	}
	e := &entry{buf: buf, token: token, pending: int64(buf.NumReadable()) + q.cfg.EntryOverhead}
	if q.tail == nil {
		q.unflushedHead, q.tail = e, e
	} else {
		q.tail.next = e
		q.tail = e
	}
	q.adjustWaterMark(e.pending)
	return nil
}

// AddFlush moves every unflushed entry into the flushed list, making them
// visible to GatherViews/RemoveBytes. Each entry is promoted by trying to
// set it uncancellable; an entry that lost the race to a concurrent Cancel
// is released and its pending bytes backed out immediately instead of
// being gathered and sent.
func (q *Queue) AddFlush() {
	if q.unflushedHead == nil {
		return
	}
	for e := q.unflushedHead; e != nil; e = e.next {
		if e.token != nil && !e.token.TrySetUncancellable() {
			e.cancelled = true
			e.buf.Release()
			q.adjustWaterMark(-e.pending)
		}
	}
	if q.flushedHead == nil {
		q.flushedHead = q.unflushedHead
	} else {
		last := q.flushedHead
		for last.next != nil {
			last = last.next
		}
		last.next = q.unflushedHead
	}
	for e := q.unflushedHead; e != nil; e = e.next {
		q.flushedCount++
	}
	q.unflushedHead, q.tail = nil, nil
}

// Current returns the entry currently at the head of the flushed list, or
// nil if none is pending.
func (q *Queue) Current() *entry { return q.flushedHead }

// CurrentProgress returns the bytes already written of the current entry.
func (q *Queue) CurrentProgress() int64 {
	if q.flushedHead == nil {
		return 0
	}
	return q.flushedHead.written
}

// GatherViews builds up to maxCount IOViews spanning at most maxBytes bytes
// from the flushed list, reusing a scratch slice across calls. Cancelled
// entries (remaining() == 0) are skipped entirely -- their buffer was
// already released at flush time, so neither is touched here. The first
// non-cancelled entry is always included in full even if it alone exceeds
// maxBytes, so callers always make progress.
func (q *Queue) GatherViews() []buffer.IOView {
	q.scratch = q.scratch[:0]
	var total int64
	count := 0
	for e := q.flushedHead; e != nil && count < q.cfg.MaxGatherEntries; e = e.next {
		remaining := e.remaining()
		if remaining == 0 {
			continue
		}
		if count > 0 && total+remaining > q.cfg.MaxGatherBytes {
			break
		}
		view := buffer.IOView{Base: e.buf.ReadableBytes()[e.written:]}
		e.view = view
		q.scratch = append(q.scratch, view)
		total += remaining
		count++
	}
	return q.scratch
}

// RemoveBytes advances writtenBytes across the flushed list, completing and
// removing entries that are now fully written and recording partial
// progress on the entry still in flight.
func (q *Queue) RemoveBytes(writtenBytes int64) {
	for writtenBytes > 0 && q.flushedHead != nil {
		e := q.flushedHead
		remaining := e.remaining()
		if writtenBytes < remaining {
			e.written += writtenBytes
			if e.token != nil {
				e.token.Progress(e.written, int64(e.buf.NumReadable()))
			}
			return
		}
		writtenBytes -= remaining
		q.popFlushed(nil)
	}
}

// popFlushed removes the current flushed entry. If cause is non-nil, the
// entry's token is failed with it; otherwise it is succeeded. An entry
// already cancelled during AddFlush was already released and backed out of
// the pending-byte count there, and its token already resolved via Cancel,
// so it is simply unlinked here.
func (q *Queue) popFlushed(cause error) {
	e := q.flushedHead
	if e == nil {
		return
	}
	q.flushedHead = e.next
	q.flushedCount--
	if e.cancelled {
		return
	}
	q.adjustWaterMark(-e.pending)
	if e.token != nil {
		if cause != nil {
			e.token.Fail(cause)
		} else {
			e.token.Succeed()
		}
	}
	e.buf.Release()
}

// Remove removes the current flushed entry, failing it with cause. Returns
// false if there was nothing to remove.
func (q *Queue) Remove(cause error) bool {
	if q.flushedHead == nil {
		return false
	}
	q.popFlushed(cause)
	return true
}

// FailFlushed fails and removes every flushed entry with cause, used when a
// connection is torn down mid-write.
func (q *Queue) FailFlushed(cause error) {
	if q.inFail {
		return
	}
	q.inFail = true
	defer func() { q.inFail = false }()
	for q.flushedHead != nil {
		q.popFlushed(cause)
	}
}

// Close fails every remaining entry, flushed or not, and marks the queue
// closed to further AddMessage calls.
func (q *Queue) Close(cause error) {
	q.closed = true
	q.FailFlushed(cause)
	q.AddFlush()
	q.FailFlushed(cause)
}
