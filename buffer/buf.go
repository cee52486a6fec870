// File: buffer/buf.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buf is the reader/writer-indexed handle over a reference-counted region.
// Reading advances readIdx, writing advances writeIdx; readIdx <= writeIdx
// <= capacity <= maxCapacity always holds.

package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/momentics/nioreactor/api"
)

var (
	// ErrIndexOutOfRange is returned by Read/Write calls that would cross
	// readIdx/writeIdx/capacity boundaries.
	ErrIndexOutOfRange = errors.New("buffer: index out of range")
	// ErrMaxCapacity is returned when EnsureWritable cannot grow past maxCapacity.
	ErrMaxCapacity = errors.New("buffer: requested capacity exceeds max capacity")
)

// Buf is a resliceable, reference-counted byte buffer with independent
// reader and writer cursors. It satisfies api.Buffer.
type Buf struct {
	region      *region
	off         int // base offset into region.data
	readIdx     int
	writeIdx    int
	capacity    int
	maxCapacity int
	order       binary.ByteOrder
	adopted     bool // true while this buffer is a cumulation's adopted first fragment
}

// defaultMaxCapacity bounds growth for buffers created without an explicit
// maximum, generous enough that EnsureWritable only fails deliberately.
const defaultMaxCapacity = 1 << 30

// New wraps data as a standalone Buf (refcount 1, no pool). release, if
// non-nil, is invoked with the backing slice when the last reference drops.
// The buffer may grow up to defaultMaxCapacity; use NewBounded for a tighter
// limit.
func New(data []byte, numaNode int, release func([]byte)) *Buf {
	return newBuf(newRegion(data, numaNode, release), 0, len(data), defaultMaxCapacity)
}

// NewBounded is like New but caps growth at maxCapacity.
func NewBounded(data []byte, numaNode, maxCapacity int, release func([]byte)) *Buf {
	return newBuf(newRegion(data, numaNode, release), 0, len(data), maxCapacity)
}

func newBuf(r *region, off, capacity, maxCapacity int) *Buf {
	return &Buf{
		region:      r,
		off:         off,
		capacity:    capacity,
		maxCapacity: maxCapacity,
		order:       binary.BigEndian,
	}
}

func (b *Buf) window() []byte { return b.region.data[b.off : b.off+b.capacity] }

// Bytes returns the full addressable window of this handle, irrespective of
// reader/writer indices. Callers that want only unread data should use
// ReadableBytes.
func (b *Buf) Bytes() []byte { return b.window() }

// ReadableBytes returns the slice of data between readIdx and writeIdx.
func (b *Buf) ReadableBytes() []byte { return b.window()[b.readIdx:b.writeIdx] }

// WritableBytes returns the unused capacity beyond writeIdx.
func (b *Buf) WritableBytes() []byte { return b.window()[b.writeIdx:b.capacity] }

func (b *Buf) ReaderIndex() int { return b.readIdx }
func (b *Buf) WriterIndex() int { return b.writeIdx }
func (b *Buf) Capacity() int    { return b.capacity }
func (b *Buf) MaxCapacity() int { return b.maxCapacity }

// SetReaderIndex repositions the read cursor; must stay within [0, writeIdx].
func (b *Buf) SetReaderIndex(i int) error {
	if i < 0 || i > b.writeIdx {
		return ErrIndexOutOfRange
	}
	b.readIdx = i
	return nil
}

// SetWriterIndex repositions the write cursor; must stay within [readIdx, capacity].
func (b *Buf) SetWriterIndex(i int) error {
	if i < b.readIdx || i > b.capacity {
		return ErrIndexOutOfRange
	}
	b.writeIdx = i
	return nil
}

func (b *Buf) IsReadable() bool { return b.writeIdx > b.readIdx }
func (b *Buf) NumReadable() int { return b.writeIdx - b.readIdx }

// ReadBytes consumes and returns up to n unread bytes, advancing readIdx.
func (b *Buf) ReadBytes(n int) ([]byte, error) {
	if n < 0 || b.readIdx+n > b.writeIdx {
		return nil, ErrIndexOutOfRange
	}
	out := b.window()[b.readIdx : b.readIdx+n]
	b.readIdx += n
	return out, nil
}

// WriteBytes appends p, growing the buffer if necessary, and advances writeIdx.
func (b *Buf) WriteBytes(p []byte) (int, error) {
	if err := b.EnsureWritable(len(p)); err != nil {
		return 0, err
	}
	n := copy(b.window()[b.writeIdx:], p)
	b.writeIdx += n
	return n, nil
}

// EnsureWritable guarantees at least minWritable bytes of capacity beyond
// writeIdx, growing the underlying window (and, if exhausted, allocating a
// fresh backing array) up to maxCapacity.
func (b *Buf) EnsureWritable(minWritable int) error {
	if b.capacity-b.writeIdx >= minWritable {
		return nil
	}
	needed := b.writeIdx + minWritable
	if needed > b.maxCapacity {
		return fmt.Errorf("%w: need %d, max %d", ErrMaxCapacity, needed, b.maxCapacity)
	}
	if b.off+needed <= cap(b.region.data) {
		b.capacity = needed
		return nil
	}
	grown := make([]byte, needed)
	copy(grown, b.window()[:b.writeIdx])
	newRegionData := newRegion(grown, b.region.numaNode, nil)
	b.region.drop()
	b.region = newRegionData
	b.off = 0
	b.capacity = needed
	return nil
}

// DiscardReadBytes compacts the buffer by shifting unread bytes to offset 0,
// reclaiming space before readIdx. Mirrors Netty's discardSomeReadBytes used
// by the decoder between reads once readIdx grows large. A no-op unless the
// region's refcount is exactly 1 (any other outstanding reference could be
// aliasing the bytes this would shift) and the buffer was not adopted as
// the first incoming fragment of a cumulation.
func (b *Buf) DiscardReadBytes() {
	if b.readIdx == 0 {
		return
	}
	if b.region.refcount.Load() != 1 || b.adopted {
		return
	}
	n := copy(b.window(), b.window()[b.readIdx:b.writeIdx])
	b.writeIdx = n
	b.readIdx = 0
}

// SetAdopted marks or clears this buffer as having been adopted directly as
// a cumulation's first fragment, disabling DiscardReadBytes compaction while
// set (the decoder clears it on the next read it cumulates into this
// buffer, whether or not that read reallocated the backing array).
func (b *Buf) SetAdopted(v bool) { b.adopted = v }

// Adopted reports whether this buffer is currently marked as an adopted
// first fragment.
func (b *Buf) Adopted() bool { return b.adopted }

// Shared reports whether more than this handle holds a reference into the
// backing region, meaning an in-place write here would be visible to
// whoever holds the other reference (e.g. a slice a handler retained).
func (b *Buf) Shared() bool { return b.region.refcount.Load() > 1 }

// Slice returns a zero-copy sub-buffer sharing the same region, retained.
// Indices are relative to the new slice (readIdx=0, writeIdx=to-from).
func (b *Buf) Slice(from, to int) api.Buffer {
	if from < 0 || to > b.capacity || from > to {
		panic("buffer: slice bounds out of range")
	}
	b.region.retain()
	s := newBuf(b.region, b.off+from, to-from, to-from)
	s.writeIdx = to - from
	return s
}

// Duplicate shares the region and retains it, but copies the current
// reader/writer indices so advancing one cursor does not affect the other.
func (b *Buf) Duplicate() *Buf {
	b.region.retain()
	d := newBuf(b.region, b.off, b.capacity, b.maxCapacity)
	d.readIdx, d.writeIdx, d.order = b.readIdx, b.writeIdx, b.order
	return d
}

// Retain increments the refcount and returns the same handle, for callers
// that hand the buffer to more than one owner (e.g. queuing it for write
// while also keeping a decode-side reference).
func (b *Buf) Retain() *Buf {
	b.region.retain()
	return b
}

// Release drops this handle's reference; once the last reference is
// dropped, the backing array returns to its pool. The handle must not be
// used afterwards.
func (b *Buf) Release() { b.region.drop() }

// Copy returns an independent copy of the readable region as a plain slice.
func (b *Buf) Copy() []byte {
	out := make([]byte, b.NumReadable())
	copy(out, b.ReadableBytes())
	return out
}

// NUMANode reports which NUMA node the backing region was allocated from.
func (b *Buf) NUMANode() int { return b.region.numaNode }

// ByteOrder returns the multi-byte decoding order, default big-endian.
func (b *Buf) ByteOrder() binary.ByteOrder { return b.order }

// SetByteOrder overrides the default big-endian decoding order.
func (b *Buf) SetByteOrder(o binary.ByteOrder) { b.order = o }

// Reset clears the reader/writer indices and revives the region's refcount
// to 1, for a pool that hands the same Buf+region pair back out after its
// release callback fired. Callers outside a pool's own recycling path
// should not call Reset on a buffer they do not own outright.
func (b *Buf) Reset() {
	b.readIdx = 0
	b.writeIdx = 0
	b.region.revive()
}

var _ api.Buffer = (*Buf)(nil)
