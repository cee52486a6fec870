// File: decode/cumulation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cumulation abstracts the growing buffer a Decoder accumulates reads into,
// so the merge and composite cumulator strategies can share one decode loop.

package decode

import "github.com/momentics/nioreactor/buffer"

// Cumulation is the minimal surface the decode loop needs, satisfied by
// *buffer.Buf directly (merge strategy) or by compositeCumulation (composite
// strategy).
type Cumulation interface {
	NumReadable() int
	IsReadable() bool
	ReadBytes(n int) ([]byte, error)
	ReaderIndex() int
	Release()
}

type compositeCumulation struct{ c *buffer.Composite }

func (w compositeCumulation) NumReadable() int                 { return w.c.NumReadable() }
func (w compositeCumulation) IsReadable() bool                 { return w.c.IsReadable() }
func (w compositeCumulation) ReadBytes(n int) ([]byte, error)   { return w.c.ReadBytes(n) }
func (w compositeCumulation) ReaderIndex() int                  { return w.c.ReaderIndex() }
func (w compositeCumulation) Release()                          { w.c.Release() }

var _ Cumulation = (*buffer.Buf)(nil)
var _ Cumulation = compositeCumulation{}

// Cumulator merges a newly read buffer into the running cumulation.
type Cumulator interface {
	Cumulate(cumulation Cumulation, in *buffer.Buf) (Cumulation, error)
}

// MergeCumulator appends into one growing buffer.Buf, copying bytes on
// each read. Cheaper to decode from (one contiguous slice) but pays a copy
// per cumulate call.
type MergeCumulator struct{}

func (MergeCumulator) Cumulate(cumulation Cumulation, in *buffer.Buf) (Cumulation, error) {
	if cumulation == nil {
		return in, nil
	}
	// in is always released before returning, success or failure, so a
	// handler-level error never leaks the read buffer.
	defer in.Release()
	buf, ok := cumulation.(*buffer.Buf)
	if !ok {
		return nil, errDecodeInternal("merge cumulator received non-Buf cumulation")
	}
	if buf.Shared() {
		// Someone else (a handler that retained a slice of this cumulation)
		// holds a reference into the same region; appending in place would
		// corrupt bytes they may still be reading. Copy both the unread
		// remainder and the new read into a fresh buffer instead.
		fresh := buffer.New(make([]byte, 0, buf.NumReadable()+in.NumReadable()), -1, nil)
		if _, err := fresh.WriteBytes(buf.ReadableBytes()); err != nil {
			fresh.Release()
			return nil, err
		}
		if _, err := fresh.WriteBytes(in.ReadableBytes()); err != nil {
			fresh.Release()
			return nil, err
		}
		buf.Release()
		return fresh, nil
	}
	if err := buf.EnsureWritable(in.NumReadable()); err != nil {
		return nil, err
	}
	if _, err := buf.WriteBytes(in.ReadableBytes()); err != nil {
		return nil, err
	}
	return buf, nil
}

// CompositeCumulator links each read in by reference instead of copying,
// trading a contiguous view for zero-copy accumulation.
type CompositeCumulator struct{}

func (CompositeCumulator) Cumulate(cumulation Cumulation, in *buffer.Buf) (Cumulation, error) {
	// Add retains its own reference into the composite, so in is always
	// released once Cumulate is done with it, success or failure.
	defer in.Release()
	if cumulation == nil {
		c := buffer.NewComposite()
		if err := c.Add(in); err != nil {
			return nil, err
		}
		return compositeCumulation{c}, nil
	}
	cc, ok := cumulation.(compositeCumulation)
	if !ok {
		return nil, errDecodeInternal("composite cumulator received non-composite cumulation")
	}
	if err := cc.c.Add(in); err != nil {
		return nil, err
	}
	return cc, nil
}

func errDecodeInternal(msg string) error {
	return &internalError{msg}
}

type internalError struct{ msg string }

func (e *internalError) Error() string { return "decode: " + e.msg }
