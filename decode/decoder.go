// File: decode/decoder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoder is the cumulating decode state machine: each ChannelRead call
// cumulates newly read bytes, then repeatedly invokes the Handler until it
// stops making progress, handling the handler's own removal request mid
// decode safely. Grounded on Netty's ByteToMessageDecoder.

package decode

import (
	"fmt"

	"github.com/momentics/nioreactor/buffer"
)

type decodeState int

const (
	stateInit decodeState = iota
	stateCallingChildDecode
	stateHandlerRemovedPending
)

// Decoder accumulates reads via a Cumulator and drives a Handler across
// however many frames the cumulated data contains.
type Decoder struct {
	cfg        Config
	strategy   Cumulator
	handler    Handler
	cumulation Cumulation

	state            decodeState
	removalRequested bool
	removalPending   bool
	firstRead        bool // true while the next read will start a fresh cumulation
	numReads         int
	ctx              *DecodeContext
}

// New creates a Decoder over handler using cfg's cumulation strategy.
func New(handler Handler, cfg Config) *Decoder {
	d := &Decoder{cfg: cfg, handler: handler, firstRead: true}
	if cfg.UseComposite {
		d.strategy = CompositeCumulator{}
	} else {
		d.strategy = MergeCumulator{}
	}
	d.ctx = &DecodeContext{d: d}
	return d
}

// IsRemovalPending reports whether the handler requested removal during the
// most recent decode and HandlerRemoved has not yet been called to complete it.
func (d *Decoder) IsRemovalPending() bool { return d.removalPending }

// HandlerRemoved completes a pending removal: any bytes still sitting in the
// cumulation are forwarded downstream as a single message (mirroring Netty's
// handlerRemoved0, which fires the residue through the pipeline as one raw
// ChannelRead rather than silently dropping it), the cumulation is released,
// and the state machine resets to idle so the Decoder is ready to decode
// again from a fresh cumulation. A no-op if no removal is pending.
func (d *Decoder) HandlerRemoved(out *MessageList) error {
	if !d.removalPending {
		return nil
	}
	defer func() {
		d.state = stateInit
		d.removalRequested = false
		d.removalPending = false
		d.numReads = 0
		d.firstRead = true
	}()

	cum := d.cumulation
	d.cumulation = nil
	if cum == nil {
		return nil
	}
	if n := cum.NumReadable(); n > 0 {
		data, err := cum.ReadBytes(n)
		if err != nil {
			cum.Release()
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		residue := make([]byte, n)
		copy(residue, data)
		out.Add(residue)
	}
	cum.Release()
	return nil
}

// ChannelRead cumulates in and drives the handler until it stops making
// progress, appending every decoded message to out. in is always consumed
// (either merged/linked into the cumulation, or released by the cumulator).
func (d *Decoder) ChannelRead(in *buffer.Buf, out *MessageList) error {
	if d.removalPending {
		// A pending removal means the handler should not see more input
		// until HandlerRemoved has drained the cumulation and reset the
		// state machine; release in rather than leak it if a caller races
		// this window.
		in.Release()
		return nil
	}
	adopting := d.firstRead
	cum, err := d.strategy.Cumulate(d.cumulation, in)
	if err != nil {
		return wrapDecodeError(fmt.Errorf("%w: %w", ErrDecode, err))
	}
	d.cumulation = cum
	d.numReads++

	if buf, ok := d.cumulation.(*buffer.Buf); ok {
		// The first read's buffer is adopted in place by MergeCumulator
		// rather than copied, so it may still be aliased by whoever handed
		// it to ChannelRead; compaction is disabled on it for that read.
		// The flag is cleared on the next read, whether that read was
		// appended in place or forced a fresh backing array.
		buf.SetAdopted(adopting)
	}
	d.firstRead = false

	if err := d.callDecode(d.cumulation, out); err != nil {
		return err
	}

	if buf, ok := d.cumulation.(*buffer.Buf); ok && d.cfg.DiscardAfterReads > 0 {
		if d.numReads%d.cfg.DiscardAfterReads == 0 {
			buf.DiscardReadBytes()
		}
	}
	return nil
}

// callDecode repeatedly invokes the handler while the cumulation is
// readable, stopping once a call makes no progress (consumes no input and
// produces no output) or the handler requests removal.
func (d *Decoder) callDecode(in Cumulation, out *MessageList) error {
	for in.IsReadable() {
		outSizeBefore := out.Len()
		oldReadable := in.NumReadable()

		if err := d.decodeOnce(in, out); err != nil {
			return wrapDecodeError(fmt.Errorf("%w: %w", ErrDecode, err))
		}
		if d.removalPending {
			break
		}

		madeOutput := out.Len() != outSizeBefore
		consumedInput := in.NumReadable() != oldReadable

		if !madeOutput && !consumedInput {
			break // wait for more bytes
		}
		if madeOutput && !consumedInput {
			return wrapDecodeError(fmt.Errorf("%w: %w", ErrDecode, ErrNoProgress))
		}
		if d.cfg.SingleDecode {
			break
		}
	}
	return nil
}

// decodeOnce wraps a single Handler.Decode call with reentrancy protection:
// if the handler requests its own removal mid-call, the decoder records
// removalPending rather than reacting to the request while still inside
// the call stack that produced it.
func (d *Decoder) decodeOnce(in Cumulation, out *MessageList) error {
	d.removalRequested = false
	prev := d.state
	d.state = stateCallingChildDecode

	err := d.handler.Decode(d.ctx, in, out)

	if d.removalRequested {
		d.state = stateHandlerRemovedPending
		d.removalPending = true
	} else {
		d.state = prev
	}
	return err
}

// ChannelReadComplete releases the cumulation once it is fully drained, so
// an idle connection does not pin a buffer indefinitely.
func (d *Decoder) ChannelReadComplete() {
	d.numReads = 0
	if d.cumulation != nil && !d.cumulation.IsReadable() {
		d.cumulation.Release()
		d.cumulation = nil
		d.firstRead = true
	}
}

// Close runs a final decode pass (via DecodeLast if the handler implements
// it) over any remaining cumulated bytes, then releases the cumulation.
// Used once the input side of a connection has closed.
func (d *Decoder) Close(out *MessageList) error {
	defer func() {
		if d.cumulation != nil {
			d.cumulation.Release()
			d.cumulation = nil
		}
	}()
	if d.cumulation == nil || !d.cumulation.IsReadable() {
		return nil
	}
	last, ok := d.handler.(LastHandler)
	if !ok {
		return nil
	}
	return last.DecodeLast(d.ctx, d.cumulation, out)
}
