// File: decode/linedecoder_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// newlineDecoder is test-only scaffolding for exercising the Cumulator/
// Decoder contract, grounded on Netty's LineBasedFrameDecoder: it scans the
// cumulation for '\n', emits everything before it (stripping a trailing
// '\r'), and fails fast once a line exceeds maxLength without a terminator.

package decode

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/momentics/nioreactor/buffer"
)

type newlineDecoder struct {
	maxLength int
	discarding bool
	discardedBytes int
}

func (d *newlineDecoder) Decode(ctx *DecodeContext, in Cumulation, out *MessageList) error {
	buf, ok := in.(*buffer.Buf)
	if !ok {
		return errors.New("newlineDecoder requires a merge-cumulated Buf")
	}
	data := buf.ReadableBytes()
	idx := bytes.IndexByte(data, '\n')

	if d.discarding {
		if idx >= 0 {
			buf.ReadBytes(idx + 1)
			d.discarding = false
			d.discardedBytes = 0
		} else {
			d.discardedBytes += len(data)
			buf.ReadBytes(len(data))
		}
		return nil
	}

	if idx < 0 {
		if len(data) > d.maxLength {
			d.discarding = true
			d.discardedBytes = len(data)
			buf.ReadBytes(len(data))
			return fmt.Errorf("%w: line exceeded %d bytes with no terminator", ErrFrameTooLarge, d.maxLength)
		}
		return nil
	}

	if idx > d.maxLength {
		d.discarding = true
		buf.ReadBytes(idx + 1)
		return fmt.Errorf("%w: line of %d bytes exceeded max %d", ErrFrameTooLarge, idx, d.maxLength)
	}

	line, _ := buf.ReadBytes(idx + 1)
	line = line[:idx]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	frame := make([]byte, len(line))
	copy(frame, line)
	out.Add(frame)
	return nil
}

func TestSplitFrameAcrossReads(t *testing.T) {
	d := New(&newlineDecoder{maxLength: 1024}, Default())
	out := AcquireMessageList()
	defer ReleaseMessageList(out)

	first := buffer.New([]byte("hel"), -1, nil)
	first.SetWriterIndex(3)
	if err := d.ChannelRead(first, out); err != nil {
		t.Fatalf("ChannelRead: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no frame yet, got %d", out.Len())
	}

	second := buffer.New([]byte("lo\n"), -1, nil)
	second.SetWriterIndex(3)
	if err := d.ChannelRead(second, out); err != nil {
		t.Fatalf("ChannelRead: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("expected one frame, got %d", out.Len())
	}
	if got := string(out.At(0).([]byte)); got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestFrameTooLargeFailFast(t *testing.T) {
	d := New(&newlineDecoder{maxLength: 4}, Default())
	out := AcquireMessageList()
	defer ReleaseMessageList(out)

	in := buffer.New([]byte("toolongline\n"), -1, nil)
	in.SetWriterIndex(in.Capacity())
	err := d.ChannelRead(in, out)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no frame emitted for an over-long line")
	}
}

type removalRequestingHandler struct {
	calls int
}

func (h *removalRequestingHandler) Decode(ctx *DecodeContext, in Cumulation, out *MessageList) error {
	h.calls++
	in.ReadBytes(1)
	ctx.RequestRemoval()
	out.Add(byte(0))
	return nil
}

func TestHandlerRemovalDuringDecode(t *testing.T) {
	h := &removalRequestingHandler{}
	d := New(h, Default())
	out := AcquireMessageList()
	defer ReleaseMessageList(out)

	in := buffer.New([]byte("abc"), -1, nil)
	in.SetWriterIndex(3)
	if err := d.ChannelRead(in, out); err != nil {
		t.Fatalf("ChannelRead: %v", err)
	}
	if h.calls != 1 {
		t.Fatalf("expected exactly one Decode call once removal is requested, got %d", h.calls)
	}
	if !d.IsRemovalPending() {
		t.Fatalf("expected removal pending after handler requested it")
	}

	if err := d.HandlerRemoved(out); err != nil {
		t.Fatalf("HandlerRemoved: %v", err)
	}
	if d.IsRemovalPending() {
		t.Fatalf("expected removal pending cleared after HandlerRemoved")
	}
	if out.Len() != 2 {
		t.Fatalf("expected the decoded frame plus the drained residue, got %d messages", out.Len())
	}
	residue, ok := out.At(1).([]byte)
	if !ok || string(residue) != "bc" {
		t.Fatalf("expected residual cumulation \"bc\" forwarded as one message, got %v", out.At(1))
	}
}

func TestChannelReadReleasesBufferWhileRemovalPending(t *testing.T) {
	h := &removalRequestingHandler{}
	d := New(h, Default())
	out := AcquireMessageList()
	defer ReleaseMessageList(out)

	first := buffer.New([]byte("abc"), -1, nil)
	first.SetWriterIndex(3)
	if err := d.ChannelRead(first, out); err != nil {
		t.Fatalf("ChannelRead: %v", err)
	}
	if !d.IsRemovalPending() {
		t.Fatalf("expected removal pending")
	}

	released := false
	stray := buffer.New([]byte("xyz"), -1, func([]byte) { released = true })
	stray.SetWriterIndex(3)
	if err := d.ChannelRead(stray, out); err != nil {
		t.Fatalf("ChannelRead while removal pending: %v", err)
	}
	if !released {
		t.Fatalf("expected a buffer fed in while removal is pending to be released, not leaked")
	}
}
