// File: buffer/buf_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package buffer

import "testing"

func TestWriteReadRoundtrip(t *testing.T) {
	b := New(make([]byte, 0, 16), -1, nil)
	if err := b.EnsureWritable(5); err != nil {
		t.Fatalf("EnsureWritable: %v", err)
	}
	n, err := b.WriteBytes([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("WriteBytes: n=%d err=%v", n, err)
	}
	if !b.IsReadable() || b.NumReadable() != 5 {
		t.Fatalf("expected 5 readable bytes, got %d", b.NumReadable())
	}
	got, err := b.ReadBytes(5)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
	if b.IsReadable() {
		t.Fatalf("expected no readable bytes left")
	}
}

func TestSliceSharesRegion(t *testing.T) {
	b := New([]byte("abcdefgh"), -1, nil)
	b.SetWriterIndex(8)
	s := b.Slice(2, 5).(*Buf)
	if string(s.ReadableBytes()) != "cde" {
		t.Fatalf("got %q", s.ReadableBytes())
	}
	s.Release()
	b.Release()
}

func TestEnsureWritableGrowsPastCapacity(t *testing.T) {
	b := New(make([]byte, 4, 4), -1, nil)
	b.SetWriterIndex(4)
	if _, err := b.ReadBytes(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.EnsureWritable(10); err != nil {
		t.Fatalf("EnsureWritable: %v", err)
	}
	if b.Capacity() < 14 {
		t.Fatalf("expected capacity grown to at least 14, got %d", b.Capacity())
	}
}

func TestEnsureWritableRespectsMaxCapacity(t *testing.T) {
	b := NewBounded(make([]byte, 0, 4), -1, 4, nil)
	if err := b.EnsureWritable(8); err == nil {
		t.Fatalf("expected ErrMaxCapacity")
	}
}

func TestDiscardReadBytesCompacts(t *testing.T) {
	b := New([]byte("abcdefgh"), -1, nil)
	b.SetWriterIndex(8)
	b.ReadBytes(4)
	b.DiscardReadBytes()
	if b.ReaderIndex() != 0 || b.WriterIndex() != 4 {
		t.Fatalf("unexpected indices after discard: r=%d w=%d", b.ReaderIndex(), b.WriterIndex())
	}
	if string(b.ReadableBytes()) != "efgh" {
		t.Fatalf("got %q", b.ReadableBytes())
	}
}

func TestDiscardReadBytesNoopWhenShared(t *testing.T) {
	b := New([]byte("abcdefgh"), -1, nil)
	b.SetWriterIndex(8)
	b.ReadBytes(4)
	shared := b.Slice(0, 8) // retains the region, refcount now 2
	defer shared.Release()

	b.DiscardReadBytes()
	if b.ReaderIndex() != 4 || b.WriterIndex() != 8 {
		t.Fatalf("expected discard to be a no-op while region is shared, got r=%d w=%d", b.ReaderIndex(), b.WriterIndex())
	}
}

func TestDiscardReadBytesNoopWhenAdopted(t *testing.T) {
	b := New([]byte("abcdefgh"), -1, nil)
	b.SetWriterIndex(8)
	b.ReadBytes(4)
	b.SetAdopted(true)

	b.DiscardReadBytes()
	if b.ReaderIndex() != 4 || b.WriterIndex() != 8 {
		t.Fatalf("expected discard to be a no-op while adopted, got r=%d w=%d", b.ReaderIndex(), b.WriterIndex())
	}

	b.SetAdopted(false)
	b.DiscardReadBytes()
	if b.ReaderIndex() != 0 || b.WriterIndex() != 4 {
		t.Fatalf("expected discard to proceed once no longer adopted, got r=%d w=%d", b.ReaderIndex(), b.WriterIndex())
	}
}

func TestReleaseInvokesPoolCallback(t *testing.T) {
	released := false
	b := New(make([]byte, 8), -1, func([]byte) { released = true })
	b.Release()
	if !released {
		t.Fatalf("expected release callback to fire")
	}
}

func TestRetainDefersRelease(t *testing.T) {
	released := false
	b := New(make([]byte, 8), -1, func([]byte) { released = true })
	b.Retain()
	b.Release()
	if released {
		t.Fatalf("release fired too early while still retained")
	}
	b.Release()
	if !released {
		t.Fatalf("expected release after final drop")
	}
}

func TestCompositeReadAcrossComponents(t *testing.T) {
	a := New([]byte("abc"), -1, nil)
	a.SetWriterIndex(3)
	b := New([]byte("defgh"), -1, nil)
	b.SetWriterIndex(5)

	c := NewComposite()
	if err := c.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if c.NumReadable() != 8 {
		t.Fatalf("expected 8 readable, got %d", c.NumReadable())
	}
	got, err := c.ReadBytes(5)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(got) != "abcde" {
		t.Fatalf("got %q", got)
	}
	c.Release()
}

func TestCompositeCycleGuard(t *testing.T) {
	a := New([]byte("a"), -1, nil)
	c := NewComposite()
	c.Add(a)
	// Adding the same *Buf twice must be rejected, not silently looped.
	if err := c.Add(a); err != ErrCompositeCycle {
		t.Fatalf("expected ErrCompositeCycle, got %v", err)
	}
	c.Release()
}
