// File: outbound/queue_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package outbound

import (
	"testing"

	"github.com/momentics/nioreactor/buffer"
)

func cfgForTest() Config {
	return Config{
		HighWaterMark:    100,
		LowWaterMark:     50,
		EntryOverhead:    0,
		MaxGatherEntries: 16,
		MaxGatherBytes:   1 << 20,
	}
}

func mkBuf(payload string) *buffer.Buf {
	b := buffer.New([]byte(payload), -1, nil)
	b.SetWriterIndex(len(payload))
	return b
}

func TestWaterMarkTransitions(t *testing.T) {
	q := NewQueue(cfgForTest())
	if !q.IsWritable() {
		t.Fatalf("expected writable initially")
	}

	tok1 := NewToken()
	if err := q.AddMessage(mkBuf(string(make([]byte, 60))), tok1); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if !q.IsWritable() {
		t.Fatalf("expected still writable at 60 bytes pending")
	}

	tok2 := NewToken()
	if err := q.AddMessage(mkBuf(string(make([]byte, 60))), tok2); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if q.IsWritable() {
		t.Fatalf("expected unwritable after crossing high water mark (120 pending)")
	}

	q.AddFlush()
	q.RemoveBytes(60) // completes first entry, 60 pending remain -> still above low (50)
	if q.IsWritable() {
		t.Fatalf("expected still unwritable at 60 pending (low mark is 50)")
	}

	q.RemoveBytes(20) // 40 pending remain -> at/under low water mark
	if !q.IsWritable() {
		t.Fatalf("expected writable again once pending drops to/below low water mark")
	}
}

func TestCancelBeforeFlush(t *testing.T) {
	q := NewQueue(cfgForTest())
	tok := NewToken()
	if err := q.AddMessage(mkBuf("hello"), tok); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if !tok.Cancel() {
		t.Fatalf("expected Cancel to succeed before flush")
	}
	if !tok.Cancelled() {
		t.Fatalf("expected token to report cancelled")
	}
	select {
	case <-tok.Done():
	default:
		t.Fatalf("expected Done to be closed after cancel")
	}
	if tok.Err() != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", tok.Err())
	}

	// AddFlush/RemoveBytes must tolerate an already-cancelled entry without
	// double-failing or blocking: Succeed on a finished token is a no-op.
	q.AddFlush()
	q.RemoveBytes(5)
}

func TestGatherViewsSkipsCancelledEntry(t *testing.T) {
	q := NewQueue(cfgForTest())
	tokA, tokB, tokC := NewToken(), NewToken(), NewToken()
	if err := q.AddMessage(mkBuf("aaaaa"), tokA); err != nil {
		t.Fatalf("AddMessage A: %v", err)
	}
	if err := q.AddMessage(mkBuf("bbbbb"), tokB); err != nil {
		t.Fatalf("AddMessage B: %v", err)
	}
	if !tokB.Cancel() {
		t.Fatalf("expected Cancel to succeed before flush")
	}
	if err := q.AddMessage(mkBuf("ccccc"), tokC); err != nil {
		t.Fatalf("AddMessage C: %v", err)
	}

	q.AddFlush()
	views := q.GatherViews()
	if len(views) != 2 {
		t.Fatalf("expected views for A and C only, got %d", len(views))
	}
	if string(views[0].Base) != "aaaaa" || string(views[1].Base) != "ccccc" {
		t.Fatalf("expected gathered bytes aaaaa/ccccc, got %q/%q", views[0].Base, views[1].Base)
	}
	select {
	case <-tokB.Done():
	default:
		t.Fatalf("expected tokB already resolved by Cancel")
	}
}

func TestGatherViewsAtLeastOneEntryGuarantee(t *testing.T) {
	cfg := cfgForTest()
	cfg.MaxGatherBytes = 4 // smaller than a single entry
	q := NewQueue(cfg)
	q.AddMessage(mkBuf("0123456789"), NewToken())
	q.AddFlush()
	views := q.GatherViews()
	if len(views) != 1 {
		t.Fatalf("expected exactly one view under the progress guarantee, got %d", len(views))
	}
	if len(views[0].Base) != 10 {
		t.Fatalf("expected the first view to cover the full entry, got %d bytes", len(views[0].Base))
	}
}

func TestRemoveBytesPartialProgress(t *testing.T) {
	q := NewQueue(cfgForTest())
	tok := NewToken()
	q.AddMessage(mkBuf("0123456789"), tok)
	q.AddFlush()
	q.RemoveBytes(4)
	if q.CurrentProgress() != 4 {
		t.Fatalf("expected progress 4, got %d", q.CurrentProgress())
	}
	select {
	case <-tok.Done():
		t.Fatalf("token should not be done after partial write")
	default:
	}
	q.RemoveBytes(6)
	select {
	case <-tok.Done():
	default:
		t.Fatalf("expected token done after full write")
	}
	if tok.Err() != nil {
		t.Fatalf("expected success, got %v", tok.Err())
	}
}

func TestFailFlushedFailsAllPending(t *testing.T) {
	q := NewQueue(cfgForTest())
	tok1, tok2 := NewToken(), NewToken()
	q.AddMessage(mkBuf("a"), tok1)
	q.AddMessage(mkBuf("b"), tok2)
	q.AddFlush()
	q.FailFlushed(ErrClosed)
	if tok1.Err() != ErrClosed || tok2.Err() != ErrClosed {
		t.Fatalf("expected both tokens failed with ErrClosed")
	}
}
