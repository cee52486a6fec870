//go:build linux
// +build linux

// File: transport/tcp/conn_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn binds one accepted socket to its own outbound.Queue and
// decode.Decoder. Every method that touches queue or decoder state runs on
// the owning reactor's loop goroutine -- either directly from a readiness
// callback, or via Submit for callers on other goroutines.

package tcp

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/nioreactor/api"
	"github.com/momentics/nioreactor/buffer"
	"github.com/momentics/nioreactor/decode"
	"github.com/momentics/nioreactor/outbound"
)

// maxReadsPerReady bounds how many pooled buffers a single readiness
// callback drains before yielding back to the reactor loop, so one busy
// connection cannot starve the rest of the fds sharing the loop.
const maxReadsPerReady = 16

// Conn is one accepted TCP connection.
type Conn struct {
	fd  int
	r   api.Reactor
	cfg ListenerConfig

	queue         *outbound.Queue
	decoder       *decode.Decoder
	msgs          *decode.MessageList
	gatherScratch [][]byte

	writeInterestOn bool
	closed          atomic.Bool // fast-path guard for Write, set from any goroutine
	tornDown        bool        // single-execution guard for teardown, loop-goroutine only
	closeErr        error
	state           atomic.Int32

	// onTornDown, if set by the owning Listener, removes this Conn from its
	// bookkeeping map once teardown completes.
	onTornDown func(*Conn)
}

func newConn(fd int, r api.Reactor, cfg ListenerConfig) *Conn {
	c := &Conn{
		fd:      fd,
		r:       r,
		cfg:     cfg,
		queue:   outbound.NewQueue(cfg.OutboundConfig),
		decoder: decode.New(cfg.NewHandler(), cfg.DecoderConfig),
		msgs:    decode.AcquireMessageList(),
	}
	c.state.Store(int32(api.ConnActive))
	return c
}

// Fd returns the underlying file descriptor, for callers that need it for
// diagnostics (e.g. SO_ERROR inspection).
func (c *Conn) Fd() int { return c.fd }

// State reports the connection's current lifecycle state.
func (c *Conn) State() api.ConnState {
	return api.ConnState(c.state.Load())
}

// Write enqueues buf (taking ownership of it) for sending and schedules a
// flush. Safe to call from any goroutine.
func (c *Conn) Write(buf *buffer.Buf, token outbound.CompletionToken) error {
	if c.closed.Load() {
		buf.Release()
		if token != nil {
			token.Fail(ErrConnClosed)
		}
		return ErrConnClosed
	}
	return c.r.Submit(func() {
		if c.closed.Load() {
			buf.Release()
			if token != nil {
				token.Fail(ErrConnClosed)
			}
			return
		}
		if err := c.queue.AddMessage(buf, token); err != nil {
			buf.Release()
			if token != nil {
				token.Fail(err)
			}
			return
		}
		c.queue.AddFlush()
		c.flush()
	})
}

// Close tears down the connection, failing any still-queued writes.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.r.Submit(func() { c.teardown(nil) })
}

// onReady is the reactor readiness callback registered for this fd.
func (c *Conn) onReady(ev api.Event) {
	if c.closed.Load() {
		return
	}
	if ev.Flags&api.IOError != 0 {
		c.teardown(wrapIOError(fmt.Errorf("tcp: socket error on fd %d", c.fd)))
		return
	}
	if ev.Flags&api.IOWrite != 0 {
		c.flush()
		if c.closed.Load() {
			return
		}
	}
	if ev.Flags&api.IORead != 0 {
		c.doRead()
	}
}

func (c *Conn) doRead() {
	for i := 0; i < maxReadsPerReady; i++ {
		raw := c.cfg.Pool.Get(c.cfg.ReadBufferSize, c.cfg.NUMANode)
		buf, ok := raw.(*buffer.Buf)
		if !ok {
			raw.Release()
			c.teardown(fmt.Errorf("tcp: buffer pool returned unexpected type %T", raw))
			return
		}

		n, err := unix.Read(c.fd, buf.WritableBytes())
		if n > 0 {
			_ = buf.SetWriterIndex(buf.WriterIndex() + n)
		}
		if n <= 0 {
			buf.Release()
		}

		switch {
		case n == 0 && err == nil:
			c.teardown(nil) // peer closed
			return
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			c.decoder.ChannelReadComplete()
			return
		case err != nil:
			c.teardown(wrapIOError(fmt.Errorf("tcp: read fd %d: %w", c.fd, err)))
			return
		}

		if err := c.decoder.ChannelRead(buf, c.msgs); err != nil {
			c.teardown(err)
			return
		}
		if c.decoder.IsRemovalPending() {
			if err := c.decoder.HandlerRemoved(c.msgs); err != nil {
				c.teardown(err)
				return
			}
		}
		c.deliverMessages()
	}
	c.decoder.ChannelReadComplete()
}

func (c *Conn) deliverMessages() {
	if c.cfg.OnMessage != nil {
		for i := 0; i < c.msgs.Len(); i++ {
			c.cfg.OnMessage(c, c.msgs.At(i))
		}
	}
	c.msgs.Reset()
}

// flush drains as much of the queue's flushed entries as the socket send
// buffer currently accepts, toggling write-readiness interest as needed.
func (c *Conn) flush() {
	for {
		views := c.queue.GatherViews()
		if len(views) == 0 {
			c.setWriteInterest(false)
			return
		}
		if cap(c.gatherScratch) < len(views) {
			c.gatherScratch = make([][]byte, len(views))
		}
		c.gatherScratch = c.gatherScratch[:len(views)]
		for i, v := range views {
			c.gatherScratch[i] = v.Base
		}

		n, err := unix.SendmsgBuffers(c.fd, c.gatherScratch, nil, nil, unix.MSG_DONTWAIT)
		if n > 0 {
			c.queue.RemoveBytes(int64(n))
		}
		switch {
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			c.setWriteInterest(true)
			return
		case err != nil:
			c.teardown(wrapIOError(fmt.Errorf("tcp: write fd %d: %w", c.fd, err)))
			return
		case n == 0:
			return
		}
	}
}

func (c *Conn) setWriteInterest(on bool) {
	if on == c.writeInterestOn {
		return
	}
	flags := api.IORead
	if on {
		flags |= api.IOWrite
	}
	if err := c.r.Modify(uintptr(c.fd), flags); err != nil {
		c.teardown(err)
		return
	}
	c.writeInterestOn = on
}

func (c *Conn) teardown(cause error) {
	if c.tornDown {
		return
	}
	c.tornDown = true
	c.closed.Store(true)
	c.state.Store(int32(api.ConnClosed))
	c.closeErr = cause
	_ = c.r.Unregister(uintptr(c.fd))
	queueCause := cause
	if queueCause == nil {
		// Writes still queued never reached the wire, even on a clean close.
		queueCause = ErrConnClosed
	}
	c.queue.Close(queueCause)
	_ = c.decoder.Close(c.msgs)
	c.deliverMessages()
	decode.ReleaseMessageList(c.msgs)
	unix.Close(c.fd)
	if c.cfg.OnClose != nil {
		c.cfg.OnClose(c, cause)
	}
	if c.onTornDown != nil {
		c.onTornDown(c)
	}
}

// forceClose synchronously closes the connection's socket without routing
// through the reactor, for a Listener shutting down after its reactor has
// already stopped accepting tasks.
func (c *Conn) forceClose() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.tornDown = true
	c.state.Store(int32(api.ConnClosed))
	unix.Close(c.fd)
}
