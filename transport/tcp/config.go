// File: transport/tcp/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ListenerConfig wires a plain TCP listener into the reactor core: every
// accepted connection gets its own outbound.Queue and decode.Decoder,
// driven entirely from readiness callbacks on the owning reactor goroutine.

package tcp

import (
	"github.com/momentics/nioreactor/decode"
	"github.com/momentics/nioreactor/outbound"
	"github.com/momentics/nioreactor/pool"
)

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Addr is the TCP address to bind, e.g. ":9001".
	Addr string

	// WorkerCPU, if UseWorkerCPU is set, pins the reactor's loop goroutine
	// to this logical CPU via the affinity package.
	WorkerCPU    int
	UseWorkerCPU bool

	// ReadBufferSize is the size of each pooled buffer handed to the socket
	// on read. Oversized frames simply span more than one cumulated buffer.
	ReadBufferSize int

	// NUMANode is the preferred NUMA node for Pool.Get allocations; -1 means
	// no preference.
	NUMANode int

	// Pool supplies read buffers. Defaults to pool.DefaultManager().
	Pool *pool.BufferPoolManager

	// DecoderConfig governs the per-connection Decoder's cumulation
	// strategy and discard policy.
	DecoderConfig decode.Config

	// NewHandler constructs a fresh decode.Handler for each accepted
	// connection. Required.
	NewHandler func() decode.Handler

	// OutboundConfig governs each connection's write queue water marks.
	OutboundConfig outbound.Config

	// OnAccept, if set, is invoked on the reactor goroutine right after a
	// connection is registered.
	OnAccept func(*Conn)

	// OnMessage delivers every message the decoder produces.
	OnMessage func(*Conn, any)

	// OnClose, if set, is invoked once with the reason the connection closed
	// (nil for a clean peer-initiated close).
	OnClose func(*Conn, error)
}

func (c ListenerConfig) withDefaults() ListenerConfig {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 64 * 1024
	}
	if c.Pool == nil {
		c.Pool = pool.DefaultManager()
	}
	if c.OutboundConfig.MaxGatherEntries == 0 {
		c.OutboundConfig = outbound.Default()
	}
	if c.DecoderConfig == (decode.Config{}) {
		c.DecoderConfig = decode.Default()
	}
	return c
}
