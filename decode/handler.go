// File: decode/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package decode

// DecodeContext is passed to every Decode call, letting the handler request
// its own removal mid-decode (the reentrancy case Netty guards against with
// decodeRemovalReentryProtection).
type DecodeContext struct {
	d *Decoder
}

// RequestRemoval marks the decoder for removal once the current callDecode
// loop iteration finishes, instead of detaching immediately and corrupting
// the loop's in-flight state.
func (c *DecodeContext) RequestRemoval() {
	c.d.removalRequested = true
}

// Handler decodes bytes from in into zero or more messages appended to out.
// It must not retain in beyond the call; bytes not consumed remain in the
// cumulation for the next call.
type Handler interface {
	Decode(ctx *DecodeContext, in Cumulation, out *MessageList) error
}

// LastHandler is implemented by handlers that behave differently once the
// input channel has closed (e.g. to flush a final partial frame instead of
// waiting for a terminator that will never arrive).
type LastHandler interface {
	Handler
	DecodeLast(ctx *DecodeContext, in Cumulation, out *MessageList) error
}
