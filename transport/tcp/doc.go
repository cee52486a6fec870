// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements a plain, reactor-driven TCP listener: non-blocking
// accept, plain reads into pooled buffers, vectored writes via
// SendmsgBuffers, and the
// glue between an accepted connection's socket readiness and its decode
// and outbound pipelines. Linux-only, mirroring the reactor package's
// epoll-backed scope; other platforms get ErrUnsupportedPlatform.
package tcp

