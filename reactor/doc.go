// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor implements the single-threaded selector loop: I/O
// readiness dispatch, a loop-affine task queue, a scheduled-task timer
// heap, wake-up race repair, busy-spin recovery, and I/O-ratio fairness
// scheduling. Linux is backed by epoll; other platforms get a stub until
// a poller backend is wired for them.
package reactor
