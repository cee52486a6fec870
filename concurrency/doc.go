// File: concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package concurrency provides the lock-free task queue and worker-pool
// executor shared by the reactor core: the reactor's own MPSC task queue,
// and an Executor onto which handlers offload blocking work so the reactor
// goroutine is never held up.
package concurrency
