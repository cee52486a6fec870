// File: transport/tcp/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU pinning for the reactor's loop goroutine routes through the root
// affinity package instead of a second raw-syscall FFI boundary; that
// package already carries the cgo pthread_setaffinity_np (Linux) and
// SetThreadAffinityMask (Windows) implementations this transport needs.

package tcp

import (
	"fmt"
	"os"
	"runtime"

	"github.com/momentics/nioreactor/affinity"
)

// pinLoopThread locks the calling goroutine to its OS thread, then pins that
// thread to cpu, so the pinning follows the goroutine.
func pinLoopThread(cpu int) {
	runtime.LockOSThread()
	if err := affinity.SetAffinity(cpu); err != nil {
		fmt.Fprintf(os.Stderr, "tcp: affinity.SetAffinity(%d) failed: %v\n", cpu, err)
	}
}
