//go:build !linux && !windows
// +build !linux,!windows

// File: pool/numapool_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub NUMA allocator for unsupported platforms.

package pool

// createNUMAAllocator returns the portable fallback allocator for platforms
// without a NUMA-aware backend.
func createNUMAAllocator() NUMAAllocator {
	return newStubNUMAAllocator()
}
