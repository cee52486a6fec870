// Package pool
// Author: momentics <momentics@gmail.com>
//
// NUMA-aware, size-classed buffer allocation feeding buffer.Buf instances to
// the rest of the reactor core, plus generic object pooling for recycled
// decode/write-queue scratch types. Cross-platform (Linux/Windows/portable
// fallback); see bufferpool.go, slab_pool.go, numapool.go.
package pool
