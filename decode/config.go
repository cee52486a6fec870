// File: decode/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package decode

// Config governs cumulation strategy and the between-reads compaction policy.
type Config struct {
	// UseComposite selects CompositeCumulator over the default MergeCumulator.
	UseComposite bool
	// SingleDecode stops callDecode after one Decode call per channelRead,
	// for handlers that must not eagerly consume more than one frame at a time.
	SingleDecode bool
	// DiscardAfterReads compacts a merge-strategy cumulation's consumed
	// prefix every N reads, bounding how far readIdx can drift before the
	// backing array is reclaimed.
	DiscardAfterReads int
}

// Default returns DiscardAfterReads=16, MergeCumulator, multi-decode.
func Default() Config {
	return Config{DiscardAfterReads: 16}
}
