// File: reactor/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

// Config governs the loop's fairness and self-healing thresholds.
type Config struct {
	// IORatio is the percentage of each iteration's time budget spent
	// servicing ready I/O before draining the task queue; 100 means run
	// every ready key then drain tasks without a time cap.
	IORatio int
	// RebuildThreshold is the number of consecutive empty blocking polls
	// (returning zero ready events before their computed timeout elapsed)
	// that triggers a poller rebuild. Zero disables busy-spin recovery.
	RebuildThreshold int
	// CancelledKeyRebuildThreshold is the cumulative cancelled-registration
	// count that forces an immediate non-blocking re-poll before
	// continuing ready-key iteration.
	CancelledKeyRebuildThreshold int
	// TaskQueueCapacity bounds the MPSC task queue (rounded up to a power
	// of two).
	TaskQueueCapacity int
	// MaxReadyEvents bounds how many events a single poll call returns.
	MaxReadyEvents int
}

// Default returns io_ratio=50, rebuild after 512 empty spins, reselect after
// 256 cancelled keys.
func Default() Config {
	return Config{
		IORatio:                      50,
		RebuildThreshold:             512,
		CancelledKeyRebuildThreshold: 256,
		TaskQueueCapacity:            1024,
		MaxReadyEvents:               128,
	}
}
