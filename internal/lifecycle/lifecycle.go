// Package lifecycle holds process-wide drain state.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as draining. Health reports shutting-down while set
// and the warmer stops scheduling refreshes.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether a termination signal has been received.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
