// Package rtpriority implements the real-time scheduling priority
// subsystem (spec.md §4.10, C11), grounded on
// original_source/alumet/src/pipeline/util/threading.rs
// (increase_thread_priority).
package rtpriority

import (
	"fmt"
	"runtime"
)

// TargetPriority is the SCHED_FIFO priority requested for priority-class
// worker threads: 55, matching the Red Hat real-time tuning guidance the
// original implementation cites (roughly 55% of the usual 1-99 range).
const TargetPriority = 55

// Increase raises the scheduling policy/priority of the calling OS
// thread. The caller must have already pinned the calling goroutine to
// its OS thread with runtime.LockOSThread, since Go does not otherwise
// guarantee which OS thread executes a given goroutine.
func Increase() error {
	return increase()
}

// UnsupportedError is returned by Increase on platforms without a native
// real-time scheduling policy.
type UnsupportedError struct{ GOOS string }

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("rtpriority: cannot increase thread scheduling priority on %s", e.GOOS)
}

func unsupported() error {
	return &UnsupportedError{GOOS: runtime.GOOS}
}
