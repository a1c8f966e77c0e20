//go:build linux

package rtpriority

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// schedParam mirrors the C struct sched_param{int sched_priority;}; we
// define it locally rather than depending on an x/sys/unix type for it,
// and drive sched_setscheduler via the raw syscall number, the same
// pattern used by low-level container runtimes for syscalls x/sys/unix
// does not wrap with a typed helper.
type schedParam struct {
	priority int32
}

const schedFIFO = 1 // SCHED_FIFO, see linux/sched.h

// increase sets the calling thread's scheduling policy to SCHED_FIFO at
// TargetPriority, mirroring sched_setscheduler(0, SCHED_FIFO, &params)
// from threading.rs. The pid argument 0 means "the calling thread" for
// this syscall on Linux.
func increase() error {
	param := schedParam{priority: TargetPriority}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, uintptr(schedFIFO), uintptr(unsafe.Pointer(&param)))
	if errno != 0 {
		return errno
	}
	return nil
}
