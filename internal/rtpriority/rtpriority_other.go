//go:build !linux

package rtpriority

// increase is unsupported outside Linux: macOS's pthread_setschedparam
// equivalent requires a cgo binding (the pattern the original
// implementation uses via the libc crate), which this module avoids, so
// priority-class sources fall back to the normal scheduler on these
// platforms exactly as they would on a Linux host without CAP_SYS_NICE
// (see scheduler.go's degradation policy).
func increase() error {
	return unsupported()
}
