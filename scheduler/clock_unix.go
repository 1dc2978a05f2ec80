//go:build linux || darwin || freebsd || netbsd || openbsd

package scheduler

import "golang.org/x/sys/unix"

func monotonicNow() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return fallbackNow()
	}
	return ts.Nano()
}
