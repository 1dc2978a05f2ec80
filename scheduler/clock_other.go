//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package scheduler

func monotonicNow() int64 {
	return fallbackNow()
}
