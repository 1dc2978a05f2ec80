package scheduler

import "time"

// Clock reports the scheduling time in nanoseconds. Only differences between
// two readings of the same Clock are meaningful.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// MonotonicClock reads the system monotonic clock.
var MonotonicClock Clock = ClockFunc(monotonicNow)

var processStart = time.Now()

func fallbackNow() int64 {
	return int64(time.Since(processStart))
}
