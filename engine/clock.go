package engine

import (
	"sync/atomic"
	"time"
)

// FrameClock tells time by the audio that has been handed to the sink.
// Timestamps on it are nanoseconds of presentation time.
type FrameClock struct {
	frames atomic.Int64
	rate   atomic.Int64
}

func NewFrameClock(sampleRate int) *FrameClock {
	c := &FrameClock{}
	c.rate.Store(int64(sampleRate))
	return c
}

func (c *FrameClock) Now() int64 {
	f := c.frames.Load()
	r := c.rate.Load()
	return f/r*int64(time.Second) + f%r*int64(time.Second)/r
}

// Frames returns the number of frames written so far.
func (c *FrameClock) Frames() int64 {
	return c.frames.Load()
}

func (c *FrameClock) advance(frames int) {
	c.frames.Add(int64(frames))
}

// setRate changes the frame rate. Existing timestamps shift if the rate
// really changes, so it is only called before a run starts.
func (c *FrameClock) setRate(sampleRate int) {
	c.rate.Store(int64(sampleRate))
}
