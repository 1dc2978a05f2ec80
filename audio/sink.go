// Copyright 2021 The Oto Authors
// Copyright 2025 Lundis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package audio defines the output sink a render loop writes blocks to, and
// a few implementations of it.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrInvalidConfig = errors.New("audio: invalid config")
	ErrClosed        = errors.New("audio: sink is closed")
	ErrNotOpen       = errors.New("audio: sink is not open")
	ErrUnknownSink   = errors.New("audio: unknown sink")
	ErrUnsupported   = errors.New("audio: sink not supported on this platform")
)

// Config describes the stream a sink is opened with.
type Config struct {
	// SampleRate specifies the number of frames that should be played during one second.
	// Usual numbers are 44100 or 48000. A sink may pick a different rate; the
	// config returned by Open is the one that is actually used.
	SampleRate int

	// ChannelCount is the number of interleaved samples per frame.
	ChannelCount int

	// FramesPerBlock is the size of a typical Write.
	FramesPerBlock int

	// BufferCapacityInFrames specifies the buffer size of the underlying device.
	//
	// If 0 is specified, the sink's default is used.
	// Too big buffer size can increase the latency time.
	// On the other hand, too small buffer size can cause glitch noises due to buffer shortage.
	BufferCapacityInFrames int
}

func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.ChannelCount <= 0:
		return fmt.Errorf("%w: channel count %d", ErrInvalidConfig, c.ChannelCount)
	case c.FramesPerBlock <= 0:
		return fmt.Errorf("%w: frames per block %d", ErrInvalidConfig, c.FramesPerBlock)
	case c.BufferCapacityInFrames < 0:
		return fmt.Errorf("%w: buffer capacity %d", ErrInvalidConfig, c.BufferCapacityInFrames)
	}
	return nil
}

// FrameDuration returns how long n frames play for.
func (c Config) FrameDuration(n int) time.Duration {
	return time.Duration(int64(n) * int64(time.Second) / int64(c.SampleRate))
}

// defaultCapacity is the requested capacity, but at least one block.
// Without a request it is eight blocks, and at least 20ms.
func (c Config) defaultCapacity() int {
	if c.BufferCapacityInFrames > 0 {
		return max(c.BufferCapacityInFrames, c.FramesPerBlock)
	}
	return max(8*c.FramesPerBlock, c.SampleRate/50)
}

// Sink is an audio output device.
//
// Open is called before any Write; Close releases the device. A closed sink
// may be opened again. Write is only ever called from one goroutine and may
// block until the device has room.
type Sink interface {
	Open(requested Config) (actual Config, err error)
	// Write queues interleaved samples and returns the number of frames
	// accepted, which may be fewer than offered.
	Write(samples []float32) (frames int, err error)
	UnderrunCount() int
	Close() error
}

// BufferSizer is implemented by sinks whose buffer size can be changed while
// they play.
type BufferSizer interface {
	BufferSizeInFrames() int
	BufferCapacityInFrames() int
	// SetBufferSizeInFrames clamps n to what the device supports and returns
	// the size now in effect.
	SetBufferSizeInFrames(n int) int
}

// NewSink returns an unopened sink by name: "null", "oto", "pulse", "alsa" or
// "wav:<path>".
func NewSink(name string, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case name == "null":
		return NewNullSink(), nil
	case name == "oto":
		return NewOtoSink(logger), nil
	case name == "pulse":
		return NewPulseSink(logger), nil
	case name == "alsa":
		s, err := NewALSASink("default", logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(name, "wav:"):
		path := strings.TrimPrefix(name, "wav:")
		if path == "" {
			return nil, fmt.Errorf("%w: wav sink needs a path", ErrUnknownSink)
		}
		return NewWavSink(path), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSink, name)
}

func clampBufferSize(n, minimum, capacity int) int {
	return min(max(n, minimum), capacity)
}
