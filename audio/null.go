// Copyright 2022 The Oto Authors
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

package audio

import (
	"sync"
	"time"
)

// NullSink is a device that plays into nothing, in real time.
//
// Its queue drains at the sample rate. Write blocks while the queue holds
// more than the buffer size, and an underrun is counted each time the queue
// runs dry between writes.
type NullSink struct {
	m sync.Mutex

	cfg        Config
	opened     bool
	closed     bool
	started    bool
	dry        bool
	queued     float64
	lastUpdate time.Time
	bufferSize int
	capacity   int
	underruns  int
	written    int64

	now   func() time.Time
	sleep func(time.Duration)
}

func NewNullSink() *NullSink {
	return &NullSink{
		now:   time.Now,
		sleep: time.Sleep,
	}
}

func (s *NullSink) Open(requested Config) (Config, error) {
	if err := requested.Validate(); err != nil {
		return Config{}, err
	}
	s.m.Lock()
	defer s.m.Unlock()
	s.cfg = requested
	s.capacity = requested.defaultCapacity()
	s.cfg.BufferCapacityInFrames = s.capacity
	s.bufferSize = s.capacity
	s.opened = true
	s.closed = false
	s.started = false
	s.dry = false
	s.queued = 0
	s.written = 0
	return s.cfg, nil
}

// drainLocked plays out whatever the device consumed since the last update.
func (s *NullSink) drainLocked() {
	now := s.now()
	if !s.started {
		s.lastUpdate = now
		return
	}
	played := now.Sub(s.lastUpdate).Seconds() * float64(s.cfg.SampleRate)
	s.lastUpdate = now
	if played >= s.queued {
		if !s.dry {
			s.underruns++
			s.dry = true
		}
		s.queued = 0
		return
	}
	s.queued -= played
}

func (s *NullSink) Write(samples []float32) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if !s.opened {
		return 0, ErrNotOpen
	}
	frames := len(samples) / s.cfg.ChannelCount
	if frames == 0 {
		return 0, nil
	}
	for {
		s.drainLocked()
		excess := s.queued + float64(frames) - float64(s.bufferSize)
		if excess <= 0 || s.queued == 0 {
			break
		}
		wait := time.Duration(excess * float64(time.Second) / float64(s.cfg.SampleRate))
		s.m.Unlock()
		s.sleep(max(wait, 100*time.Microsecond))
		s.m.Lock()
		if s.closed {
			return 0, ErrClosed
		}
	}
	s.queued += float64(frames)
	s.dry = false
	s.started = true
	s.written += int64(frames)
	return frames, nil
}

func (s *NullSink) UnderrunCount() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.underruns
}

// FramesWritten returns the total number of frames accepted so far.
func (s *NullSink) FramesWritten() int64 {
	s.m.Lock()
	defer s.m.Unlock()
	return s.written
}

func (s *NullSink) BufferSizeInFrames() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.bufferSize
}

func (s *NullSink) BufferCapacityInFrames() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.capacity
}

func (s *NullSink) SetBufferSizeInFrames(n int) int {
	s.m.Lock()
	defer s.m.Unlock()
	s.bufferSize = clampBufferSize(n, max(s.cfg.FramesPerBlock, 1), s.capacity)
	return s.bufferSize
}

func (s *NullSink) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	s.closed = true
	return nil
}
