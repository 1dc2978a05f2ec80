package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
)

const minPulseLatency = 10 * time.Millisecond

// PulseSink plays through a PulseAudio (or PipeWire) server using
// github.com/jfreymuth/pulse. The stream is mono.
type PulseSink struct {
	logger *slog.Logger

	m      sync.Mutex
	client *pulse.Client
	stream *pulse.PlaybackStream
	pipe   *pipe
}

func NewPulseSink(logger *slog.Logger) *PulseSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PulseSink{logger: logger}
}

func (s *PulseSink) Open(requested Config) (Config, error) {
	if err := requested.Validate(); err != nil {
		return Config{}, err
	}
	actual := requested
	actual.ChannelCount = 1
	actual.BufferCapacityInFrames = requested.defaultCapacity()

	client, err := pulse.NewClient()
	if err != nil {
		return Config{}, fmt.Errorf("pulse: %w", err)
	}
	p := newPipe(actual, actual.BufferCapacityInFrames)
	stream, err := client.NewPlayback(
		pulse.Float32Reader(func(out []float32) (int, error) {
			if p.closed.Load() {
				return 0, pulse.EndOfData
			}
			return p.readFloats(out), nil
		}),
		pulse.PlaybackSampleRate(actual.SampleRate),
		pulse.PlaybackLatency(max(actual.FrameDuration(actual.FramesPerBlock), minPulseLatency).Seconds()),
	)
	if err != nil {
		client.Close()
		return Config{}, fmt.Errorf("pulse: %w", err)
	}

	s.m.Lock()
	defer s.m.Unlock()
	s.client = client
	s.stream = stream
	s.pipe = p
	stream.Start()
	return actual, nil
}

func (s *PulseSink) Write(samples []float32) (int, error) {
	if s.pipe == nil {
		return 0, ErrNotOpen
	}
	if err := s.stream.Error(); err != nil {
		return 0, fmt.Errorf("pulse: %w", err)
	}
	return s.pipe.write(samples)
}

func (s *PulseSink) UnderrunCount() int {
	if s.pipe == nil {
		return 0
	}
	return int(s.pipe.underruns.Load())
}

func (s *PulseSink) BufferSizeInFrames() int     { return int(s.pipe.bufferSize.Load()) }
func (s *PulseSink) BufferCapacityInFrames() int { return s.pipe.capacity }
func (s *PulseSink) SetBufferSizeInFrames(n int) int {
	return s.pipe.setBufferSize(n)
}

func (s *PulseSink) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.pipe == nil {
		return nil
	}
	s.pipe.close()
	s.stream.Stop()
	if s.stream.Underflow() {
		s.logger.Debug("pulse stream reported an underflow")
	}
	s.stream.Close()
	s.client.Close()
	return nil
}
