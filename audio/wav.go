package audio

import (
	"fmt"
	"os"
	"sync"

	"github.com/Lundis/go-synth/loaders/wav"
)

// WavSink renders into a 16-bit WAV file as fast as it is fed. It never
// underruns.
type WavSink struct {
	path string

	m      sync.Mutex
	file   *os.File
	writer *wav.Writer
	cfg    Config
	frames int64
}

func NewWavSink(path string) *WavSink {
	return &WavSink{path: path}
}

func (s *WavSink) Open(requested Config) (Config, error) {
	if err := requested.Validate(); err != nil {
		return Config{}, err
	}
	s.m.Lock()
	defer s.m.Unlock()
	if s.file != nil {
		return Config{}, fmt.Errorf("audio: %s is already open", s.path)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return Config{}, err
	}
	w, err := wav.NewWriter(f, wav.Format{SampleRate: requested.SampleRate, Channels: requested.ChannelCount})
	if err != nil {
		_ = f.Close()
		return Config{}, err
	}
	s.file = f
	s.writer = w
	s.cfg = requested
	return requested, nil
}

func (s *WavSink) Write(samples []float32) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.writer == nil {
		return 0, ErrNotOpen
	}
	n := len(samples) / s.cfg.ChannelCount * s.cfg.ChannelCount
	written, err := s.writer.Write(samples[:n])
	frames := written / s.cfg.ChannelCount
	s.frames += int64(frames)
	return frames, err
}

func (s *WavSink) UnderrunCount() int { return 0 }

// FramesWritten returns the number of frames in the file so far.
func (s *WavSink) FramesWritten() int64 {
	s.m.Lock()
	defer s.m.Unlock()
	return s.frames
}

func (s *WavSink) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.writer.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	s.writer = nil
	return err
}
