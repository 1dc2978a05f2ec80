package audio

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process; every OtoSink shares it.
var (
	otoMutex   sync.Mutex
	otoContext *oto.Context
	otoConfig  Config
)

func sharedOtoContext(requested Config, capacity int) (*oto.Context, Config, error) {
	otoMutex.Lock()
	defer otoMutex.Unlock()
	if otoContext != nil {
		return otoContext, otoConfig, nil
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   requested.SampleRate,
		ChannelCount: requested.ChannelCount,
		Format:       oto.FormatFloat32LE,
		BufferSize:   requested.FrameDuration(capacity),
	})
	if err != nil {
		return nil, Config{}, fmt.Errorf("oto: %w", err)
	}
	<-ready
	otoContext = ctx
	otoConfig = requested
	return ctx, requested, nil
}

// OtoSink plays through github.com/ebitengine/oto/v3.
//
// The oto player pulls from a ring buffer that Write fills. If the process
// already holds an oto context, its sample rate and channel count win over the
// requested ones.
type OtoSink struct {
	logger *slog.Logger

	m      sync.Mutex
	cfg    Config
	pipe   *pipe
	player *oto.Player
}

func NewOtoSink(logger *slog.Logger) *OtoSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &OtoSink{logger: logger}
}

func (s *OtoSink) Open(requested Config) (Config, error) {
	if err := requested.Validate(); err != nil {
		return Config{}, err
	}
	capacity := requested.defaultCapacity()
	ctx, actual, err := sharedOtoContext(requested, capacity)
	if err != nil {
		return Config{}, err
	}
	actual.FramesPerBlock = requested.FramesPerBlock
	actual.BufferCapacityInFrames = capacity
	if actual.SampleRate != requested.SampleRate || actual.ChannelCount != requested.ChannelCount {
		s.logger.Warn("Reusing the existing oto context",
			"sampleRate", actual.SampleRate, "channels", actual.ChannelCount)
	}

	s.m.Lock()
	defer s.m.Unlock()
	s.cfg = actual
	s.pipe = newPipe(actual, capacity)
	s.player = ctx.NewPlayer(&otoReader{pipe: s.pipe})
	s.player.SetBufferSize(capacity * s.pipe.frameBytes)
	s.player.Play()
	return actual, nil
}

// otoReader is what the oto player pulls from. It returns io.EOF once the
// sink is closed so the player stops.
type otoReader struct {
	pipe *pipe
}

func (r *otoReader) Read(p []byte) (int, error) {
	if r.pipe.closed.Load() {
		return 0, io.EOF
	}
	return r.pipe.readBytes(p), nil
}

func (s *OtoSink) Write(samples []float32) (int, error) {
	p := s.pipe
	if p == nil {
		return 0, ErrNotOpen
	}
	if err := s.player.Err(); err != nil {
		return 0, fmt.Errorf("oto: %w", err)
	}
	return p.write(samples)
}

func (s *OtoSink) UnderrunCount() int {
	if s.pipe == nil {
		return 0
	}
	return int(s.pipe.underruns.Load())
}

func (s *OtoSink) BufferSizeInFrames() int {
	return int(s.pipe.bufferSize.Load())
}

func (s *OtoSink) BufferCapacityInFrames() int {
	return s.pipe.capacity
}

// SetBufferSizeInFrames also shrinks the oto player's own read-ahead, which
// would otherwise add its full buffer to the latency.
func (s *OtoSink) SetBufferSizeInFrames(n int) int {
	n = s.pipe.setBufferSize(n)
	s.m.Lock()
	s.player.SetBufferSize(n * s.pipe.frameBytes)
	s.m.Unlock()
	return n
}

func (s *OtoSink) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.pipe == nil {
		return nil
	}
	s.pipe.close()
	err := s.player.Close()
	s.logger.Debug("oto sink closed", "underruns", s.pipe.underruns.Load())
	return err
}
