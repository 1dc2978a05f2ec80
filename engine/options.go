package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lundis/go-synth/patch"
	"github.com/Lundis/go-synth/scheduler"
)

var (
	ErrInvalidConfig = errors.New("engine: invalid config")
	// ErrRunning is returned by calls that are only allowed while stopped.
	ErrRunning = errors.New("engine: running")
)

const (
	DefaultSampleRate     = 48000
	DefaultChannelCount   = 2
	DefaultFramesPerBlock = 64
	DefaultBendRange      = 2
	DefaultVoiceLevel     = 0.25
	DefaultJoinTimeout    = 500 * time.Millisecond

	// MaxFreeVoices caps how many finished voices are kept for reuse.
	MaxFreeVoices = 32

	maxFramesPerBlock = 1 << 16
)

// Options represents options for New. Zero values select the defaults.
type Options struct {
	// SampleRate is the rate asked of the sink. The sink has the last word:
	// the engine runs at whatever rate it reports back.
	SampleRate int

	ChannelCount int

	// FramesPerBlock is the number of frames rendered per loop iteration.
	FramesPerBlock int

	// BufferCapacityInFrames is passed to the sink. 0 lets the sink choose.
	BufferCapacityInFrames int

	// BendRange is the pitch bend at full deflection, in semitones.
	BendRange float32

	// VoiceLevel scales every voice before mixing so that several loud notes
	// don't clip.
	VoiceLevel float32

	// MaxEventPool caps the scheduler's pool of recycled events.
	MaxEventPool int

	// JoinTimeout bounds how long Stop waits for the render loop.
	JoinTimeout time.Duration

	// Clock is the time base of event timestamps. Defaults to
	// scheduler.MonotonicClock. Ignored when FrameClock is set.
	Clock scheduler.Clock

	// FrameClock makes the time base the number of frames written to the sink.
	// Use it for offline rendering and for reproducible tests.
	FrameClock bool

	// Bank provides the patches for program changes. Defaults to
	// patch.DefaultBank.
	Bank *patch.Bank

	Logger *slog.Logger

	// LatencyTuning starts the latency tuner with the engine, if the sink
	// supports buffer sizing.
	LatencyTuning bool
}

func (o *Options) setDefaults() {
	if o.SampleRate == 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.ChannelCount == 0 {
		o.ChannelCount = DefaultChannelCount
	}
	if o.FramesPerBlock == 0 {
		o.FramesPerBlock = DefaultFramesPerBlock
	}
	if o.BendRange == 0 {
		o.BendRange = DefaultBendRange
	}
	if o.VoiceLevel == 0 {
		o.VoiceLevel = DefaultVoiceLevel
	}
	if o.MaxEventPool == 0 {
		o.MaxEventPool = scheduler.DefaultMaxPoolSize
	}
	if o.JoinTimeout == 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}
	if o.Bank == nil {
		o.Bank = patch.DefaultBank()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

func (o *Options) validate() error {
	switch {
	case o.SampleRate < 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, o.SampleRate)
	case o.ChannelCount < 0:
		return fmt.Errorf("%w: channel count %d", ErrInvalidConfig, o.ChannelCount)
	case o.BufferCapacityInFrames < 0:
		return fmt.Errorf("%w: buffer capacity %d", ErrInvalidConfig, o.BufferCapacityInFrames)
	case o.BendRange < 0 || o.BendRange > 48:
		return fmt.Errorf("%w: bend range %v", ErrInvalidConfig, o.BendRange)
	case o.VoiceLevel < 0:
		return fmt.Errorf("%w: voice level %v", ErrInvalidConfig, o.VoiceLevel)
	case o.MaxEventPool < 0:
		return fmt.Errorf("%w: event pool size %d", ErrInvalidConfig, o.MaxEventPool)
	case o.JoinTimeout < 0:
		return fmt.Errorf("%w: join timeout %v", ErrInvalidConfig, o.JoinTimeout)
	}
	return validateFramesPerBlock(o.FramesPerBlock)
}

func validateFramesPerBlock(n int) error {
	if n <= 0 || n > maxFramesPerBlock {
		return fmt.Errorf("%w: frames per block %d", ErrInvalidConfig, n)
	}
	return nil
}
