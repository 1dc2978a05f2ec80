// Package engine runs the synthesizer: it takes timestamped MIDI messages from
// any goroutine, plays them through a table of voices and writes the mix to an
// audio sink, one block at a time.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/Lundis/go-synth/audio"
	"github.com/Lundis/go-synth/scheduler"
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	State                  State
	SampleRate             int
	FramesPerBlock         int
	BlocksRendered         int64
	ActiveVoices           int
	PendingEvents          int
	DroppedEvents          int64
	Underruns              int
	BufferSizeInFrames     int
	BufferCapacityInFrames int
	TunerState             TunerState
}

type counters struct {
	blocks       atomic.Int64
	activeVoices atomic.Int32
	dropped      atomic.Int64
	underruns    atomic.Int64
	bufferSize   atomic.Int64
	tunerState   atomic.Int32
}

// Engine is a polyphonic synthesizer bound to one sink.
//
// The MIDI methods may be called from any goroutine, before or after Start.
// Start, Stop and SetFramesPerBlock are serialised with each other.
type Engine struct {
	sink       audio.Sink
	opts       Options
	logger     *slog.Logger
	sched      *scheduler.Scheduler
	frameClock *FrameClock

	// producer serialises the scheduler's producer side.
	producer sync.Mutex

	lifecycle      sync.Mutex
	framesPerBlock int
	cfg            audio.Config
	cancel         context.CancelFunc
	done           chan struct{}
	// stale is the done channel of a run that outlived its join timeout.
	stale chan struct{}

	state   atomic.Int32
	current atomic.Pointer[renderer]
	tuning  atomic.Bool
	err     atomicError
	stats   counters
}

func New(sink audio.Sink, options Options) (*Engine, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: nil sink", ErrInvalidConfig)
	}
	options.setDefaults()
	if err := options.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		sink:           sink,
		opts:           options,
		logger:         options.Logger,
		framesPerBlock: options.FramesPerBlock,
	}
	clock := options.Clock
	if options.FrameClock {
		e.frameClock = NewFrameClock(options.SampleRate)
		clock = e.frameClock
	}
	e.sched = scheduler.New(scheduler.Options{
		MaxPoolSize: options.MaxEventPool,
		Clock:       clock,
	})
	e.tuning.Store(options.LatencyTuning)
	return e, nil
}

// Start opens the sink and launches the render loop. A running engine is
// stopped first.
func (e *Engine) Start() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.stopLocked()
	if err := e.awaitStaleLocked(); err != nil {
		return err
	}
	e.state.Store(int32(Starting))

	requested := audio.Config{
		SampleRate:             e.opts.SampleRate,
		ChannelCount:           e.opts.ChannelCount,
		FramesPerBlock:         e.framesPerBlock,
		BufferCapacityInFrames: e.opts.BufferCapacityInFrames,
	}
	cfg, err := e.sink.Open(requested)
	if err == nil {
		err = cfg.Validate()
		if err != nil {
			_ = e.sink.Close()
		}
	}
	if err != nil {
		e.state.Store(int32(Stopped))
		return fmt.Errorf("engine: opening sink: %w", err)
	}
	if cfg.SampleRate != requested.SampleRate {
		e.logger.Info("sink picked a different sample rate", "requested", requested.SampleRate, "actual", cfg.SampleRate)
	}
	if e.frameClock != nil {
		e.frameClock.setRate(cfg.SampleRate)
	}
	e.cfg = cfg

	r := newRenderer(e, cfg)
	if r.sizer == nil && e.tuning.Load() {
		e.logger.Info("sink has a fixed buffer size, latency tuning is unavailable")
	}
	if r.sizer != nil {
		e.stats.bufferSize.Store(int64(r.sizer.BufferSizeInFrames()))
	} else {
		e.stats.bufferSize.Store(int64(cfg.BufferCapacityInFrames))
	}
	e.stats.tunerState.Store(int32(Priming))
	e.err.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.current.Store(r)
	e.state.Store(int32(Running))
	go r.loop(ctx, e.done)

	e.logger.Debug("engine started",
		"sampleRate", cfg.SampleRate,
		"channels", cfg.ChannelCount,
		"framesPerBlock", cfg.FramesPerBlock,
		"bufferFrames", cfg.BufferCapacityInFrames)
	return nil
}

// Stop asks the render loop to finish and waits for it up to the join
// timeout. The loop closes the sink on its way out.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.cancel == nil {
		e.state.Store(int32(Stopped))
		return
	}
	e.state.Store(int32(Stopping))
	e.cancel()
	select {
	case <-e.done:
	case <-time.After(e.opts.JoinTimeout):
		e.logger.Warn("render loop did not stop in time", "timeout", e.opts.JoinTimeout)
		e.stale = e.done
	}
	e.cancel = nil
	e.done = nil
	e.current.Store(nil)
	e.state.Store(int32(Stopped))
}

// awaitStaleLocked gives a run that missed its join timeout one more timeout
// to leave the sink. The sink only ever has one writer.
func (e *Engine) awaitStaleLocked() error {
	if e.stale == nil {
		return nil
	}
	select {
	case <-e.stale:
		e.stale = nil
		return nil
	case <-time.After(e.opts.JoinTimeout):
		return fmt.Errorf("%w: previous render loop is still writing to the sink", ErrRunning)
	}
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// Err returns the error that ended the last run of the render loop, if any.
func (e *Engine) Err() error {
	return e.err.Load()
}

// SetFramesPerBlock changes the block size used by the next Start.
func (e *Engine) SetFramesPerBlock(n int) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.cancel != nil && e.State() != Stopped {
		return ErrRunning
	}
	if err := validateFramesPerBlock(n); err != nil {
		return err
	}
	e.framesPerBlock = n
	return nil
}

// SetLatencyTuning turns the latency tuner on or off. Turning it off restores
// the sink's full buffer.
func (e *Engine) SetLatencyTuning(enabled bool) {
	e.tuning.Store(enabled)
}

func (e *Engine) LatencyTuning() bool {
	return e.tuning.Load()
}

// Now returns the current time on the engine's clock.
func (e *Engine) Now() int64 {
	return e.sched.Clock().Now()
}

// Send schedules a raw MIDI message for timestamp. System realtime messages
// are ignored.
func (e *Engine) Send(data []byte, timestamp int64) error {
	if isRealtime(data) {
		return nil
	}
	e.producer.Lock()
	defer e.producer.Unlock()
	if err := e.sched.Schedule(data, timestamp); err != nil {
		e.stats.dropped.Add(1)
		return err
	}
	return nil
}

func (e *Engine) NoteOn(channel, note, velocity uint8) error {
	return e.Send(midi.NoteOn(channel, note, velocity), e.Now())
}

func (e *Engine) NoteOff(channel, note, velocity uint8) error {
	return e.Send(midi.NoteOffVelocity(channel, note, velocity), e.Now())
}

// PitchBend bends every voice. value ranges from -8192 to 8191.
func (e *Engine) PitchBend(channel uint8, value int16) error {
	return e.Send(midi.Pitchbend(channel, value), e.Now())
}

func (e *Engine) ProgramChange(channel, program uint8) error {
	return e.Send(midi.ProgramChange(channel, program), e.Now())
}

// AllNotesOff releases every sounding voice.
func (e *Engine) AllNotesOff() error {
	return e.Send(midi.ControlChange(0, ccAllNotesOff, 0), e.Now())
}

func (e *Engine) Stats() Stats {
	e.lifecycle.Lock()
	cfg := e.cfg
	framesPerBlock := e.framesPerBlock
	e.lifecycle.Unlock()
	if cfg.FramesPerBlock != 0 {
		framesPerBlock = cfg.FramesPerBlock
	}
	return Stats{
		State:                  e.State(),
		SampleRate:             cfg.SampleRate,
		FramesPerBlock:         framesPerBlock,
		BlocksRendered:         e.stats.blocks.Load(),
		ActiveVoices:           int(e.stats.activeVoices.Load()),
		PendingEvents:          e.sched.Len(),
		DroppedEvents:          e.stats.dropped.Load(),
		Underruns:              int(e.stats.underruns.Load()),
		BufferSizeInFrames:     int(e.stats.bufferSize.Load()),
		BufferCapacityInFrames: cfg.BufferCapacityInFrames,
		TunerState:             TunerState(e.stats.tunerState.Load()),
	}
}
