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

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/Lundis/go-synth/audio"
	"github.com/Lundis/go-synth/patch"
	"github.com/Lundis/go-synth/scheduler"
	"github.com/Lundis/go-synth/synth"
)

var ErrSinkWrite = errors.New("engine: sink write failed")

// renderer is the state of one run of the render loop. Everything in it
// belongs to the loop goroutine.
type renderer struct {
	e      *Engine
	sink   audio.Sink
	sched  *scheduler.Scheduler
	clock  scheduler.Clock
	frames *FrameClock
	bank   *patch.Bank
	logger *slog.Logger

	sampleRate int
	channels   int
	level      float32
	bendRange  float32

	voices     [128]*synth.Voice
	free       []*synth.Voice
	program    int
	bendScaler float32
	block      []float32

	sizer   audio.BufferSizer
	tuner   *Tuner
	tunerOn bool
}

func newRenderer(e *Engine, cfg audio.Config) *renderer {
	r := &renderer{
		e:          e,
		sink:       e.sink,
		sched:      e.sched,
		clock:      e.sched.Clock(),
		frames:     e.frameClock,
		bank:       e.opts.Bank,
		logger:     e.logger,
		sampleRate: cfg.SampleRate,
		channels:   cfg.ChannelCount,
		level:      e.opts.VoiceLevel,
		bendRange:  e.opts.BendRange,
		free:       make([]*synth.Voice, 0, MaxFreeVoices),
		bendScaler: 1,
		block:      make([]float32, cfg.FramesPerBlock*cfg.ChannelCount),
	}
	if sizer, ok := e.sink.(audio.BufferSizer); ok {
		r.sizer = sizer
		r.tuner = NewTuner(e.sink, sizer, cfg.FramesPerBlock)
	}
	return r
}

func (r *renderer) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	defer r.finish()
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("engine: render loop panicked: %v", p)
			r.logger.Error("render loop panicked", "panic", p, "stack", string(debug.Stack()))
			r.e.err.TryStore(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := r.cycle(); err != nil {
			r.logger.Error("render loop stopped", "error", err)
			r.e.err.TryStore(err)
			return
		}
	}
}

// cycle renders and writes one block.
func (r *renderer) cycle() error {
	now := r.clock.Now()
	for ev := r.sched.GetNextEvent(now); ev != nil; ev = r.sched.GetNextEvent(now) {
		r.handle(ev.Data)
		r.sched.AddEventToPool(ev)
	}

	clear(r.block)
	active := 0
	for note, v := range r.voices {
		if v == nil {
			continue
		}
		if v.IsDone() {
			r.voices[note] = nil
			r.recycle(v)
			continue
		}
		v.Mix(r.block, r.channels, r.level)
		active++
	}

	n, err := r.sink.Write(r.block)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	if n < 0 {
		return fmt.Errorf("%w: %d frames", ErrSinkWrite, n)
	}
	if r.frames != nil {
		r.frames.advance(n)
	}

	r.e.stats.blocks.Add(1)
	r.e.stats.activeVoices.Store(int32(active))
	r.e.stats.underruns.Store(int64(r.sink.UnderrunCount()))
	r.tune(n)
	return nil
}

func (r *renderer) tune(frames int) {
	if r.tuner == nil {
		return
	}
	on := r.e.tuning.Load()
	switch {
	case on:
		r.tuner.Step(frames)
	case r.tunerOn:
		r.tuner.Reset()
	}
	r.tunerOn = on
	r.e.stats.tunerState.Store(int32(r.tuner.State()))
	r.e.stats.bufferSize.Store(int64(r.sizer.BufferSizeInFrames()))
}

func (r *renderer) recycle(v *synth.Voice) {
	if len(r.free) < MaxFreeVoices {
		r.free = append(r.free, v)
	}
}

func (r *renderer) newVoice() *synth.Voice {
	if n := len(r.free); n > 0 {
		v := r.free[n-1]
		r.free[n-1] = nil
		r.free = r.free[:n-1]
		return v
	}
	return r.bank.Patch(r.program).NewVoice(r.sampleRate)
}

// finish closes the sink and marks the engine stopped. Start waits for a run
// that outlived its join timeout, so the sink it closes is still its own.
func (r *renderer) finish() {
	current := r.e.current.Load()
	if current != nil && current != r {
		return
	}
	if err := r.sink.Close(); err != nil {
		r.logger.Warn("closing sink failed", "error", err)
	}
	if current == r {
		r.e.state.CompareAndSwap(int32(Running), int32(Stopped))
	}
}
