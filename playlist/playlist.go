// Package playlist plays lists of MIDI songs one after another.
package playlist

import (
	"context"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/Lundis/go-synth/midiinput"
)

// DefaultGap is the pause between two tracks.
const DefaultGap = time.Second

type Id string

type PlayList struct {
	Id     Id
	Tracks []*Track
	// GapMs is the pause after each track in milliseconds. 0 selects DefaultGap.
	GapMs int
	// Repeat starts over after the last track.
	Repeat bool
}

type Track struct {
	Path   string
	Name   string
	Author string
	// Program, if set, is selected before the track starts.
	Program *uint8
	events  []midiinput.Event
}

// Length returns the time from the track's first to its last event.
func (t *Track) Length() time.Duration {
	return midiinput.Duration(t.events)
}

// Play sends the tracks to r in order until the list ends or ctx is done.
// Every track ends with all notes off.
func (pl *PlayList) Play(ctx context.Context, r midiinput.Receiver, lookahead time.Duration) error {
	if len(pl.Tracks) == 0 {
		return nil
	}
	gap := time.Duration(pl.GapMs) * time.Millisecond
	if gap <= 0 {
		gap = DefaultGap
	}
	for {
		for _, track := range pl.Tracks {
			if err := track.play(ctx, r, lookahead, gap); err != nil {
				return err
			}
		}
		if !pl.Repeat {
			return nil
		}
	}
}

func (t *Track) play(ctx context.Context, r midiinput.Receiver, lookahead, gap time.Duration) error {
	start := r.Now()
	if t.Program != nil {
		if err := r.Send(midi.ProgramChange(0, *t.Program), start); err != nil {
			return err
		}
	}
	if err := midiinput.Play(ctx, t.events, r, lookahead); err != nil {
		return err
	}
	end := start + int64(t.Length())
	if err := waitUntil(ctx, r, end); err != nil {
		return err
	}
	if err := r.Send(midi.ControlChange(0, 123, 0), r.Now()); err != nil {
		return err
	}
	return waitUntil(ctx, r, end+int64(gap))
}

// waitUntil polls the receiver's clock, which need not be wall time.
func waitUntil(ctx context.Context, r midiinput.Receiver, t int64) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for r.Now() < t {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
