package midiinput

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultLookahead is how far ahead of the receiver's clock Play schedules.
const DefaultLookahead = 250 * time.Millisecond

// Event is a channel message at an offset from the start of a song.
type Event struct {
	Offset  time.Duration
	Message midi.Message
}

// ReadFile reads the channel messages of every track of a standard MIDI file,
// in playing order. Meta and system exclusive events are left out.
func ReadFile(path string) ([]Event, error) {
	events, err := collect(smf.ReadTracks(path))
	if err != nil {
		return nil, fmt.Errorf("midiinput: reading %s: %w", path, err)
	}
	return events, nil
}

// Read is ReadFile for a standard MIDI file held in r.
func Read(r io.Reader) ([]Event, error) {
	events, err := collect(smf.ReadTracksFrom(r))
	if err != nil {
		return nil, fmt.Errorf("midiinput: %w", err)
	}
	return events, nil
}

func collect(tracks *smf.TracksReader) ([]Event, error) {
	var events []Event
	err := tracks.Do(func(ev smf.TrackEvent) {
		if !isChannelMessage(ev.Message) {
			return
		}
		events = append(events, Event{
			Offset:  time.Duration(ev.AbsMicroSeconds) * time.Microsecond,
			Message: append(midi.Message(nil), ev.Message...),
		})
	}).Error()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(events, func(a, b Event) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	return events, nil
}

func isChannelMessage(msg []byte) bool {
	return len(msg) > 1 && msg[0] >= 0x80 && msg[0] < 0xF0
}

// Duration returns the offset of the last event.
func Duration(events []Event) time.Duration {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].Offset
}

// PlayFile plays a standard MIDI file into r, starting now. See Play.
func PlayFile(ctx context.Context, path string, r Receiver, lookahead time.Duration) error {
	events, err := ReadFile(path)
	if err != nil {
		return err
	}
	return Play(ctx, events, r, lookahead)
}

// Play sends events to r relative to r.Now() at the time of the call. Only
// events due within lookahead of the receiver's clock are sent, so the
// receiver never holds more than one window of the song.
// It returns once everything is sent, or with ctx.Err() when ctx is done.
func Play(ctx context.Context, events []Event, r Receiver, lookahead time.Duration) error {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	start := r.Now()
	ticker := time.NewTicker(max(lookahead/4, time.Millisecond))
	defer ticker.Stop()

	next := 0
	for {
		horizon := time.Duration(r.Now()-start) + lookahead
		for ; next < len(events) && events[next].Offset <= horizon; next++ {
			ev := events[next]
			if err := r.Send(ev.Message, start+int64(ev.Offset)); err != nil {
				return fmt.Errorf("midiinput: sending event %d: %w", next, err)
			}
		}
		if next == len(events) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
