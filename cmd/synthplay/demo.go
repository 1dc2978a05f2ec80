package main

import (
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/Lundis/go-synth/midiinput"
)

// demoSong is a short arpeggio played once with the saw and once with the
// sine patch, ending on a chord with a pitch bend.
func demoSong() []midiinput.Event {
	const step = 150 * time.Millisecond
	var events []midiinput.Event
	at := time.Duration(0)
	add := func(msg midi.Message) {
		events = append(events, midiinput.Event{Offset: at, Message: msg})
	}

	chord := []uint8{60, 64, 67, 72}
	for _, program := range []uint8{0, 1} {
		add(midi.ProgramChange(0, program))
		for _, note := range append(chord, 76, 72, 67, 64) {
			add(midi.NoteOn(0, note, 100))
			at += step
			add(midi.NoteOff(0, note))
		}
	}

	for _, note := range chord {
		add(midi.NoteOn(0, note, 80))
	}
	for i := 0; i <= 16; i++ {
		at += 30 * time.Millisecond
		add(midi.Pitchbend(0, int16(i*512-1)))
	}
	at += time.Second
	add(midi.Pitchbend(0, 0))
	for _, note := range chord {
		add(midi.NoteOff(0, note))
	}
	return events
}
