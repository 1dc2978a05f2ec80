package engine

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/Lundis/go-synth/synth"
)

const (
	ccAllSoundOff = 120
	ccAllNotesOff = 123

	pitchBendCenter = 8192
)

// messageLength returns the length of a channel voice message with the given
// status byte, or 0 if the status is not one.
func messageLength(status byte) int {
	switch status & 0xF0 {
	case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
		return 3
	case 0xC0, 0xD0:
		return 2
	}
	return 0
}

func wellFormed(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n := messageLength(data[0])
	if n == 0 || len(data) < n {
		return false
	}
	for _, b := range data[1:n] {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// isRealtime reports whether data only carries system realtime bytes: clock,
// start, continue, stop, active sensing or reset. None of them affect voices.
func isRealtime(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, b := range data {
		if b < 0xF8 {
			return false
		}
	}
	return true
}

// handle applies one MIDI message to the voice table. The channel is ignored.
func (r *renderer) handle(data []byte) {
	if isRealtime(data) {
		return
	}
	if !wellFormed(data) {
		r.logger.Debug("dropping malformed MIDI message", "bytes", data)
		r.e.stats.dropped.Add(1)
		return
	}
	msg := midi.Message(data)

	var channel, key, velocity, program, controller, value uint8
	var relative int16
	var absolute uint16
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		r.noteOn(key, velocity)
	case msg.GetNoteEnd(&channel, &key):
		r.noteOff(key)
	case msg.GetPitchBend(&channel, &relative, &absolute):
		r.pitchBend(relative)
	case msg.GetProgramChange(&channel, &program):
		r.program = int(program)
		// Free voices were built from the old patch.
		clear(r.free)
		r.free = r.free[:0]
	case msg.GetControlChange(&channel, &controller, &value) && (controller == ccAllNotesOff || controller == ccAllSoundOff):
		r.allNotesOff(controller == ccAllSoundOff)
	default:
		r.logger.Debug("ignoring MIDI message", "msg", msg.String())
	}
}

// noteOn starts a voice for note. A voice already on that note is replaced
// without a release tail.
func (r *renderer) noteOn(note, velocity uint8) {
	r.voices[note] = nil
	v := r.newVoice()
	v.SetFrequencyScaler(r.bendScaler)
	v.NoteOn(note, velocity)
	r.voices[note] = v
}

func (r *renderer) noteOff(note uint8) {
	if v := r.voices[note]; v != nil {
		v.NoteOff()
	}
}

func (r *renderer) pitchBend(relative int16) {
	semitones := r.bendRange * float32(relative) / pitchBendCenter
	r.bendScaler = synth.SemitonesToRatio(semitones)
	for _, v := range r.voices {
		if v != nil {
			v.SetFrequencyScaler(r.bendScaler)
		}
	}
}

// allNotesOff releases every sounding voice. With immediate set the voices
// are dropped without a release tail.
func (r *renderer) allNotesOff(immediate bool) {
	for note, v := range r.voices {
		if v == nil {
			continue
		}
		if immediate {
			r.voices[note] = nil
			continue
		}
		v.NoteOff()
	}
}
