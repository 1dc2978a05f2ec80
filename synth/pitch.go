package synth

import "math"

const (
	ConcertA      = 440
	ConcertAPitch = 69
)

// PitchToFrequency converts a MIDI pitch (fractional values allowed) to Hz
// on the equal-tempered scale.
func PitchToFrequency(pitch float32) float32 {
	return float32(ConcertA * math.Exp2((float64(pitch)-ConcertAPitch)/12))
}

// SemitonesToRatio returns the frequency multiplier for a pitch offset.
func SemitonesToRatio(semitones float32) float32 {
	return float32(math.Exp2(float64(semitones) / 12))
}
