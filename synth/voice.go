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

package synth

type VoiceState int

const (
	VoiceOff VoiceState = iota
	VoiceOn
)

// Voice is one sounding note: an oscillator shaped by an envelope.
type Voice struct {
	note      uint8
	state     VoiceState
	osc       Oscillator
	env       *Envelope
	amplitude float32
}

func NewVoice(osc Oscillator, env *Envelope) *Voice {
	return &Voice{
		osc: osc,
		env: env,
	}
}

// NoteOn retunes the oscillator and restarts the envelope attack.
// The oscillator keeps whatever frequency scaler was last set.
func (v *Voice) NoteOn(note, velocity uint8) {
	v.note = note
	v.state = VoiceOn
	v.amplitude = float32(velocity) / 128
	v.osc.SetPitch(float32(note))
	v.env.On()
}

// NoteOff starts the release. The voice keeps sounding until IsDone.
func (v *Voice) NoteOff() {
	v.state = VoiceOff
	v.env.Off()
}

func (v *Voice) SetFrequencyScaler(scaler float32) {
	v.osc.SetFrequencyScaler(scaler)
}

func (v *Voice) Render() float32 {
	return v.osc.Render() * v.env.Render() * v.amplitude
}

// Mix adds the voice to buf, which holds interleaved frames of channelsPerFrame
// samples. Every channel of a frame gets the same sample. A trailing partial
// frame is left alone.
func (v *Voice) Mix(buf []float32, channelsPerFrame int, level float32) {
	if channelsPerFrame <= 0 {
		return
	}
	for i := 0; i+channelsPerFrame <= len(buf); i += channelsPerFrame {
		s := v.Render() * level
		for c := 0; c < channelsPerFrame; c++ {
			buf[i+c] += s
		}
	}
}

func (v *Voice) IsDone() bool      { return v.env.IsDone() }
func (v *Voice) Note() uint8       { return v.note }
func (v *Voice) State() VoiceState { return v.state }
func (v *Voice) Envelope() *Envelope {
	return v.env
}
