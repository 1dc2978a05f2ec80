// Package patch maps MIDI programs to voice recipes.
package patch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Lundis/go-synth/synth"
)

type Waveform string

const (
	Sine      Waveform = "sine"
	Saw       Waveform = "saw"
	SawDPW    Waveform = "sawdpw"
	Wavetable Waveform = "wavetable"
)

func (w Waveform) valid() bool {
	switch w {
	case Sine, Saw, SawDPW, Wavetable:
		return true
	}
	return false
}

// Patch describes how voices for one program are built.
type Patch struct {
	Program  int
	Name     string
	Waveform Waveform
	// Table is one cycle of the waveform, used only by Wavetable patches.
	Table []float32

	Attack  time.Duration
	Decay   time.Duration
	Sustain float32
	Release time.Duration

	// Level scales the voice output on top of the note velocity.
	Level float32
}

// DefaultPatch is used for programs a bank does not define:
// odd programs get a sine, even programs a band limited sawtooth.
func DefaultPatch(program int) *Patch {
	p := &Patch{
		Program:  program,
		Waveform: SawDPW,
		Attack:   synth.DefaultAttack,
		Decay:    synth.DefaultDecay,
		Sustain:  synth.DefaultSustain,
		Release:  synth.DefaultRelease,
		Level:    1,
	}
	if program%2 == 1 {
		p.Waveform = Sine
	}
	p.Name = fmt.Sprintf("default %s %d", p.Waveform, program)
	return p
}

// NewOscillator builds the oscillator for p. Wavetable patches without a
// table fall back to a sine.
func (p *Patch) NewOscillator(sampleRate int) synth.Oscillator {
	var osc synth.Oscillator
	switch p.Waveform {
	case Sine:
		osc = synth.NewSine(sampleRate)
	case Saw:
		osc = synth.NewSaw(sampleRate)
	case Wavetable:
		if w := synth.NewWavetable(sampleRate, p.Table); w != nil {
			osc = w
		} else {
			osc = synth.NewSine(sampleRate)
		}
	default:
		osc = synth.NewSawDPW(sampleRate)
	}
	if p.Level != 1 {
		osc = &gained{Oscillator: osc, gain: p.Level}
	}
	return osc
}

func (p *Patch) NewEnvelope(sampleRate int) *synth.Envelope {
	env := synth.NewEnvelope(sampleRate)
	env.SetAttack(p.Attack)
	env.SetDecay(p.Decay)
	env.SetSustain(p.Sustain)
	env.SetRelease(p.Release)
	return env
}

func (p *Patch) NewVoice(sampleRate int) *synth.Voice {
	return synth.NewVoice(p.NewOscillator(sampleRate), p.NewEnvelope(sampleRate))
}

type gained struct {
	synth.Oscillator
	gain float32
}

func (g *gained) Render() float32 {
	return g.Oscillator.Render() * g.gain
}

// duration accepts "80ms" style strings or plain numbers of milliseconds.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		d.Duration, err = time.ParseDuration(s)
		return err
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	d.Duration = time.Duration(ms * float64(time.Millisecond))
	return nil
}

// patchEntry is one element of patches.json.
type patchEntry struct {
	Program   int       `json:"program"`
	Name      string    `json:"name"`
	Waveform  Waveform  `json:"waveform"`
	Wavetable string    `json:"wavetable"`
	Attack    *duration `json:"attack"`
	Decay     *duration `json:"decay"`
	Sustain   *float32  `json:"sustain"`
	Release   *duration `json:"release"`
	Level     *float32  `json:"level"`
}

func (e *patchEntry) toPatch() (*Patch, error) {
	if e.Program < 0 || e.Program > 127 {
		return nil, fmt.Errorf("program %d out of range", e.Program)
	}
	p := DefaultPatch(e.Program)
	if e.Name != "" {
		p.Name = e.Name
	}
	if e.Waveform != "" {
		if !e.Waveform.valid() {
			return nil, fmt.Errorf("program %d: unknown waveform %q", e.Program, e.Waveform)
		}
		p.Waveform = e.Waveform
	}
	if p.Waveform == Wavetable && e.Wavetable == "" {
		return nil, fmt.Errorf("program %d: wavetable patch without a wavetable file", e.Program)
	}
	if e.Attack != nil {
		p.Attack = e.Attack.Duration
	}
	if e.Decay != nil {
		p.Decay = e.Decay.Duration
	}
	if e.Sustain != nil {
		p.Sustain = *e.Sustain
	}
	if e.Release != nil {
		p.Release = e.Release.Duration
	}
	if e.Level != nil {
		p.Level = *e.Level
	}
	return p, nil
}
