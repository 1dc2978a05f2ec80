// Package synth contains the per-sample building blocks of a voice:
// a linear ADSR envelope, a few cheap oscillators and the Voice that couples them.
//
// Nothing in this package is safe for concurrent use. Every type is meant to be
// owned by the render goroutine.
package synth

import "time"

type EnvelopeState int

const (
	Idle EnvelopeState = iota
	Attack
	Decay
	Sustain
	Release
	Finished
)

func (s EnvelopeState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attack:
		return "attack"
	case Decay:
		return "decay"
	case Sustain:
		return "sustain"
	case Release:
		return "release"
	case Finished:
		return "finished"
	}
	return "unknown"
}

const (
	DefaultAttack  = 3 * time.Millisecond
	DefaultDecay   = 80 * time.Millisecond
	DefaultSustain = 0.3
	DefaultRelease = time.Second

	// MinEnvelopeTime keeps the per-sample rates finite.
	MinEnvelopeTime = time.Millisecond
)

// Envelope is a linear attack/decay/sustain/release generator.
// Each call to Render advances it by one sample.
type Envelope struct {
	sampleRate float32
	state      EnvelopeState
	level      float32

	attackRate  float32
	decayRate   float32
	releaseRate float32
	sustain     float32
}

func NewEnvelope(sampleRate int) *Envelope {
	e := &Envelope{sampleRate: float32(sampleRate)}
	e.SetAttack(DefaultAttack)
	e.SetDecay(DefaultDecay)
	e.SetSustain(DefaultSustain)
	e.SetRelease(DefaultRelease)
	return e
}

func (e *Envelope) rate(d time.Duration) float32 {
	if d < MinEnvelopeTime {
		d = MinEnvelopeTime
	}
	return float32(1 / (float64(e.sampleRate) * d.Seconds()))
}

func (e *Envelope) SetAttack(d time.Duration)  { e.attackRate = e.rate(d) }
func (e *Envelope) SetDecay(d time.Duration)   { e.decayRate = e.rate(d) }
func (e *Envelope) SetRelease(d time.Duration) { e.releaseRate = e.rate(d) }

// SetSustain sets the level held after the decay, clamped to [0, 1].
func (e *Envelope) SetSustain(level float32) {
	e.sustain = min(max(level, 0), 1)
}

// On starts the attack from wherever the level currently is.
func (e *Envelope) On() {
	e.state = Attack
}

// Off starts the release, whatever the current state.
func (e *Envelope) Off() {
	e.state = Release
}

func (e *Envelope) Render() float32 {
	switch e.state {
	case Attack:
		e.level += e.attackRate
		if e.level >= 1 {
			e.level = 1
			e.state = Decay
		}
	case Decay:
		e.level -= e.decayRate
		if e.level <= e.sustain {
			e.level = e.sustain
			e.state = Sustain
		}
	case Sustain:
		e.level = e.sustain
	case Release:
		e.level -= e.releaseRate
		if e.level <= 0 {
			e.level = 0
			e.state = Finished
		}
	default:
		e.level = 0
	}
	return e.level
}

func (e *Envelope) State() EnvelopeState { return e.state }
func (e *Envelope) Level() float32       { return e.level }

// IsDone reports whether the release has run out.
func (e *Envelope) IsDone() bool {
	return e.state == Finished
}
