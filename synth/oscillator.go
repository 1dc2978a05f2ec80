package synth

// Oscillator produces one sample per Render call.
type Oscillator interface {
	Render() float32
	SetPitch(pitch float32)
	SetFrequency(hz float32)
	// SetFrequencyScaler multiplies the nominal frequency, e.g. for pitch bend.
	SetFrequencyScaler(scaler float32)
}

// phasor is the shared phase generator. The phase stays in (-1, 1].
type phasor struct {
	sampleRate float32
	frequency  float32
	scaler     float32
	phase      float32
	increment  float32
}

func newPhasor(sampleRate int) phasor {
	p := phasor{sampleRate: float32(sampleRate), scaler: 1}
	p.setFrequency(ConcertA)
	return p
}

func (p *phasor) setFrequency(hz float32) {
	p.frequency = hz
	p.update()
}

func (p *phasor) setScaler(s float32) {
	p.scaler = s
	p.update()
}

func (p *phasor) effectiveFrequency() float32 {
	return p.frequency * p.scaler
}

func (p *phasor) update() {
	p.increment = p.effectiveFrequency() * 2 / p.sampleRate
}

func (p *phasor) advance() float32 {
	p.phase += p.increment
	for p.phase > 1 {
		p.phase -= 2
	}
	for p.phase <= -1 {
		p.phase += 2
	}
	return p.phase
}

// Saw is a naive sawtooth. It aliases at high frequencies.
type Saw struct {
	phasor
}

func NewSaw(sampleRate int) *Saw {
	return &Saw{phasor: newPhasor(sampleRate)}
}

func (s *Saw) SetFrequency(hz float32)       { s.setFrequency(hz) }
func (s *Saw) SetFrequencyScaler(sc float32) { s.setScaler(sc) }
func (s *Saw) SetPitch(pitch float32)        { s.setFrequency(PitchToFrequency(pitch)) }
func (s *Saw) Render() float32               { return s.advance() }

const minDPWFrequency = 1e-7

// SawDPW is a sawtooth band limited with the differentiated parabolic wave
// method.
type SawDPW struct {
	phasor
	z1, z2 float32
	scale  float32
}

func NewSawDPW(sampleRate int) *SawDPW {
	s := &SawDPW{phasor: newPhasor(sampleRate)}
	s.updateScale()
	return s
}

func (s *SawDPW) updateScale() {
	f := max(s.effectiveFrequency(), minDPWFrequency)
	s.scale = 0.125 * s.sampleRate / f
}

func (s *SawDPW) SetFrequency(hz float32) {
	s.setFrequency(hz)
	s.updateScale()
}

func (s *SawDPW) SetFrequencyScaler(sc float32) {
	s.setScaler(sc)
	s.updateScale()
}

func (s *SawDPW) SetPitch(pitch float32) { s.SetFrequency(PitchToFrequency(pitch)) }

func (s *SawDPW) Render() float32 {
	phase := s.advance()
	squared := phase * phase
	diffed := squared - s.z2
	s.z2 = s.z1
	s.z1 = squared
	return diffed * s.scale
}

// Sine approximates sin(phase*pi) with a Taylor series up to x^9.
type Sine struct {
	phasor
}

func NewSine(sampleRate int) *Sine {
	return &Sine{phasor: newPhasor(sampleRate)}
}

func (s *Sine) SetFrequency(hz float32)       { s.setFrequency(hz) }
func (s *Sine) SetFrequencyScaler(sc float32) { s.setScaler(sc) }
func (s *Sine) SetPitch(pitch float32)        { s.setFrequency(PitchToFrequency(pitch)) }

func (s *Sine) Render() float32 {
	return fastSin(s.advance() * pi)
}

const pi = 3.14159265358979323846

const (
	inv3Fact = 1.0 / (2 * 3)
	inv5Fact = inv3Fact / (4 * 5)
	inv7Fact = inv5Fact / (6 * 7)
	inv9Fact = inv7Fact / (8 * 9)
)

// fastSin is accurate to about 0.007 over [-pi, pi].
func fastSin(x float32) float32 {
	x2 := x * x
	x3 := x2 * x
	x5 := x3 * x2
	x7 := x5 * x2
	x9 := x7 * x2
	return x - x3*inv3Fact + x5*inv5Fact - x7*inv7Fact + x9*inv9Fact
}

// Wavetable plays back one cycle of a stored waveform with linear
// interpolation. The table is shared and never modified.
type Wavetable struct {
	phasor
	table []float32
}

// NewWavetable returns nil if table is empty.
func NewWavetable(sampleRate int, table []float32) *Wavetable {
	if len(table) == 0 {
		return nil
	}
	return &Wavetable{phasor: newPhasor(sampleRate), table: table}
}

func (w *Wavetable) SetFrequency(hz float32)       { w.setFrequency(hz) }
func (w *Wavetable) SetFrequencyScaler(sc float32) { w.setScaler(sc) }
func (w *Wavetable) SetPitch(pitch float32)        { w.setFrequency(PitchToFrequency(pitch)) }

func (w *Wavetable) Render() float32 {
	n := len(w.table)
	pos := (w.advance() + 1) * 0.5 * float32(n)
	i := int(pos)
	frac := pos - float32(i)
	i %= n
	a := w.table[i]
	b := w.table[(i+1)%n]
	return a + (b-a)*frac
}
