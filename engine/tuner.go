package engine

import "github.com/Lundis/go-synth/audio"

type TunerState int32

const (
	Priming TunerState = iota
	Lowering
	Raising
)

func (s TunerState) String() string {
	switch s {
	case Priming:
		return "priming"
	case Lowering:
		return "lowering"
	case Raising:
		return "raising"
	}
	return "unknown"
}

// primingBlocks is how many blocks are played before the tuner starts
// trusting the underrun count.
const primingBlocks = 8

type underrunCounter interface {
	UnderrunCount() int
}

// Tuner searches for the smallest sink buffer size that plays without
// underruns. It lowers the size one block at a time until an underrun shows
// up, then raises it one block for every further underrun.
//
// Step must be called once per written block, from the goroutine that writes.
type Tuner struct {
	counter underrunCounter
	sizer   audio.BufferSizer
	block   int

	state             TunerState
	framesPlayed      int
	previousUnderruns int
}

func NewTuner(counter underrunCounter, sizer audio.BufferSizer, framesPerBlock int) *Tuner {
	return &Tuner{
		counter: counter,
		sizer:   sizer,
		block:   framesPerBlock,
	}
}

func (t *Tuner) State() TunerState { return t.state }

// Step updates the buffer size after framesWritten more frames were played.
func (t *Tuner) Step(framesWritten int) {
	switch t.state {
	case Priming:
		t.framesPlayed += framesWritten
		if t.framesPlayed >= primingBlocks*t.block {
			t.previousUnderruns = t.counter.UnderrunCount()
			t.state = Lowering
		}
	case Lowering:
		if t.underrunsIncreased() {
			t.state = Raising
			t.grow()
			return
		}
		size := t.sizer.BufferSizeInFrames()
		if t.sizer.SetBufferSizeInFrames(size-t.block) >= size {
			t.state = Raising
		}
	case Raising:
		if t.underrunsIncreased() {
			t.grow()
		}
	}
}

func (t *Tuner) underrunsIncreased() bool {
	n := t.counter.UnderrunCount()
	increased := n > t.previousUnderruns
	t.previousUnderruns = n
	return increased
}

func (t *Tuner) grow() {
	t.sizer.SetBufferSizeInFrames(t.sizer.BufferSizeInFrames() + t.block)
}

// Reset restores the full buffer capacity and starts priming again.
func (t *Tuner) Reset() {
	t.sizer.SetBufferSizeInFrames(t.sizer.BufferCapacityInFrames())
	t.state = Priming
	t.framesPlayed = 0
}
