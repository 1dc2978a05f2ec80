package synth_test

import (
	"testing"
	"time"

	"github.com/Lundis/go-synth/synth"
)

func TestEnvelopeMonotonic(t *testing.T) {
	const sampleRate = 48000
	env := synth.NewEnvelope(sampleRate)
	env.SetAttack(5 * time.Millisecond)
	env.SetDecay(20 * time.Millisecond)
	env.SetSustain(0.5)
	env.SetRelease(50 * time.Millisecond)

	if env.State() != synth.Idle {
		t.Fatalf("new envelope in state %v", env.State())
	}
	env.On()

	prev := env.Level()
	for env.State() == synth.Attack {
		v := env.Render()
		if v < prev {
			t.Fatalf("attack went down: %f after %f", v, prev)
		}
		prev = v
	}
	if prev != 1 {
		t.Fatalf("attack peaked at %f, want 1", prev)
	}

	for env.State() == synth.Decay {
		v := env.Render()
		if v > prev {
			t.Fatalf("decay went up: %f after %f", v, prev)
		}
		prev = v
	}
	if env.State() != synth.Sustain || prev != 0.5 {
		t.Fatalf("expected sustain at 0.5, got %v at %f", env.State(), prev)
	}
	for i := 0; i < 1000; i++ {
		if v := env.Render(); v != 0.5 {
			t.Fatalf("sustain moved to %f", v)
		}
	}

	env.Off()
	samples := 0
	for env.State() == synth.Release {
		if env.IsDone() {
			t.Fatalf("done while still releasing")
		}
		v := env.Render()
		if v > prev {
			t.Fatalf("release went up: %f after %f", v, prev)
		}
		prev = v
		samples++
	}
	if !env.IsDone() || prev != 0 {
		t.Fatalf("expected finished at 0, got %v at %f", env.State(), prev)
	}
	// 0.5 / (1 / (48000 * 0.05)) samples, give or take rounding
	if want := 1200; samples < want-2 || samples > want+2 {
		t.Fatalf("release took %d samples, want about %d", samples, want)
	}
	if v := env.Render(); v != 0 {
		t.Fatalf("finished envelope rendered %f", v)
	}
}

func TestEnvelopeOnResumesFromCurrentLevel(t *testing.T) {
	env := synth.NewEnvelope(48000)
	env.SetSustain(0.8)
	env.On()
	for env.State() != synth.Sustain {
		env.Render()
	}
	env.Off()
	for i := 0; i < 100; i++ {
		env.Render()
	}
	level := env.Level()
	env.On()
	if env.State() != synth.Attack {
		t.Fatalf("On did not enter attack")
	}
	if v := env.Render(); v <= level {
		t.Fatalf("attack restarted from %f, level was %f", v, level)
	}
}

func TestEnvelopeOffFromAttack(t *testing.T) {
	env := synth.NewEnvelope(48000)
	env.On()
	env.Render()
	env.Off()
	if env.State() != synth.Release {
		t.Fatalf("Off left envelope in %v", env.State())
	}
}

func TestEnvelopeDurationFloor(t *testing.T) {
	env := synth.NewEnvelope(1000)
	env.SetAttack(0)
	env.On()
	// 1ms at 1kHz is one sample
	if v := env.Render(); v != 1 {
		t.Fatalf("level after one sample = %f, want 1", v)
	}
}

func TestEnvelopeSustainClamp(t *testing.T) {
	env := synth.NewEnvelope(1000)
	env.SetSustain(3)
	env.SetAttack(0)
	env.On()
	env.Render()
	env.Render()
	if env.State() != synth.Sustain || env.Level() != 1 {
		t.Fatalf("got %v at %f, want sustain at 1", env.State(), env.Level())
	}
}
