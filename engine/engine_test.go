package engine

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/Lundis/go-synth/audio"
	"github.com/Lundis/go-synth/synth"
)

var errBroken = errors.New("broken device")

// recordingSink keeps copies of the blocks written to it. Once limit blocks
// are recorded, Write blocks until the gate is opened.
type recordingSink struct {
	limit   int
	failAt  int
	panicAt int
	openErr error

	mu      sync.Mutex
	cfg     audio.Config
	blocks  [][]float32
	writes  int
	opens   int
	closed  bool
	reached chan struct{}
	once    sync.Once
	gate    chan struct{}
}

func newRecordingSink(limit int) *recordingSink {
	return &recordingSink{
		limit:   limit,
		failAt:  -1,
		panicAt: -1,
		reached: make(chan struct{}),
		gate:    make(chan struct{}),
	}
}

func (s *recordingSink) Open(cfg audio.Config) (audio.Config, error) {
	if s.openErr != nil {
		return audio.Config{}, s.openErr
	}
	if cfg.BufferCapacityInFrames == 0 {
		cfg.BufferCapacityInFrames = 8 * cfg.FramesPerBlock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.opens++
	s.closed = false
	return cfg, nil
}

func (s *recordingSink) Write(samples []float32) (int, error) {
	s.mu.Lock()
	n := s.writes
	s.writes++
	channels := s.cfg.ChannelCount
	if n == s.failAt {
		s.mu.Unlock()
		return 0, errBroken
	}
	if n == s.panicAt {
		s.mu.Unlock()
		panic("device exploded")
	}
	if s.limit >= 0 && len(s.blocks) >= s.limit {
		s.mu.Unlock()
		s.once.Do(func() { close(s.reached) })
		<-s.gate
		return len(samples) / channels, nil
	}
	if s.limit >= 0 {
		s.blocks = append(s.blocks, append([]float32(nil), samples...))
	}
	s.mu.Unlock()
	return len(samples) / channels, nil
}

func (s *recordingSink) UnderrunCount() int { return 0 }

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *recordingSink) recorded() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks
}

func (s *recordingSink) waitForLimit(t *testing.T) {
	t.Helper()
	select {
	case <-s.reached:
	case <-time.After(10 * time.Second):
		t.Fatalf("sink got %d blocks, want %d", len(s.recorded()), s.limit)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func energy(block []float32) float64 {
	var sum float64
	for _, v := range block {
		sum += float64(v) * float64(v)
	}
	return sum
}

func waitForState(t *testing.T, e *Engine, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for e.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", e.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNoteLifecycle(t *testing.T) {
	sink := newRecordingSink(700)
	e, err := New(sink, Options{FrameClock: true, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Send(midi.NoteOn(0, 60, 100), 0); err != nil {
		t.Fatal(err)
	}
	if err := e.Send(midi.NoteOff(0, 60), int64(500*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()
	defer close(sink.gate)
	sink.waitForLimit(t)

	blocks := sink.recorded()
	if energy(blocks[8]) == 0 {
		t.Fatalf("block 8 is silent")
	}
	// The note is held for 375 blocks of 64 frames.
	for i := 1; i < 375; i++ {
		if energy(blocks[i]) == 0 {
			t.Fatalf("block %d is silent while the note is held", i)
		}
	}
	silentFrom := len(blocks)
	for silentFrom > 0 && energy(blocks[silentFrom-1]) == 0 {
		silentFrom--
	}
	// A one second release from the 0.3 sustain level lasts 14400 frames,
	// so the tail ends at about block 600.
	if silentFrom < 598 || silentFrom > 604 {
		t.Fatalf("silence starts at block %d, want about 601", silentFrom)
	}
	stats := e.Stats()
	if stats.ActiveVoices != 0 {
		t.Fatalf("ActiveVoices = %d after the release", stats.ActiveVoices)
	}
	if stats.PendingEvents != 0 {
		t.Fatalf("PendingEvents = %d", stats.PendingEvents)
	}
	for i, v := range blocks[100] {
		if i%2 == 1 && v != blocks[100][i-1] {
			t.Fatalf("channels differ at sample %d", i)
		}
	}
}

func TestStartStop(t *testing.T) {
	sink := newRecordingSink(-1)
	e, err := New(sink, Options{FrameClock: true, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if e.State() != Stopped {
		t.Fatalf("new engine is %v", e.State())
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if e.State() != Running {
		t.Fatalf("state after Start = %v", e.State())
	}
	if err := e.SetFramesPerBlock(128); !errors.Is(err, ErrRunning) {
		t.Fatalf("SetFramesPerBlock while running: %v", err)
	}
	e.Stop()
	if e.State() != Stopped {
		t.Fatalf("state after Stop = %v", e.State())
	}
	if !sink.isClosed() {
		t.Fatalf("sink not closed by Stop")
	}
	e.Stop()

	if err := e.SetFramesPerBlock(0); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("SetFramesPerBlock(0): %v", err)
	}
	if err := e.SetFramesPerBlock(128); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("restarting a running engine: %v", err)
	}
	defer e.Stop()
	if sink.opens != 3 {
		t.Fatalf("sink opened %d times, want 3", sink.opens)
	}
	if got := e.Stats().FramesPerBlock; got != 128 {
		t.Fatalf("FramesPerBlock = %d, want 128", got)
	}
}

func TestRestartWithNullSink(t *testing.T) {
	sink := audio.NewNullSink()
	e, err := New(sink, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	e.Stop()
	if err := e.Start(); err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for sink.FramesWritten() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("nothing written after restarting")
		}
		time.Sleep(time.Millisecond)
	}
	e.Stop()
	if err := e.Err(); err != nil {
		t.Fatalf("Err = %v", err)
	}
}

func TestStartWaitsForStaleLoop(t *testing.T) {
	sink := newRecordingSink(1)
	e, err := New(sink, Options{FrameClock: true, JoinTimeout: 100 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	sink.waitForLimit(t)
	// the loop is stuck in Write, so Stop gives up on it
	e.Stop()
	if e.State() != Stopped {
		t.Fatalf("state after a timed out Stop = %v", e.State())
	}
	if err := e.Start(); !errors.Is(err, ErrRunning) {
		t.Fatalf("Start with a stuck loop = %v, want ErrRunning", err)
	}
	if sink.opens != 1 {
		t.Fatalf("sink reopened while the old loop was writing")
	}

	close(sink.gate)
	if err := e.Start(); err != nil {
		t.Fatalf("Start after the old loop left: %v", err)
	}
	defer e.Stop()
	if sink.opens != 2 {
		t.Fatalf("sink opened %d times, want 2", sink.opens)
	}
}

func TestInvalidOptions(t *testing.T) {
	if _, err := New(nil, Options{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil sink: %v", err)
	}
	tests := []Options{
		{FramesPerBlock: -1},
		{SampleRate: -48000},
		{BendRange: 100},
		{JoinTimeout: -time.Second},
	}
	for _, opts := range tests {
		if _, err := New(newRecordingSink(-1), opts); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("New(%+v) = %v, want ErrInvalidConfig", opts, err)
		}
	}
}

func TestOpenFailure(t *testing.T) {
	sink := newRecordingSink(-1)
	sink.openErr = errBroken
	e, _ := New(sink, Options{Logger: quietLogger()})
	if err := e.Start(); !errors.Is(err, errBroken) {
		t.Fatalf("Start = %v, want the open error", err)
	}
	if e.State() != Stopped {
		t.Fatalf("state = %v after a failed start", e.State())
	}
}

func TestWriteErrorStopsLoop(t *testing.T) {
	sink := newRecordingSink(-1)
	sink.failAt = 5
	e, _ := New(sink, Options{FrameClock: true, Logger: quietLogger()})
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	waitForState(t, e, Stopped)
	if err := e.Err(); !errors.Is(err, ErrSinkWrite) || !errors.Is(err, errBroken) {
		t.Fatalf("Err = %v", err)
	}
	if !sink.isClosed() {
		t.Fatalf("sink not closed after a write error")
	}
	if err := e.SetFramesPerBlock(128); err != nil {
		t.Fatalf("SetFramesPerBlock after the loop ended: %v", err)
	}
	e.Stop()

	sink.failAt = -1
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()
	if e.Err() != nil {
		t.Fatalf("Err not cleared by Start: %v", e.Err())
	}
}

func TestPanicIsRecovered(t *testing.T) {
	sink := newRecordingSink(-1)
	sink.panicAt = 3
	e, _ := New(sink, Options{FrameClock: true, Logger: quietLogger()})
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	waitForState(t, e, Stopped)
	if e.Err() == nil {
		t.Fatalf("panic not reported")
	}
	if !sink.isClosed() {
		t.Fatalf("sink not closed after a panic")
	}
}

func TestControlSurface(t *testing.T) {
	e, _ := New(newRecordingSink(-1), Options{Logger: quietLogger()})
	for _, msg := range [][]byte{{0xFE}, {0xF8}, {0xFA}, {0xF8, 0xF8}, {0xFF}} {
		if err := e.Send(msg, 0); err != nil {
			t.Fatal(err)
		}
	}
	if n := e.sched.Len(); n != 0 {
		t.Fatalf("%d events queued for realtime messages", n)
	}
	if got := e.Stats().DroppedEvents; got != 0 {
		t.Fatalf("realtime messages counted as dropped: %d", got)
	}
	for _, send := range []func() error{
		func() error { return e.NoteOn(0, 60, 100) },
		func() error { return e.NoteOff(0, 60, 64) },
		func() error { return e.PitchBend(0, 100) },
		func() error { return e.ProgramChange(0, 1) },
		func() error { return e.AllNotesOff() },
	} {
		if err := send(); err != nil {
			t.Fatal(err)
		}
	}
	if n := e.sched.Len(); n != 5 {
		t.Fatalf("%d events queued, want 5", n)
	}
}

func newTestRenderer(t *testing.T) *renderer {
	t.Helper()
	sink := newRecordingSink(-1)
	e, err := New(sink, Options{FrameClock: true, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	cfg, _ := sink.Open(audio.Config{SampleRate: 48000, ChannelCount: 2, FramesPerBlock: 64})
	return newRenderer(e, cfg)
}

func countVoices(r *renderer) int {
	n := 0
	for _, v := range r.voices {
		if v != nil {
			n++
		}
	}
	return n
}

func TestNoteOnReplacesVoice(t *testing.T) {
	r := newTestRenderer(t)
	r.handle(midi.NoteOn(0, 60, 100))
	first := r.voices[60]
	if first == nil {
		t.Fatalf("no voice after note on")
	}
	r.handle(midi.NoteOn(3, 60, 90))
	if r.voices[60] == first {
		t.Fatalf("retriggered note kept the old voice")
	}
	if n := countVoices(r); n != 1 {
		t.Fatalf("%d voices for one note", n)
	}

	r.handle(midi.NoteOn(0, 60, 0))
	if r.voices[60].State() != synth.VoiceOff {
		t.Fatalf("zero velocity note on did not release the voice")
	}
}

func TestVoicesAreRecycled(t *testing.T) {
	r := newTestRenderer(t)
	r.handle(midi.NoteOn(0, 60, 100))
	v := r.voices[60]
	r.handle(midi.NoteOff(0, 60))
	for i := 0; i < 2000 && r.voices[60] != nil; i++ {
		if err := r.cycle(); err != nil {
			t.Fatal(err)
		}
	}
	if r.voices[60] != nil {
		t.Fatalf("released voice never removed")
	}
	if len(r.free) != 1 {
		t.Fatalf("free voices = %d, want 1", len(r.free))
	}
	r.handle(midi.NoteOn(0, 62, 100))
	if r.voices[62] != v {
		t.Fatalf("free voice not reused")
	}

	r.recycle(synth.NewVoice(synth.NewSine(48000), synth.NewEnvelope(48000)))
	r.handle(midi.ProgramChange(0, 5))
	if r.program != 5 || len(r.free) != 0 {
		t.Fatalf("program change: program %d, %d free voices", r.program, len(r.free))
	}
}

func TestPitchBend(t *testing.T) {
	r := newTestRenderer(t)
	r.handle(midi.NoteOn(0, 69, 100))
	r.handle(midi.Pitchbend(0, -8192))
	want := synth.SemitonesToRatio(-2)
	if math.Abs(float64(r.bendScaler-want)) > 1e-6 {
		t.Fatalf("bend scaler = %f, want %f", r.bendScaler, want)
	}
	r.handle(midi.Pitchbend(0, 0))
	if r.bendScaler != 1 {
		t.Fatalf("centered bend scaler = %f", r.bendScaler)
	}
}

func TestMalformedMessages(t *testing.T) {
	r := newTestRenderer(t)
	for _, msg := range [][]byte{
		{0x90, 60},
		{0x90, 0x80, 10},
		{0xF3},
		{},
	} {
		r.handle(msg)
	}
	if n := countVoices(r); n != 0 {
		t.Fatalf("malformed messages started %d voices", n)
	}
	if got := r.e.stats.dropped.Load(); got != 4 {
		t.Fatalf("dropped = %d, want 4", got)
	}
	// Aftertouch and realtime bytes are valid but unsupported.
	r.handle([]byte{0xA0, 60, 10})
	r.handle([]byte{0xF8})
	r.handle([]byte{0xFA, 0xFC})
	if got := r.e.stats.dropped.Load(); got != 4 {
		t.Fatalf("unsupported message counted as malformed")
	}
}

func TestAllNotesOff(t *testing.T) {
	r := newTestRenderer(t)
	for note := uint8(60); note < 64; note++ {
		r.handle(midi.NoteOn(0, note, 100))
	}
	r.handle(midi.ControlChange(0, ccAllNotesOff, 0))
	for note := uint8(60); note < 64; note++ {
		if r.voices[note].State() != synth.VoiceOff {
			t.Fatalf("note %d still on", note)
		}
	}
	r.handle(midi.ControlChange(0, ccAllSoundOff, 0))
	if n := countVoices(r); n != 0 {
		t.Fatalf("%d voices left after all sound off", n)
	}
}

func TestFrameClock(t *testing.T) {
	c := NewFrameClock(48000)
	c.advance(24000)
	if got := c.Now(); got != int64(500*time.Millisecond) {
		t.Fatalf("Now = %d", got)
	}
	c.advance(48000 * 3600 * 100)
	if got, want := c.Now(), int64(100*time.Hour+500*time.Millisecond); got != want {
		t.Fatalf("Now = %d, want %d", got, want)
	}
}
