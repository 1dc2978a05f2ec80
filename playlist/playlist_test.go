package playlist

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"golang.org/x/tools/godoc/vfs/mapfs"
)

func song(t *testing.T, note uint8) string {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(120))
	tr.Add(0, midi.NoteOn(0, note, 100))
	tr.Add(240, midi.NoteOff(0, note))
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

const registry = `[
	{"Id": "menu", "GapMs": 100, "Tracks": [
		{"Path": "a.mid", "Name": "A", "Program": 3},
		{"Path": "b.mid", "Name": "B"}
	]},
	{"Id": "broken", "Tracks": [{"Path": "missing.mid"}]}
]`

func TestLoad(t *testing.T) {
	fs := mapfs.New(map[string]string{
		RegistryFile: registry,
		"a.mid":      song(t, 60),
		"b.mid":      song(t, 62),
	})
	set, err := Load(fs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 1 {
		t.Fatalf("loaded %d playlists, want 1", len(set))
	}
	pl := set["menu"]
	if pl == nil || len(pl.Tracks) != 2 {
		t.Fatalf("menu playlist = %+v", pl)
	}
	if got := pl.Tracks[0].Length(); got != 250*time.Millisecond {
		t.Fatalf("track length = %v", got)
	}
	if pl.Tracks[0].Program == nil || *pl.Tracks[0].Program != 3 {
		t.Fatalf("program not loaded")
	}
}

func TestLoadBadRegistry(t *testing.T) {
	if _, err := Load(mapfs.New(map[string]string{}), nil); err == nil {
		t.Fatalf("no error without a registry")
	}
	if _, err := Load(mapfs.New(map[string]string{RegistryFile: "{"}), nil); err == nil {
		t.Fatalf("no error for a broken registry")
	}
}

// fastReceiver moves its clock 20ms forward on every call to Now.
type fastReceiver struct {
	mu       sync.Mutex
	now      int64
	messages []midi.Message
}

func (r *fastReceiver) Send(data []byte, timestamp int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, append(midi.Message(nil), data...))
	return nil
}

func (r *fastReceiver) Now() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now += int64(20 * time.Millisecond)
	return r.now
}

func TestPlay(t *testing.T) {
	fs := mapfs.New(map[string]string{
		RegistryFile: registry,
		"a.mid":      song(t, 60),
		"b.mid":      song(t, 62),
	})
	set, err := Load(fs, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := &fastReceiver{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := set["menu"].Play(ctx, r, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	var program, key, ch, vel, cc, val uint8
	var notes []uint8
	var programs, allOff int
	for _, msg := range r.messages {
		switch {
		case msg.GetProgramChange(&ch, &program):
			programs++
		case msg.GetNoteStart(&ch, &key, &vel):
			notes = append(notes, key)
		case msg.GetControlChange(&ch, &cc, &val) && cc == 123:
			allOff++
		}
	}
	if programs != 1 || program != 3 {
		t.Fatalf("program changes: %d, last %d", programs, program)
	}
	if len(notes) != 2 || notes[0] != 60 || notes[1] != 62 {
		t.Fatalf("notes = %v", notes)
	}
	if allOff != 2 {
		t.Fatalf("all notes off sent %d times, want once per track", allOff)
	}
}

func TestPlayEmpty(t *testing.T) {
	pl := &PlayList{Id: "empty", Repeat: true}
	if err := pl.Play(context.Background(), &fastReceiver{}, time.Second); err != nil {
		t.Fatal(err)
	}
}
