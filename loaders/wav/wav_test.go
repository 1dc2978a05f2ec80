package wav_test

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Lundis/go-synth/loaders/wav"
)

func writeFile(t *testing.T, format wav.Format, samples []float32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w, err := wav.NewWriter(f, format)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if n, err := w.Write(samples); err != nil || n != len(samples) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestWriteThenLoadStereo(t *testing.T) {
	samples := []float32{0, 0, 0.5, -0.5, 1, -1, 2, -2}
	path := writeFile(t, wav.Format{SampleRate: 44100, Channels: 2}, samples)

	data, format, err := wav.LoadFile(path)
	if err != nil {
		t.Fatalf("error loading wav: %s", err.Error())
	}
	if format.SampleRate != 44100 || format.Channels != 2 {
		t.Fatalf("unexpected format %+v", format)
	}
	if len(data) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(data), len(samples))
	}
	for i, s := range samples {
		want := min(max(s, -1), 1)
		if d := data[i] - want; d > 1e-3 || d < -1e-3 {
			t.Errorf("sample %d = %f, want %f", i, data[i], want)
		}
	}
}

func TestLoadMono(t *testing.T) {
	path := writeFile(t, wav.Format{SampleRate: 8000, Channels: 1}, []float32{0.25, 0.5})
	data, format, err := wav.LoadFile(path)
	if err != nil {
		t.Fatalf("error loading wav: %v", err)
	}
	if format.Channels != 1 || format.SampleRate != 8000 || len(data) != 2 {
		t.Fatalf("unexpected result %+v, %d samples", format, len(data))
	}
}

func TestDecodeTruncated(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		[]byte("RIFF"),
		[]byte("RIFF\x00\x00\x00\x00WAVE"),
		[]byte("RIFF\x00\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00"),
	} {
		if _, _, err := wav.Decode(data); !errors.Is(err, wav.ErrTruncated) {
			t.Errorf("Decode(%q) err = %v, want ErrTruncated", data, err)
		}
	}
}

func TestDecodeRejects8bit(t *testing.T) {
	h := make([]byte, 44)
	copy(h[0:], "RIFF")
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1)
	binary.LittleEndian.PutUint16(h[22:], 1)
	binary.LittleEndian.PutUint32(h[24:], 8000)
	binary.LittleEndian.PutUint16(h[34:], 8)
	copy(h[36:], "data")
	if _, _, err := wav.Decode(h); err == nil {
		t.Fatalf("should not load non-16bit PCM tracks without error")
	}
}

func TestDecodeSkipsOddSizedChunk(t *testing.T) {
	var data []byte
	data = append(data, "RIFF\x00\x00\x00\x00WAVE"...)
	data = append(data, "LIST\x03\x00\x00\x00abc\x00"...)
	fmtChunk := make([]byte, 24)
	copy(fmtChunk, "fmt ")
	binary.LittleEndian.PutUint32(fmtChunk[4:], 16)
	binary.LittleEndian.PutUint16(fmtChunk[8:], 1)
	binary.LittleEndian.PutUint16(fmtChunk[10:], 1)
	binary.LittleEndian.PutUint32(fmtChunk[12:], 8000)
	binary.LittleEndian.PutUint16(fmtChunk[22:], 16)
	data = append(data, fmtChunk...)
	data = append(data, "data\x04\x00\x00\x00\x00\x40\x00\xc0"...)

	samples, format, err := wav.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format.Channels != 1 || format.SampleRate != 8000 {
		t.Fatalf("unexpected format %+v", format)
	}
	if len(samples) != 2 || samples[0] != 0.5 || samples[1] != -0.5 {
		t.Fatalf("samples = %v", samples)
	}
}

func TestDecodeRejectsNonRIFF(t *testing.T) {
	if _, _, err := wav.Decode([]byte("OggS\x00\x00\x00\x00WAVE")); err == nil {
		t.Fatalf("expected an error for a non-RIFF header")
	}
}

func TestWriterClosed(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "closed.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w, err := wav.NewWriter(f, wav.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Close()
	if _, err := w.Write([]float32{0}); !errors.Is(err, wav.ErrClosed) {
		t.Fatalf("Write after Close: %v", err)
	}
}
