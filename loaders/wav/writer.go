package wav

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const headerLen = 44

var ErrClosed = errors.New("wav: writer closed")

// Writer encodes interleaved float32 samples as 16-bit PCM.
// The RIFF sizes are patched in on Close, so the destination must be seekable.
type Writer struct {
	w        io.WriteSeeker
	format   Format
	dataSize int64
	scratch  []byte
	closed   bool
}

func NewWriter(w io.WriteSeeker, format Format) (*Writer, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, errors.New("wav: invalid format")
	}
	wr := &Writer{w: w, format: format}
	if _, err := w.Write(wr.header()); err != nil {
		return nil, err
	}
	return wr, nil
}

func (w *Writer) header() []byte {
	h := make([]byte, headerLen)
	blockAlign := w.format.Channels * 2
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], uint32(36+w.dataSize))
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1)
	binary.LittleEndian.PutUint16(h[22:], uint16(w.format.Channels))
	binary.LittleEndian.PutUint32(h[24:], uint32(w.format.SampleRate))
	binary.LittleEndian.PutUint32(h[28:], uint32(w.format.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:], 16)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], uint32(w.dataSize))
	return h
}

// Write clips samples to [-1, 1] and appends them. It returns the number of
// samples written.
func (w *Writer) Write(samples []float32) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if cap(w.scratch) < len(samples)*2 {
		w.scratch = make([]byte, len(samples)*2)
	}
	buf := w.scratch[:len(samples)*2]
	for i, s := range samples {
		v := int16(math.Round(float64(min(max(s, -1), 1)) * math.MaxInt16))
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	n, err := w.w.Write(buf)
	w.dataSize += int64(n)
	return n / 2, err
}

// Close rewrites the header with the final sizes. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.w.Write(w.header()); err != nil {
		return err
	}
	_, err := w.w.Seek(0, io.SeekEnd)
	return err
}
