package audio

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
)

const bytesPerSample = 4

// pipe carries float32 samples from the render goroutine to a device callback
// that pulls them.
//
//	┌──────────────┐         ┌──────────┐          ┌───────────────┐
//	│ render loop  │──write─▶│ ●●●●●○○○ │──read──▶ │ device pull   │
//	└──────────────┘         └──────────┘          └───────────────┘
//
// The writer waits while the ring holds more than the buffer size, so the
// buffer size bounds the latency even though the ring itself has a fixed
// capacity. The reader never blocks: missing data is padded with silence and
// counted as an underrun.
type pipe struct {
	ring       *ringbuffer.RingBuffer
	frameBytes int
	frameDur   time.Duration
	capacity   int
	minimum    int

	bufferSize atomic.Int64
	underruns  atomic.Int64
	primed     atomic.Bool
	closed     atomic.Bool

	scratch     []byte // writer side
	readScratch []byte // reader side
}

func newPipe(cfg Config, capacityFrames int) *pipe {
	frameBytes := cfg.ChannelCount * bytesPerSample
	p := &pipe{
		ring:       ringbuffer.New(capacityFrames * frameBytes),
		frameBytes: frameBytes,
		frameDur:   time.Second / time.Duration(cfg.SampleRate),
		capacity:   capacityFrames,
		minimum:    max(cfg.FramesPerBlock, 1),
	}
	p.bufferSize.Store(int64(capacityFrames))
	return p
}

func (p *pipe) setBufferSize(n int) int {
	n = clampBufferSize(n, p.minimum, p.capacity)
	p.bufferSize.Store(int64(n))
	return n
}

// write blocks until all of samples fit under the buffer size.
func (p *pipe) write(samples []float32) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	frames := len(samples) * bytesPerSample / p.frameBytes
	n := frames * p.frameBytes
	if n == 0 {
		return 0, nil
	}
	if cap(p.scratch) < n {
		p.scratch = make([]byte, n)
	}
	buf := p.scratch[:n]
	for i := 0; i < n/bytesPerSample; i++ {
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(samples[i]))
	}

	for {
		if p.closed.Load() {
			return 0, ErrClosed
		}
		limit := int(p.bufferSize.Load()) * p.frameBytes
		queued := p.ring.Length()
		if queued == 0 || (queued+n <= limit && p.ring.Free() >= n) {
			break
		}
		excess := (queued + n - limit) / p.frameBytes
		time.Sleep(max(time.Duration(excess)*p.frameDur, 200*time.Microsecond))
	}
	written, err := p.ring.Write(buf)
	p.primed.Store(true)
	return written / p.frameBytes, err
}

// readBytes fills b completely, padding with silence.
func (p *pipe) readBytes(b []byte) int {
	n, _ := p.ring.TryRead(b)
	if n < len(b) {
		clear(b[n:])
		if p.primed.Load() && !p.closed.Load() {
			p.underruns.Add(1)
		}
	}
	return len(b)
}

// readFloats fills out completely, padding with silence.
func (p *pipe) readFloats(out []float32) int {
	n := len(out) * bytesPerSample
	if cap(p.readScratch) < n {
		p.readScratch = make([]byte, n)
	}
	buf := p.readScratch[:n]
	p.readBytes(buf)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*bytesPerSample:]))
	}
	return len(out)
}

func (p *pipe) close() {
	p.closed.Store(true)
}
