// Package midiinput turns MIDI sources into timestamped messages for a
// Receiver such as *engine.Engine.
package midiinput

import (
	"errors"
	"io"
)

// Receiver takes complete MIDI messages stamped with times from its own clock.
// Send must not keep data after it returns.
type Receiver interface {
	Send(data []byte, timestamp int64) error
	Now() int64
}

// Framer splits a raw MIDI byte stream into messages. It understands running
// status, passes realtime bytes through wherever they appear and skips system
// exclusive and system common messages.
//
// Each message is stamped with the receiver's time when its last byte arrives.
type Framer struct {
	recv Receiver

	running byte
	msg     []byte
	need    int
	skip    int
	sysex   bool
}

func NewFramer(recv Receiver) *Framer {
	return &Framer{recv: recv, msg: make([]byte, 0, 3)}
}

// Write frames p. It keeps going after a failed Send and returns the first
// error.
func (f *Framer) Write(p []byte) (int, error) {
	var errs []error
	for _, b := range p {
		if err := f.feed(b); err != nil && len(errs) == 0 {
			errs = append(errs, err)
		}
	}
	return len(p), errors.Join(errs...)
}

// ReadFrom frames everything read from r until EOF.
func (f *Framer) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, 256)
	var total int64
	for {
		n, err := r.Read(buf)
		total += int64(n)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func (f *Framer) feed(b byte) error {
	switch {
	case b >= 0xF8:
		return f.recv.Send([]byte{b}, f.recv.Now())
	case b == 0xF0:
		f.reset()
		f.sysex = true
	case b == 0xF7:
		f.sysex = false
	case b >= 0xF1:
		f.reset()
		f.skip = commonLength(b) - 1
	case b >= 0x80:
		f.sysex = false
		f.skip = 0
		f.running = b
		f.msg = append(f.msg[:0], b)
		f.need = channelLength(b)
	case f.sysex:
	case f.skip > 0:
		f.skip--
	case f.running == 0:
		// stray data byte
	default:
		if len(f.msg) == 0 {
			f.msg = append(f.msg, f.running)
		}
		f.msg = append(f.msg, b)
		if len(f.msg) == f.need {
			err := f.recv.Send(f.msg, f.recv.Now())
			f.msg = f.msg[:0]
			return err
		}
	}
	return nil
}

func (f *Framer) reset() {
	f.running = 0
	f.msg = f.msg[:0]
	f.need = 0
	f.skip = 0
}

func channelLength(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 2
	}
	return 3
}

func commonLength(status byte) int {
	switch status {
	case 0xF1, 0xF3:
		return 2
	case 0xF2:
		return 3
	}
	return 1
}
