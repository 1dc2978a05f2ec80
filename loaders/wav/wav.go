// Copyright 2016 Hajime Hoshi
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wav provides a 16-bit PCM WAV (RIFF) decoder and encoder.
package wav

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

type Format struct {
	SampleRate int
	Channels   int
}

var ErrTruncated = errors.New("wav: unexpected end of data")

// LoadFile decodes the WAV file at path.
func LoadFile(path string) ([]float32, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Format{}, err
	}
	samples, format, err := Decode(data)
	if err != nil {
		return nil, Format{}, fmt.Errorf("%s: %w", path, err)
	}
	return samples, format, nil
}

// Read decodes a whole WAV stream.
func Read(r io.Reader) ([]float32, Format, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Format{}, err
	}
	return Decode(data)
}

// Decode returns the interleaved samples of a 16-bit linear PCM WAV file
// scaled to [-1, 1).
func Decode(data []byte) ([]float32, Format, error) {
	if len(data) < 12 {
		return nil, Format{}, ErrTruncated
	}
	if !bytes.Equal(data[0:4], []byte("RIFF")) {
		return nil, Format{}, fmt.Errorf("wav: invalid header: 'RIFF' not found")
	}
	if !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, Format{}, fmt.Errorf("wav: invalid header: 'WAVE' not found")
	}

	var format Format
	haveFormat := false

	// Read chunks
	headerSize := 12
	for {
		if headerSize+8 > len(data) {
			return nil, Format{}, ErrTruncated
		}
		buf := data[headerSize : headerSize+8]
		headerSize += 8
		size := int(buf[4]) | int(buf[5])<<8 | int(buf[6])<<16 | int(buf[7])<<24
		if size < 0 || headerSize+size > len(data) {
			return nil, Format{}, ErrTruncated
		}
		switch {
		case bytes.Equal(buf[0:4], []byte("fmt ")):
			// Size of 'fmt' header is usually 16, but can be more than 16.
			if size < 16 {
				return nil, Format{}, fmt.Errorf("wav: invalid header: maybe non-PCM file?")
			}
			buf := data[headerSize : headerSize+size]
			if f := int(buf[0]) | int(buf[1])<<8; f != 1 {
				return nil, Format{}, fmt.Errorf("wav: format must be linear PCM")
			}
			format.Channels = int(buf[2]) | int(buf[3])<<8
			if format.Channels < 1 {
				return nil, Format{}, fmt.Errorf("wav: invalid channel count %d", format.Channels)
			}
			bitsPerSample := int(buf[14]) | int(buf[15])<<8
			if bitsPerSample != 16 {
				return nil, Format{}, fmt.Errorf("wav: bits per sample must be 16 but was %d", bitsPerSample)
			}
			format.SampleRate = int(buf[4]) | int(buf[5])<<8 | int(buf[6])<<16 | int(buf[7])<<24
			haveFormat = true
			headerSize += size + size&1
		case bytes.Equal(buf[0:4], []byte("data")):
			if !haveFormat {
				return nil, Format{}, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			return convertInt16ToFloat32(data[headerSize : headerSize+size]), format, nil
		default:
			// odd sized chunks are followed by a pad byte
			headerSize += size + size&1
		}
	}
}

func convertInt16ToFloat32(i16Buf []byte) []float32 {
	f32 := make([]float32, len(i16Buf)/2)
	for i := 0; i+1 < len(i16Buf); i += 2 {
		vi16l := i16Buf[i]
		vi16h := i16Buf[i+1]
		f32[i/2] = float32(int16(vi16l)|int16(vi16h)<<8) / (1 << 15)
	}
	return f32
}
